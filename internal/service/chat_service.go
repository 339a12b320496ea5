package service

import (
	"context"
	"fmt"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/repository"
	"prop-eval-go/pkg/embedding"
	"prop-eval-go/pkg/llm"
	"prop-eval-go/pkg/log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// ChatService 定义了基于检索的对话操作。
// 同一对话 ID 上的轮次按提交顺序串行执行；不同对话互不影响。
type ChatService interface {
	Respond(ctx context.Context, conversationID, text string, policy model.Policy, corpusScope string) (model.ChatTurn, error)
	StreamRespond(ctx context.Context, conversationID, text string, policy model.Policy, corpusScope string, writer llm.MessageWriter) (model.ChatTurn, error)
	History(ctx context.Context, conversationID string) ([]model.ChatTurn, error)
}

// turnState 是单轮对话的状态机状态。
// Idle -> Retrieving -> Generating -> Answered；Retrieving/Generating 可进入 Failed。
type turnState string

const (
	stateIdle       turnState = "idle"
	stateRetrieving turnState = "retrieving"
	stateGenerating turnState = "generating"
	stateAnswered   turnState = "answered"
	stateFailed     turnState = "failed"
)

type chatService struct {
	retrieval        RetrievalService
	embeddingClient  embedding.Client
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	topK             int
	// 每对话一把 FIFO 锁，保证同一对话的轮次严格按提交顺序串行
	locks sync.Map // key: conversationID, value: *fifoLock
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	retrieval RetrievalService,
	embeddingClient embedding.Client,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	topK int,
) ChatService {
	if topK <= 0 {
		topK = 10
	}
	return &chatService{
		retrieval:        retrieval,
		embeddingClient:  embeddingClient,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		topK:             topK,
	}
}

// Respond 执行一轮完整的检索增强对话并返回助手消息。
func (s *chatService) Respond(ctx context.Context, conversationID, text string, policy model.Policy, corpusScope string) (model.ChatTurn, error) {
	return s.respond(ctx, conversationID, text, policy, corpusScope, nil)
}

// StreamRespond 与 Respond 相同，但把生成分块实时写入 writer。
func (s *chatService) StreamRespond(ctx context.Context, conversationID, text string, policy model.Policy, corpusScope string, writer llm.MessageWriter) (model.ChatTurn, error) {
	return s.respond(ctx, conversationID, text, policy, corpusScope, writer)
}

// History 返回对话的全部历史消息。
func (s *chatService) History(ctx context.Context, conversationID string) ([]model.ChatTurn, error) {
	return s.conversationRepo.GetHistory(ctx, conversationID)
}

func (s *chatService) respond(ctx context.Context, conversationID, text string, policy model.Policy, corpusScope string, writer llm.MessageWriter) (model.ChatTurn, error) {
	if !policy.Valid() {
		return model.ChatTurn{}, apperr.Newf(apperr.KindInvalidArgument, "未知的对话策略: %s", policy)
	}
	if strings.TrimSpace(text) == "" {
		return model.ChatTurn{}, apperr.New(apperr.KindInvalidArgument, "对话内容为空")
	}

	// 同一对话串行化；锁内完成检索、生成与落库
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	state := stateIdle
	fail := func(err error) (model.ChatTurn, error) {
		log.Warnf("[ChatService] 对话轮次失败, conversation: %s, state: %s -> %s, err: %v", conversationID, state, stateFailed, err)
		return model.ChatTurn{}, err
	}

	// 1. 检索
	state = stateRetrieving
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, text)
	if err != nil {
		return fail(apperr.Wrap(apperr.KindEmbeddingUnavailable, "问题向量化失败", err))
	}
	retrieved, err := s.retrieval.Retrieve(ctx, queryVector, corpusScope, s.topK)
	if err != nil {
		return fail(err)
	}

	// 2. 生成
	state = stateGenerating
	systemMsg := buildSystemMessage(policy, buildContextText(retrieved))
	history, err := s.conversationRepo.GetHistory(ctx, conversationID)
	if err != nil {
		log.Errorf("[ChatService] 加载对话历史失败: %v", err)
		history = []model.ChatTurn{}
	}
	messages := composeMessages(systemMsg, history, text)

	answer, err := s.generate(ctx, messages, writer)
	if err != nil {
		return fail(err)
	}

	// 3. 引用只能来自本轮检索结果，按答案中的 [编号] 标注反解
	citations := deriveCitations(answer, retrieved)
	if policy == model.PolicyGuideline && len(retrieved) > 0 && len(citations) == 0 {
		return fail(apperr.New(apperr.KindPolicyViolation, "guideline 策略要求回答必须引用检索到的段落"))
	}

	// 被取消的轮次不得留下任何痕迹
	if ctx.Err() != nil {
		return fail(apperr.Wrap(apperr.KindGenerationTimeout, "对话轮次被取消", ctx.Err()))
	}

	state = stateAnswered
	now := time.Now()
	userTurn := model.ChatTurn{Role: model.RoleUser, Text: text, Timestamp: now}
	assistantTurn := model.ChatTurn{Role: model.RoleAssistant, Text: answer, Citations: citations, Timestamp: now}

	// 使用后台上下文落库：请求取消已在上面拦截，成功生成的回答不应因落库时的取消而丢失
	if err := s.conversationRepo.AppendTurns(context.Background(), conversationID, userTurn, assistantTurn); err != nil {
		// 只记录错误，不返回给客户端，回答本身已经成功
		log.Errorf("[ChatService] 保存对话历史失败: %v", err)
	}

	log.Infof("[ChatService] 对话轮次完成, conversation: %s, policy: %s, 引用 %d 条", conversationID, policy, len(citations))
	return assistantTurn, nil
}

// generate 调用 LLM，writer 非空时走流式并同时捕获完整回答。
func (s *chatService) generate(ctx context.Context, messages []llm.Message, writer llm.MessageWriter) (string, error) {
	if writer == nil {
		answer, err := s.llmClient.Complete(ctx, messages, nil)
		if err != nil {
			return "", mapGenerationError(ctx, err)
		}
		return answer, nil
	}

	builder := &strings.Builder{}
	interceptor := &captureWriter{inner: writer, builder: builder}
	if err := s.llmClient.StreamChatMessages(ctx, messages, nil, interceptor); err != nil {
		return "", mapGenerationError(ctx, err)
	}
	return builder.String(), nil
}

// mapGenerationError 把生成失败归入错误分类：超时/取消可重试，其余为内部错误。
func mapGenerationError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperr.Wrap(apperr.KindGenerationTimeout, "生成调用超时或被取消", err)
	}
	return apperr.Wrap(apperr.KindInternal, "生成调用失败", err)
}

func (s *chatService) conversationLock(conversationID string) *fifoLock {
	v, _ := s.locks.LoadOrStore(conversationID, &fifoLock{})
	return v.(*fifoLock)
}

// fifoLock 是按到达顺序唤醒等待者的互斥锁。
// sync.Mutex 只保证互斥不保证公平，先提交的轮次可能被后来者插队；
// 这里显式排队，先 Lock 的调用者先拿到锁。
type fifoLock struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// Lock 获取锁；锁被占用时进入队尾等待。
func (l *fifoLock) Lock() {
	l.mu.Lock()
	if !l.busy {
		l.busy = true
		l.mu.Unlock()
		return
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()
	<-ready
}

// Unlock 释放锁并把锁直接移交给队首等待者。
func (l *fifoLock) Unlock() {
	l.mu.Lock()
	if len(l.waiters) == 0 {
		l.busy = false
		l.mu.Unlock()
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	l.mu.Unlock()
	close(next)
}

// queued 返回当前排队等待的调用者数量。
func (l *fifoLock) queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// captureWriter 在转发流式分块的同时捕获完整回答。
type captureWriter struct {
	inner   llm.MessageWriter
	builder *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *captureWriter) WriteMessage(messageType int, data []byte) error {
	w.builder.Write(data)
	return w.inner.WriteMessage(messageType, data)
}

// buildContextText 把检索结果编排成带编号的参考段落文本。
func buildContextText(retrieved model.RetrievalResult) string {
	if len(retrieved) == 0 {
		return ""
	}
	const maxSnippetLen = 1000
	var contextBuilder strings.Builder
	for i, sp := range retrieved {
		snippet := truncateRuneSafe(sp.Passage.Text, maxSnippetLen)
		sourceLabel := sp.Passage.ID
		if sp.Passage.Source == model.SourceLive {
			sourceLabel += " live"
		}
		contextBuilder.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, sourceLabel, snippet))
	}
	return contextBuilder.String()
}

// truncateRuneSafe 按字节上限截断文本，截断点回退到 rune 边界，
// 避免把多字节字符劈成非法 UTF-8 喂进提示词。
func truncateRuneSafe(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

// buildSystemMessage 按策略选择约束规则并包裹参考段落。
func buildSystemMessage(policy model.Policy, contextText string) string {
	prompt := config.Conf.LLM.Prompt

	rules := prompt.GuidelineRules
	if policy == model.PolicySpecialist {
		rules = prompt.SpecialistRules
	}
	if rules == "" {
		if policy == model.PolicyGuideline {
			rules = "你是一名评审助理。只允许依据下方参考段落回答，引用段落时必须使用 [编号] 标注；参考段落无法支持回答时要明确说明证据不足，禁止编造内容。"
		} else {
			rules = "你是一名领域专家评审。可以结合专家经验补充参考段落之外的分析，但凡引用参考段落必须使用 [编号] 标注，禁止虚构引用。"
		}
	}

	refStart := prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := prompt.NoResultText
		if noRes == "" {
			noRes = "（本轮无检索结果）"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

func composeMessages(systemMsg string, history []model.ChatTurn, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, turn := range history {
		msgs = append(msgs, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	msgs = append(msgs, llm.Message{Role: model.RoleUser, Content: userInput})
	return msgs
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// deriveCitations 从回答文本中反解 [编号] 标注并映射回检索结果。
// 超出范围的编号被直接丢弃，引用列表因此只可能是本轮检索结果的子集。
func deriveCitations(answer string, retrieved model.RetrievalResult) []string {
	matches := citationMarker.FindAllStringSubmatch(answer, -1)
	seen := make(map[string]struct{})
	var citations []string
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(retrieved) {
			continue
		}
		id := retrieved[idx-1].Passage.ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		citations = append(citations, id)
	}
	return citations
}
