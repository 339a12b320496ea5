package service

import (
	"context"
	"fmt"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatFixture(llmFake *fakeLLM) (ChatService, *memoryConversationRepo) {
	repo := newMemoryConversationRepo()
	retrieval := NewRetrievalService(testSnapshot())
	svc := NewChatService(retrieval, &fakeEmbedding{}, llmFake, repo, 10)
	return svc, repo
}

func TestChatCitationsDerivedFromMarkers(t *testing.T) {
	svc, _ := newChatFixture(&fakeLLM{response: "依据 [1] 和 [2]，再次强调 [1]，另见 [9]。"})

	turn, err := svc.Respond(context.Background(), "c1", "评审意见？", model.PolicyGuideline, "guidelines")
	require.NoError(t, err)

	// [1]/[2] 映射到检索结果，重复与越界编号被丢弃
	assert.Equal(t, []string{"a#000", "a#002"}, turn.Citations)
	assert.Equal(t, model.RoleAssistant, turn.Role)
}

func TestChatGuidelineWithoutCitationFails(t *testing.T) {
	svc, repo := newChatFixture(&fakeLLM{response: "这是一个没有任何引用的回答。"})

	_, err := svc.Respond(context.Background(), "c1", "评审意见？", model.PolicyGuideline, "guidelines")
	require.Error(t, err)
	assert.Equal(t, apperr.KindPolicyViolation, apperr.KindOf(err))

	// 失败的轮次不得写入历史
	history, _ := repo.GetHistory(context.Background(), "c1")
	assert.Empty(t, history)
}

func TestChatSpecialistWithoutCitationSucceeds(t *testing.T) {
	svc, _ := newChatFixture(&fakeLLM{response: "依据专家经验给出的补充分析。"})

	turn, err := svc.Respond(context.Background(), "c1", "评审意见？", model.PolicySpecialist, "guidelines")
	require.NoError(t, err)
	assert.Empty(t, turn.Citations)
}

func TestChatGuidelineEmptyRetrievalAllowed(t *testing.T) {
	svc, _ := newChatFixture(&fakeLLM{response: "参考材料不足，无法给出结论。"})

	turn, err := svc.Respond(context.Background(), "c1", "评审意见？", model.PolicyGuideline, "empty")
	require.NoError(t, err)
	assert.Empty(t, turn.Citations)
}

func TestChatPersistsTurnsInOrder(t *testing.T) {
	svc, repo := newChatFixture(&fakeLLM{response: "见 [1]。"})

	_, err := svc.Respond(context.Background(), "c1", "第一问", model.PolicyGuideline, "guidelines")
	require.NoError(t, err)

	history, err := repo.GetHistory(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "第一问", history[0].Text)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, []string{"a#000"}, history[1].Citations)
}

func TestChatSameConversationSerialized(t *testing.T) {
	llmFake := &fakeLLM{response: "见 [1]。", delay: 20 * time.Millisecond}
	svc, repo := newChatFixture(llmFake)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Respond(context.Background(), "c1", fmt.Sprintf("问题 %d", i), model.PolicyGuideline, "guidelines")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// 同一对话的生成调用绝不并发
	assert.Equal(t, int32(1), atomic.LoadInt32(&llmFake.maxParallel))

	history, _ := repo.GetHistory(context.Background(), "c1")
	assert.Len(t, history, 8)
}

func TestConversationLockHandsOffInOrder(t *testing.T) {
	var l fifoLock
	l.Lock()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Lock()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.Unlock()
		}(i)
		// 等上一个调用者入队后再提交下一个，固定提交顺序
		for l.queued() < i+1 {
			time.Sleep(time.Millisecond)
		}
	}

	l.Unlock()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBuildContextTextTruncatesOnRuneBoundary(t *testing.T) {
	// 每个汉字 3 字节，1000 字节上限落在字符中间
	text := strings.Repeat("评审材料正文内容。", 200)
	retrieved := model.RetrievalResult{
		{Passage: model.Passage{ID: "p#000", Text: text}},
	}

	contextText := buildContextText(retrieved)
	assert.True(t, utf8.ValidString(contextText))
	assert.Contains(t, contextText, "…")
	assert.Less(t, len(contextText), len(text))
}

func TestTruncateRuneSafe(t *testing.T) {
	assert.Equal(t, "短文本", truncateRuneSafe("短文本", 100))

	truncated := truncateRuneSafe("评审意见", 7)
	// 7 字节落在第三个汉字中间，回退到第二个汉字末尾
	assert.Equal(t, "评审…", truncated)
	assert.True(t, utf8.ValidString(truncated))
}

func TestChatCancelledTurnLeavesNoTrace(t *testing.T) {
	svc, repo := newChatFixture(&fakeLLM{blockCtx: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Respond(ctx, "c1", "会被取消的问题", model.PolicyGuideline, "guidelines")
	require.Error(t, err)
	assert.Equal(t, apperr.KindGenerationTimeout, apperr.KindOf(err))

	history, _ := repo.GetHistory(context.Background(), "c1")
	assert.Empty(t, history)
}

func TestChatDeadlineExceeded(t *testing.T) {
	svc, _ := newChatFixture(&fakeLLM{blockCtx: true})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := svc.Respond(ctx, "c1", "会超时的问题", model.PolicyGuideline, "guidelines")
	require.Error(t, err)
	assert.Equal(t, apperr.KindGenerationTimeout, apperr.KindOf(err))
}

func TestChatInvalidInput(t *testing.T) {
	svc, _ := newChatFixture(&fakeLLM{response: "ok"})

	_, err := svc.Respond(context.Background(), "c1", "问题", model.Policy("nope"), "guidelines")
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = svc.Respond(context.Background(), "c1", "   ", model.PolicyGuideline, "guidelines")
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestChatEmbeddingUnavailable(t *testing.T) {
	repo := newMemoryConversationRepo()
	svc := NewChatService(NewRetrievalService(testSnapshot()), &fakeEmbedding{fail: true}, &fakeLLM{response: "ok"}, repo, 10)

	_, err := svc.Respond(context.Background(), "c1", "问题", model.PolicyGuideline, "guidelines")
	assert.Equal(t, apperr.KindEmbeddingUnavailable, apperr.KindOf(err))
}

func TestChatUnknownScope(t *testing.T) {
	svc, _ := newChatFixture(&fakeLLM{response: "ok"})

	_, err := svc.Respond(context.Background(), "c1", "问题", model.PolicyGuideline, "nope")
	assert.Equal(t, apperr.KindCorpusUnavailable, apperr.KindOf(err))
}

func TestDeriveCitationsSubsetInvariant(t *testing.T) {
	retrieved := model.RetrievalResult{
		{Passage: model.Passage{ID: "p#000"}},
		{Passage: model.Passage{ID: "p#001"}},
	}
	citations := deriveCitations("[2] 优先，[1] 其次，[3] 不存在，[0] 非法", retrieved)
	assert.Equal(t, []string{"p#001", "p#000"}, citations)

	assert.Empty(t, deriveCitations("没有标注", retrieved))
	assert.Empty(t, deriveCitations("[1]", nil))
}
