package service

import (
	"context"
	"errors"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/llm"
	"prop-eval-go/pkg/websearch"
	"sync"
	"sync/atomic"
	"time"
)

// fakeEmbedding 按文本查表返回向量，未登记的文本返回固定向量。
type fakeEmbedding struct {
	vectors map[string][]float32
	fail    bool
}

func (f *fakeEmbedding) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

// fakeLLM 返回固定回答，可配置延迟、阻塞到取消或直接失败，
// 并记录并发调用数以验证串行化。
type fakeLLM struct {
	response string
	err      error
	delay    time.Duration
	blockCtx bool

	calls       int32
	inFlight    int32
	maxParallel int32
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxParallel)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxParallel, max, cur) {
			break
		}
	}

	if f.blockCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	answer, err := f.Complete(ctx, messages, gen)
	if err != nil {
		return err
	}
	return writer.WriteMessage(1, []byte(answer))
}

// memoryConversationRepo 是线程安全的内存对话存储。
type memoryConversationRepo struct {
	mu    sync.Mutex
	turns map[string][]model.ChatTurn
}

func newMemoryConversationRepo() *memoryConversationRepo {
	return &memoryConversationRepo{turns: make(map[string][]model.ChatTurn)}
}

func (r *memoryConversationRepo) GetHistory(ctx context.Context, conversationID string) ([]model.ChatTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]model.ChatTurn, len(r.turns[conversationID]))
	copy(history, r.turns[conversationID])
	return history, nil
}

func (r *memoryConversationRepo) AppendTurns(ctx context.Context, conversationID string, turns ...model.ChatTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[conversationID] = append(r.turns[conversationID], turns...)
	return nil
}

// fakeSearch 返回固定的在线检索结果。
type fakeSearch struct {
	results []websearch.Result
	fail    bool
}

func (f *fakeSearch) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	if f.fail {
		return nil, errors.New("search backend down")
	}
	return f.results, nil
}
