package service

import (
	"context"
	"fmt"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/corpus"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/embedding"
	"prop-eval-go/pkg/log"
	"prop-eval-go/pkg/websearch"
	"strings"
)

// LiveService 定义了在线检索增强的操作。
// 在线结果以临时 Passage 的形式并入本轮结果，Source 标记为 live，
// 绝不写入语料快照或任何持久化存储。
type LiveService interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
	FetchPassages(ctx context.Context, query string) ([]model.Passage, error)
	Augment(ctx context.Context, query string, queryVector []float32, local model.RetrievalResult) (model.RetrievalResult, error)
}

type liveService struct {
	searchClient    websearch.Client
	embeddingClient embedding.Client
	maxResults      int
}

// NewLiveService 创建一个新的 LiveService 实例。
func NewLiveService(searchClient websearch.Client, embeddingClient embedding.Client, maxResults int) LiveService {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &liveService{
		searchClient:    searchClient,
		embeddingClient: embeddingClient,
		maxResults:      maxResults,
	}
}

// Search 执行一次在线检索，失败时归入 ExternalSearchUnavailable。
func (s *liveService) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "在线检索的查询为空")
	}
	results, err := s.searchClient.Search(ctx, query, s.maxResults)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalSearchUnavailable, "在线检索服务不可用", err)
	}
	return results, nil
}

// FetchPassages 在线检索并把结果向量化为临时 Passage。
func (s *liveService) FetchPassages(ctx context.Context, query string) ([]model.Passage, error) {
	results, err := s.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	passages := make([]model.Passage, 0, len(results))
	for i, r := range results {
		snippet := strings.TrimSpace(r.Content)
		if snippet == "" {
			snippet = strings.TrimSpace(r.Title)
		}
		if snippet == "" {
			continue
		}
		vector, err := s.embeddingClient.CreateEmbedding(ctx, snippet)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindEmbeddingUnavailable, "在线结果向量化失败", err)
		}
		passages = append(passages, model.Passage{
			ID:         fmt.Sprintf("live#%03d", i+1),
			DocumentID: r.URL,
			Text:       snippet,
			Vector:     vector,
			Source:     model.SourceLive,
		})
	}
	return passages, nil
}

// Augment 把在线结果向量化后并入本地检索结果，整体重排后返回。
// 本地结果不会被修改；在线段落与本地段落遵循同一套排序规则。
func (s *liveService) Augment(ctx context.Context, query string, queryVector []float32, local model.RetrievalResult) (model.RetrievalResult, error) {
	livePassages, err := s.FetchPassages(ctx, query)
	if err != nil {
		return nil, err
	}

	merged := make(model.RetrievalResult, 0, len(local)+len(livePassages))
	merged = append(merged, local...)
	for _, p := range livePassages {
		merged = append(merged, model.ScoredPassage{
			Passage: p,
			Score:   corpus.Relevance(corpus.Cosine(queryVector, p.Vector)),
		})
	}

	SortByScore(merged)
	log.Infof("[LiveService] 在线增强完成, 本地 %d 条, 在线并入 %d 条", len(local), len(livePassages))
	return merged, nil
}
