// Package service 提供了检索相关的业务逻辑。
package service

import (
	"context"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/corpus"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/log"
	"sort"
)

// RetrievalService 接口定义了对语料快照的向量检索。
type RetrievalService interface {
	Retrieve(ctx context.Context, queryVector []float32, corpusScope string, topK int) (model.RetrievalResult, error)
}

type retrievalService struct {
	snapshot *corpus.Snapshot
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
// 快照在启动时装载且只读，检索是纯内存计算，不会阻塞在 I/O 上。
func NewRetrievalService(snapshot *corpus.Snapshot) RetrievalService {
	return &retrievalService{snapshot: snapshot}
}

// Retrieve 在指定作用域内做余弦相似度检索。
// 结果按相关度降序排列，同分时按 Passage ID 升序，保证可复现。
func (s *retrievalService) Retrieve(ctx context.Context, queryVector []float32, corpusScope string, topK int) (model.RetrievalResult, error) {
	if topK <= 0 {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "topK 必须为正整数, 收到: %d", topK)
	}
	if len(queryVector) == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "查询向量为空")
	}

	passages, ok := s.snapshot.Passages(corpusScope)
	if !ok {
		return nil, apperr.Newf(apperr.KindCorpusUnavailable, "作用域 '%s' 未声明任何语料索引", corpusScope)
	}

	result := make(model.RetrievalResult, 0, len(passages))
	for _, p := range passages {
		score := corpus.Relevance(corpus.Cosine(queryVector, p.Vector))
		result = append(result, model.ScoredPassage{Passage: p, Score: score})
	}

	SortByScore(result)
	if len(result) > topK {
		result = result[:topK]
	}

	log.Infof("[RetrievalService] 检索完成, scope: %s, topK: %d, 命中 %d 条", corpusScope, topK, len(result))
	return result, nil
}

// SortByScore 按相关度降序、同分 Passage ID 升序排序。
// RetrievalResult 的排序不变式集中在这里维护，live 合并也复用它。
func SortByScore(result model.RetrievalResult) {
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Passage.ID < result[j].Passage.ID
	})
}
