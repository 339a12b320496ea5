package service

import (
	"context"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/corpus"
	"prop-eval-go/internal/model"
	"prop-eval-go/pkg/embedding"
	"prop-eval-go/pkg/log"
	"sort"
)

// 相似度判定使用的方法标记。
const similarityMethod = "embedding-cosine"

// SimilarityInput 是相似度计算的一侧输入：一个 Passage 或一篇 Document。
// Vector 缺失时按需向量化。
type SimilarityInput struct {
	ID     string
	Text   string
	Vector []float32
}

// PassageInput 从 Passage 构造相似度输入。
func PassageInput(p model.Passage) SimilarityInput {
	return SimilarityInput{ID: p.ID, Text: p.Text, Vector: p.Vector}
}

// DocumentInput 从 Document 构造相似度输入（整篇正文）。
func DocumentInput(d model.Document) SimilarityInput {
	return SimilarityInput{ID: d.ID, Text: d.Text()}
}

// SimilarityService 定义了向量相似度评分的操作。
type SimilarityService interface {
	ScorePair(ctx context.Context, a, b SimilarityInput) (model.SimilarityVerdict, error)
	ScoreAgainstCorpus(ctx context.Context, doc SimilarityInput, corpusScope string) ([]model.SimilarityVerdict, error)
	ScoreAgainstPassages(ctx context.Context, doc SimilarityInput, passages []model.Passage) ([]model.SimilarityVerdict, error)
}

type similarityService struct {
	snapshot        *corpus.Snapshot
	embeddingClient embedding.Client
}

// NewSimilarityService 创建一个新的 SimilarityService 实例。
func NewSimilarityService(snapshot *corpus.Snapshot, embeddingClient embedding.Client) SimilarityService {
	return &similarityService{
		snapshot:        snapshot,
		embeddingClient: embeddingClient,
	}
}

// ScorePair 计算两个输入之间的相似度判定。相同向量输入下结果确定。
func (s *similarityService) ScorePair(ctx context.Context, a, b SimilarityInput) (model.SimilarityVerdict, error) {
	va, err := s.resolveVector(ctx, a)
	if err != nil {
		return model.SimilarityVerdict{}, err
	}
	vb, err := s.resolveVector(ctx, b)
	if err != nil {
		return model.SimilarityVerdict{}, err
	}

	score := corpus.Clamp01(corpus.Cosine(va, vb))
	return model.SimilarityVerdict{
		SourceID:    a.ID,
		ReferenceID: b.ID,
		Score:       score,
		Method:      similarityMethod,
	}, nil
}

// ScoreAgainstCorpus 计算输入与某作用域全部段落的相似度，按分数降序返回。
func (s *similarityService) ScoreAgainstCorpus(ctx context.Context, doc SimilarityInput, corpusScope string) ([]model.SimilarityVerdict, error) {
	passages, ok := s.snapshot.Passages(corpusScope)
	if !ok {
		return nil, apperr.Newf(apperr.KindCorpusUnavailable, "作用域 '%s' 未声明任何语料索引", corpusScope)
	}
	return s.ScoreAgainstPassages(ctx, doc, passages)
}

// ScoreAgainstPassages 计算输入与给定段落集的相似度，按分数降序、同分 ID 升序返回。
func (s *similarityService) ScoreAgainstPassages(ctx context.Context, doc SimilarityInput, passages []model.Passage) ([]model.SimilarityVerdict, error) {
	docVector, err := s.resolveVector(ctx, doc)
	if err != nil {
		return nil, err
	}

	verdicts := make([]model.SimilarityVerdict, 0, len(passages))
	for _, p := range passages {
		refVector := p.Vector
		if len(refVector) == 0 {
			refVector, err = s.embed(ctx, p.ID, p.Text)
			if err != nil {
				return nil, err
			}
		}
		verdicts = append(verdicts, model.SimilarityVerdict{
			SourceID:    doc.ID,
			ReferenceID: p.ID,
			Score:       corpus.Clamp01(corpus.Cosine(docVector, refVector)),
			Method:      similarityMethod,
		})
	}

	sort.SliceStable(verdicts, func(i, j int) bool {
		if verdicts[i].Score != verdicts[j].Score {
			return verdicts[i].Score > verdicts[j].Score
		}
		return verdicts[i].ReferenceID < verdicts[j].ReferenceID
	})

	log.Infof("[SimilarityService] 相似度计算完成, source: %s, 对比 %d 个段落", doc.ID, len(verdicts))
	return verdicts, nil
}

// resolveVector 返回输入的向量，缺失时按需向量化。
func (s *similarityService) resolveVector(ctx context.Context, in SimilarityInput) ([]float32, error) {
	if len(in.Vector) > 0 {
		return in.Vector, nil
	}
	return s.embed(ctx, in.ID, in.Text)
}

func (s *similarityService) embed(ctx context.Context, id, text string) ([]float32, error) {
	if text == "" {
		return nil, apperr.Newf(apperr.KindEmbeddingUnavailable, "输入 '%s' 既没有预计算向量也没有可向量化的文本", id)
	}
	vector, err := s.embeddingClient.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbeddingUnavailable, "按需向量化失败", err)
	}
	return vector, nil
}
