package service

import (
	"context"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/model"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScoreFixture(llmFake *fakeLLM) ScoreService {
	snapshot := testSnapshot()
	embedder := &fakeEmbedding{}
	similarity := NewSimilarityService(snapshot, embedder)
	retrieval := NewRetrievalService(snapshot)
	return NewScoreService(snapshot, similarity, retrieval, embedder, llmFake, 10)
}

func TestNoveltyValue(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: "与历史方案高度重合。"})

	result, err := svc.Novelty(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}}, "guidelines", nil)
	require.NoError(t, err)

	// 与 a#000 完全相同，新颖度为 0
	assert.Equal(t, model.ScoreKindNovelty, result.Kind)
	assert.InDelta(t, 0.0, result.Value, 1e-9)
	assert.Equal(t, "ratio", result.Unit)
	assert.Contains(t, result.Supporting, "a#000")
}

func TestNoveltyMidValue(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: "存在一定差异。"})

	result, err := svc.Novelty(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 1, 1}}, "guidelines", nil)
	require.NoError(t, err)
	assert.Greater(t, result.Value, 0.0)
	assert.Less(t, result.Value, 1.0)
}

func TestNoveltyInsufficientEvidence(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: "n/a"})

	_, err := svc.Novelty(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}}, "empty", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInsufficientEvidence, apperr.KindOf(err))
}

func TestNoveltyExtraPassagesCountAsEvidence(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: "在线材料有重合。"})

	result, err := svc.Novelty(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}}, "empty",
		[]model.Passage{{ID: "live#001", Vector: []float32{1, 0, 0}, Source: model.SourceLive}})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, result.Value, 1e-9)
	assert.Contains(t, result.Supporting, "live#001")
}

func TestPlagiarismBelowThresholdIsZero(t *testing.T) {
	llmFake := &fakeLLM{response: "不应被调用"}
	svc := newScoreFixture(llmFake)

	// 与所有参考段落正交，最大相似度归一化后为 0
	result, err := svc.Plagiarism(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{0, 0, 1}}, "guidelines", nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Value)
	assert.Empty(t, result.Supporting)
	assert.NotEmpty(t, result.Rationale)
	// 低于阈值的平凡结论不触发生成调用
	assert.Equal(t, int32(0), atomic.LoadInt32(&llmFake.calls))
}

func TestPlagiarismAboveThreshold(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: "与 a#000 高度一致。"})

	result, err := svc.Plagiarism(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}}, "guidelines", nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Value, 1e-9)
	assert.Equal(t, []string{"a#000"}, result.Supporting)
}

func TestPlagiarismUnknownScope(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: "n/a"})

	_, err := svc.Plagiarism(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}}, "nope", nil)
	assert.Equal(t, apperr.KindCorpusUnavailable, apperr.KindOf(err))
}

func TestCostSupportedEstimate(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: `{"amount": 5000, "currency": "CNY", "rationale": "依据参考段落估算", "supported_refs": ["a#000"]}`})

	result, err := svc.Cost(context.Background(), costTestDoc(), "guidelines", nil)
	require.NoError(t, err)

	assert.Equal(t, model.ScoreKindCost, result.Kind)
	assert.Equal(t, 5000.0, result.Value)
	assert.Equal(t, "CNY", result.Unit)
	assert.Equal(t, []string{"a#000"}, result.Supporting)
	assert.False(t, strings.HasPrefix(result.Rationale, "[unsupported estimate]"))
}

func TestCostUnsupportedEstimateTagged(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: `{"amount": 5000, "currency": "CNY", "rationale": "凭经验估算", "supported_refs": ["bogus#000"]}`})

	result, err := svc.Cost(context.Background(), costTestDoc(), "guidelines", nil)
	require.NoError(t, err)

	// 编造的引用被丢弃，估算被标记为无支撑
	assert.Empty(t, result.Supporting)
	assert.True(t, strings.HasPrefix(result.Rationale, "[unsupported estimate]"))
}

func TestCostOutOfRangeRejected(t *testing.T) {
	oldMax := config.Conf.Scoring.CostMaxAmount
	config.Conf.Scoring.CostMaxAmount = 1000
	defer func() { config.Conf.Scoring.CostMaxAmount = oldMax }()

	svc := newScoreFixture(&fakeLLM{response: `{"amount": 5000, "currency": "CNY", "rationale": "估算", "supported_refs": []}`})

	_, err := svc.Cost(context.Background(), costTestDoc(), "guidelines", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtractionValidation, apperr.KindOf(err))
}

func TestCostNegativeAmountRejected(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: `{"amount": -1, "currency": "CNY", "rationale": "估算", "supported_refs": []}`})

	_, err := svc.Cost(context.Background(), costTestDoc(), "guidelines", nil)
	assert.Equal(t, apperr.KindExtractionValidation, apperr.KindOf(err))
}

func TestCostInsufficientEvidence(t *testing.T) {
	llmFake := &fakeLLM{response: `{"amount": 5000, "currency": "CNY", "rationale": "凭空估算", "supported_refs": []}`}
	svc := newScoreFixture(llmFake)

	_, err := svc.Cost(context.Background(), costTestDoc(), "empty", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInsufficientEvidence, apperr.KindOf(err))
	// 零证据时不允许触达生成模型
	assert.Equal(t, int32(0), atomic.LoadInt32(&llmFake.calls))
}

func TestCostExtraPassagesCountAsEvidence(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: `{"amount": 5000, "currency": "CNY", "rationale": "依据在线材料估算", "supported_refs": ["live#001"]}`})

	result, err := svc.Cost(context.Background(), costTestDoc(), "empty",
		[]model.Passage{{ID: "live#001", Text: "同类项目预算五千元。", Vector: []float32{1, 0, 0}, Source: model.SourceLive}})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, result.Value)
	assert.Equal(t, []string{"live#001"}, result.Supporting)
}

func TestCostInvalidJSONRejected(t *testing.T) {
	svc := newScoreFixture(&fakeLLM{response: "大约五千元吧"})

	_, err := svc.Cost(context.Background(), costTestDoc(), "guidelines", nil)
	assert.Equal(t, apperr.KindExtractionValidation, apperr.KindOf(err))
}

func costTestDoc() model.Document {
	return model.Document{
		ID:       "doc1",
		Sections: []model.Section{{Text: "项目预算方案。"}},
	}
}
