package service

import (
	"context"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorePairIdenticalVectors(t *testing.T) {
	svc := NewSimilarityService(testSnapshot(), &fakeEmbedding{})

	verdict, err := svc.ScorePair(context.Background(),
		SimilarityInput{ID: "a", Vector: []float32{1, 2, 3}},
		SimilarityInput{ID: "b", Vector: []float32{1, 2, 3}},
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, verdict.Score, 1e-9)
	assert.Equal(t, "embedding-cosine", verdict.Method)
}

func TestScorePairDeterministic(t *testing.T) {
	svc := NewSimilarityService(testSnapshot(), &fakeEmbedding{})
	a := SimilarityInput{ID: "a", Vector: []float32{1, 0, 1}}
	b := SimilarityInput{ID: "b", Vector: []float32{0, 1, 1}}

	first, err := svc.ScorePair(context.Background(), a, b)
	require.NoError(t, err)
	second, err := svc.ScorePair(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScorePairEmbedsMissingVector(t *testing.T) {
	embedder := &fakeEmbedding{vectors: map[string][]float32{
		"某段文本": {0, 1, 0},
	}}
	svc := NewSimilarityService(testSnapshot(), embedder)

	verdict, err := svc.ScorePair(context.Background(),
		SimilarityInput{ID: "a", Text: "某段文本"},
		SimilarityInput{ID: "b", Vector: []float32{0, 1, 0}},
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, verdict.Score, 1e-9)
}

func TestScorePairEmbeddingUnavailable(t *testing.T) {
	svc := NewSimilarityService(testSnapshot(), &fakeEmbedding{fail: true})

	_, err := svc.ScorePair(context.Background(),
		SimilarityInput{ID: "a", Text: "需要向量化"},
		SimilarityInput{ID: "b", Vector: []float32{1, 0, 0}},
	)
	require.Error(t, err)
	assert.Equal(t, apperr.KindEmbeddingUnavailable, apperr.KindOf(err))
}

func TestScoreAgainstCorpusOrdering(t *testing.T) {
	svc := NewSimilarityService(testSnapshot(), &fakeEmbedding{})

	verdicts, err := svc.ScoreAgainstCorpus(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}}, "guidelines")
	require.NoError(t, err)
	require.Len(t, verdicts, 3)

	assert.Equal(t, "a#000", verdicts[0].ReferenceID)
	for i := 1; i < len(verdicts); i++ {
		assert.GreaterOrEqual(t, verdicts[i-1].Score, verdicts[i].Score)
	}
	for _, v := range verdicts {
		assert.GreaterOrEqual(t, v.Score, 0.0)
		assert.LessOrEqual(t, v.Score, 1.0)
	}
}

func TestScoreAgainstCorpusUnknownScope(t *testing.T) {
	svc := NewSimilarityService(testSnapshot(), &fakeEmbedding{})

	_, err := svc.ScoreAgainstCorpus(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}}, "nope")
	assert.Equal(t, apperr.KindCorpusUnavailable, apperr.KindOf(err))
}

func TestScoreAgainstPassagesTieBreak(t *testing.T) {
	svc := NewSimilarityService(testSnapshot(), &fakeEmbedding{})

	verdicts, err := svc.ScoreAgainstPassages(context.Background(),
		SimilarityInput{ID: "doc", Vector: []float32{1, 0, 0}},
		[]model.Passage{
			{ID: "p#001", Vector: []float32{1, 0, 0}},
			{ID: "p#000", Vector: []float32{1, 0, 0}},
		})
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	assert.Equal(t, "p#000", verdicts[0].ReferenceID)
	assert.Equal(t, "p#001", verdicts[1].ReferenceID)
}

func TestDocumentInputUsesFullText(t *testing.T) {
	doc := model.Document{
		ID: "d1",
		Sections: []model.Section{
			{Text: "第一段"},
			{Text: "第二段"},
		},
	}
	in := DocumentInput(doc)
	assert.Equal(t, "d1", in.ID)
	assert.Equal(t, "第一段\n第二段", in.Text)
}
