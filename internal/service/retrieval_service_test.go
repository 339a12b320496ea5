package service

import (
	"context"
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/corpus"
	"prop-eval-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *corpus.Snapshot {
	return corpus.NewSnapshot(map[string][]model.Passage{
		"guidelines": {
			{ID: "a#000", Text: "x 轴", Vector: []float32{1, 0, 0}, Source: model.SourceCorpus},
			{ID: "a#001", Text: "y 轴", Vector: []float32{0, 1, 0}, Source: model.SourceCorpus},
			{ID: "a#002", Text: "斜向", Vector: []float32{1, 1, 0}, Source: model.SourceCorpus},
		},
		"empty": {},
	})
}

func TestRetrieveOrdering(t *testing.T) {
	svc := NewRetrievalService(testSnapshot())

	result, err := svc.Retrieve(context.Background(), []float32{1, 0, 0}, "guidelines", 10)
	require.NoError(t, err)
	require.Len(t, result, 3)

	// 相关度降序
	assert.Equal(t, "a#000", result[0].Passage.ID)
	for i := 1; i < len(result); i++ {
		assert.GreaterOrEqual(t, result[i-1].Score, result[i].Score)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	svc := NewRetrievalService(testSnapshot())
	query := []float32{1, 1, 0}

	first, err := svc.Retrieve(context.Background(), query, "guidelines", 10)
	require.NoError(t, err)
	second, err := svc.Retrieve(context.Background(), query, "guidelines", 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRetrieveTieBreakByPassageID(t *testing.T) {
	snapshot := corpus.NewSnapshot(map[string][]model.Passage{
		"guidelines": {
			{ID: "b#001", Vector: []float32{0, 1, 0}},
			{ID: "b#000", Vector: []float32{0, 1, 0}},
		},
	})
	svc := NewRetrievalService(snapshot)

	result, err := svc.Retrieve(context.Background(), []float32{0, 1, 0}, "guidelines", 10)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, result[0].Score, result[1].Score)
	assert.Equal(t, "b#000", result[0].Passage.ID)
	assert.Equal(t, "b#001", result[1].Passage.ID)
}

func TestRetrieveTopK(t *testing.T) {
	svc := NewRetrievalService(testSnapshot())

	result, err := svc.Retrieve(context.Background(), []float32{1, 0, 0}, "guidelines", 2)
	require.NoError(t, err)
	assert.Len(t, result, 2)
}

func TestRetrieveUnknownScope(t *testing.T) {
	svc := NewRetrievalService(testSnapshot())

	_, err := svc.Retrieve(context.Background(), []float32{1, 0, 0}, "nope", 10)
	require.Error(t, err)
	assert.Equal(t, apperr.KindCorpusUnavailable, apperr.KindOf(err))
}

func TestRetrieveDeclaredEmptyScope(t *testing.T) {
	svc := NewRetrievalService(testSnapshot())

	result, err := svc.Retrieve(context.Background(), []float32{1, 0, 0}, "empty", 10)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestRetrieveInvalidArguments(t *testing.T) {
	svc := NewRetrievalService(testSnapshot())

	_, err := svc.Retrieve(context.Background(), []float32{1, 0, 0}, "guidelines", 0)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = svc.Retrieve(context.Background(), nil, "guidelines", 10)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}
