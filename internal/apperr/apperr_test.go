package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindMalformedDocument:         http.StatusBadRequest,
		KindInvalidArgument:           http.StatusBadRequest,
		KindCorpusUnavailable:         http.StatusNotFound,
		KindEmbeddingUnavailable:      http.StatusServiceUnavailable,
		KindGenerationTimeout:         http.StatusServiceUnavailable,
		KindExternalSearchUnavailable: http.StatusServiceUnavailable,
		KindExtractionValidation:      http.StatusUnprocessableEntity,
		KindInsufficientEvidence:      http.StatusUnprocessableEntity,
		KindPolicyViolation:           http.StatusInternalServerError,
		KindInternal:                  http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), string(kind))
	}
}

func TestKindOf(t *testing.T) {
	err := New(KindCorpusUnavailable, "作用域不存在")
	assert.Equal(t, KindCorpusUnavailable, KindOf(err))

	wrapped := fmt.Errorf("外层: %w", err)
	assert.Equal(t, KindCorpusUnavailable, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("裸错误")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindEmbeddingUnavailable, "向量化失败", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "向量化失败", MessageOf(err))
	assert.Contains(t, err.Error(), "EmbeddingUnavailableError")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindCorpusUnavailable))
	assert.True(t, Retryable(KindGenerationTimeout))
	assert.False(t, Retryable(KindPolicyViolation))
	assert.False(t, Retryable(KindMalformedDocument))
	assert.False(t, Retryable(KindInternal))
}

func TestIs(t *testing.T) {
	err := Newf(KindInvalidArgument, "topK 必须为正整数, 收到: %d", -1)
	assert.True(t, Is(err, KindInvalidArgument))
	assert.False(t, Is(err, KindInternal))
}
