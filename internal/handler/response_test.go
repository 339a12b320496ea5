package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"prop-eval-go/internal/apperr"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSuccessEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Success(c, gin.H{"value": 1})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code": 200, "message": "success", "data": {"value": 1}}`, w.Body.String())
}

func TestFailMapsKindToStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Fail(c, apperr.New(apperr.KindCorpusUnavailable, "作用域不存在"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error_kind": "CorpusUnavailableError", "message": "作用域不存在"}`, w.Body.String())
}

func TestFailUnclassifiedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Fail(c, errors.New("数据库抖动"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "InternalError")
	// 未分类错误不向客户端泄露内部细节
	assert.NotContains(t, w.Body.String(), "数据库抖动")
}
