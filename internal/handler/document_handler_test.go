package handler

import (
	"net/http"
	"net/http/httptest"
	"prop-eval-go/internal/service"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newDocumentRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewDocumentHandler(service.NewDocumentService())
	r.POST("/api/v1/documents", h.Ingest)
	r.GET("/api/v1/documents/:id", h.Get)
	return r
}

func TestDocumentIngestEndpoint(t *testing.T) {
	r := newDocumentRouter()
	body := `{"text": "# 背景\n正文内容。", "title": "测试方案"}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"success"`)
	assert.Contains(t, w.Body.String(), "背景")
}

func TestDocumentIngestMalformed(t *testing.T) {
	r := newDocumentRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"text": "   "}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MalformedDocumentError")
}

func TestDocumentGetMissing(t *testing.T) {
	r := newDocumentRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/none", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "InvalidArgumentError")
}
