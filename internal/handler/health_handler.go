package handler

import (
	"prop-eval-go/internal/corpus"

	"github.com/gin-gonic/gin"
)

// HealthHandler 提供存活探针。
type HealthHandler struct {
	snapshot *corpus.Snapshot
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(snapshot *corpus.Snapshot) *HealthHandler {
	return &HealthHandler{snapshot: snapshot}
}

// Check 返回服务状态与已装载的语料作用域。
func (h *HealthHandler) Check(c *gin.Context) {
	Success(c, gin.H{
		"status": "ok",
		"scopes": h.snapshot.Scopes(),
	})
}
