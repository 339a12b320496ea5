package handler

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/log"
	"time"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 处理临时评审文档的入库与查询。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// documentRequest 是提交评审文档的请求体。
type documentRequest struct {
	Text        string `json:"text" binding:"required"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	SubmittedAt string `json:"submittedAt"`
}

func (r documentRequest) metadata() model.Metadata {
	meta := model.Metadata{
		Title:    r.Title,
		Author:   r.Author,
		Category: r.Category,
	}
	if r.SubmittedAt != "" {
		if t, err := time.Parse(time.RFC3339, r.SubmittedAt); err == nil {
			meta.SubmittedAt = t
		}
	}
	return meta
}

// Ingest 处理评审文档的提交，返回切分后的规范化文档。
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err))
		return
	}

	doc, err := h.documentService.Ingest(req.Text, req.metadata())
	if err != nil {
		log.Warnf("[DocumentHandler] 文档入库失败: %v", err)
		Fail(c, err)
		return
	}
	Success(c, doc)
}

// Get 按 ID 返回已入库的评审文档。
func (h *DocumentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	doc, ok := h.documentService.Get(id)
	if !ok {
		Fail(c, apperr.Newf(apperr.KindInvalidArgument, "文档 '%s' 不存在或已过期", id))
		return
	}
	Success(c, doc)
}

// resolveDocument 解析请求中的文档：优先使用 document_id 引用已入库文档，
// 否则用内联 text 现场入库。
func resolveDocument(documentService service.DocumentService, documentID, text string, meta model.Metadata) (model.Document, error) {
	if documentID != "" {
		doc, ok := documentService.Get(documentID)
		if !ok {
			return model.Document{}, apperr.Newf(apperr.KindInvalidArgument, "文档 '%s' 不存在或已过期", documentID)
		}
		return doc, nil
	}
	if text == "" {
		return model.Document{}, apperr.New(apperr.KindInvalidArgument, "必须提供 documentId 或 text")
	}
	return documentService.Ingest(text, meta)
}
