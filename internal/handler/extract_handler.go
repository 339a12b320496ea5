package handler

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ExtractHandler 处理结构化抽取与时间线请求。
type ExtractHandler struct {
	extractService  service.ExtractService
	documentService service.DocumentService
}

// NewExtractHandler 创建一个新的 ExtractHandler 实例。
func NewExtractHandler(extractService service.ExtractService, documentService service.DocumentService) *ExtractHandler {
	return &ExtractHandler{
		extractService:  extractService,
		documentService: documentService,
	}
}

// extractRequest 是结构化抽取的请求体。
type extractRequest struct {
	Schema     string `json:"schema"`
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
}

// Extract 按指定 schema 抽取结构化记录。
func (h *ExtractHandler) Extract(c *gin.Context) {
	h.extract(c, "")
}

// Timeline 抽取文档时间线，等价于 schema=timeline 的抽取。
func (h *ExtractHandler) Timeline(c *gin.Context) {
	h.extract(c, "timeline")
}

func (h *ExtractHandler) extract(c *gin.Context, fixedSchema string) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err))
		return
	}

	schema := fixedSchema
	if schema == "" {
		schema = req.Schema
	}
	if schema == "" {
		Fail(c, apperr.New(apperr.KindInvalidArgument, "必须提供 schema"))
		return
	}

	doc, err := resolveDocument(h.documentService, req.DocumentID, req.Text, documentRequest{}.metadata())
	if err != nil {
		Fail(c, err)
		return
	}

	record, err := h.extractService.Extract(c.Request.Context(), schema, doc)
	if err != nil {
		log.Warnf("[ExtractHandler] 抽取失败, schema: %s, err: %v", schema, err)
		Fail(c, err)
		return
	}

	log.Infof("[ExtractHandler] 抽取成功, schema: %s, document: %s, 共 %d 行", schema, doc.ID, len(record.Rows))
	Success(c, record)
}

// Schemas 返回全部可用的抽取 schema 名称。
func (h *ExtractHandler) Schemas(c *gin.Context) {
	Success(c, service.SchemaNames())
}
