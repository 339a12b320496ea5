package handler

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SimilarityHandler 处理相似度评分请求。
type SimilarityHandler struct {
	similarityService service.SimilarityService
	documentService   service.DocumentService
}

// NewSimilarityHandler 创建一个新的 SimilarityHandler 实例。
func NewSimilarityHandler(similarityService service.SimilarityService, documentService service.DocumentService) *SimilarityHandler {
	return &SimilarityHandler{
		similarityService: similarityService,
		documentService:   documentService,
	}
}

// similarityRequest 支持两种形态：
// 提供 reference 时做两两对比；提供 corpusScope 时对整个语料作用域评分。
type similarityRequest struct {
	Source      similaritySide `json:"source" binding:"required"`
	Reference   *similaritySide `json:"reference"`
	CorpusScope string          `json:"corpusScope"`
}

type similaritySide struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
}

func (h *SimilarityHandler) resolveSide(side similaritySide) (service.SimilarityInput, error) {
	if side.DocumentID != "" {
		doc, ok := h.documentService.Get(side.DocumentID)
		if !ok {
			return service.SimilarityInput{}, apperr.Newf(apperr.KindInvalidArgument, "文档 '%s' 不存在或已过期", side.DocumentID)
		}
		return service.DocumentInput(doc), nil
	}
	if side.Text == "" {
		return service.SimilarityInput{}, apperr.New(apperr.KindInvalidArgument, "必须提供 documentId 或 text")
	}
	return service.SimilarityInput{ID: "inline", Text: side.Text}, nil
}

// Score 处理相似度评分请求。
func (h *SimilarityHandler) Score(c *gin.Context) {
	var req similarityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err))
		return
	}

	source, err := h.resolveSide(req.Source)
	if err != nil {
		Fail(c, err)
		return
	}

	switch {
	case req.Reference != nil:
		reference, err := h.resolveSide(*req.Reference)
		if err != nil {
			Fail(c, err)
			return
		}
		verdict, err := h.similarityService.ScorePair(c.Request.Context(), source, reference)
		if err != nil {
			log.Warnf("[SimilarityHandler] 两两相似度评分失败: %v", err)
			Fail(c, err)
			return
		}
		Success(c, verdict)

	case req.CorpusScope != "":
		verdicts, err := h.similarityService.ScoreAgainstCorpus(c.Request.Context(), source, req.CorpusScope)
		if err != nil {
			log.Warnf("[SimilarityHandler] 语料相似度评分失败: %v", err)
			Fail(c, err)
			return
		}
		Success(c, verdicts)

	default:
		Fail(c, apperr.New(apperr.KindInvalidArgument, "必须提供 reference 或 corpusScope"))
	}
}
