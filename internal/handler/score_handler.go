package handler

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/log"
	"strings"

	"github.com/gin-gonic/gin"
)

// ScoreHandler 处理新颖度、成本与抄袭评分请求。
type ScoreHandler struct {
	scoreService    service.ScoreService
	documentService service.DocumentService
	liveService     service.LiveService
}

// NewScoreHandler 创建一个新的 ScoreHandler 实例。
func NewScoreHandler(scoreService service.ScoreService, documentService service.DocumentService, liveService service.LiveService) *ScoreHandler {
	return &ScoreHandler{
		scoreService:    scoreService,
		documentService: documentService,
		liveService:     liveService,
	}
}

// scoreRequest 是评分请求的通用请求体。
// Live 为 true 时先做在线检索，把结果并入参考材料。
type scoreRequest struct {
	DocumentID  string `json:"documentId"`
	Text        string `json:"text"`
	CorpusScope string `json:"corpusScope" binding:"required"`
	Live        bool   `json:"live"`
	Query       string `json:"query"`
}

// Novelty 处理新颖度评分请求。
func (h *ScoreHandler) Novelty(c *gin.Context) {
	h.score(c, model.ScoreKindNovelty)
}

// Plagiarism 处理抄袭检查请求。
func (h *ScoreHandler) Plagiarism(c *gin.Context) {
	h.score(c, model.ScoreKindPlagiarism)
}

// Cost 处理成本估算请求。
func (h *ScoreHandler) Cost(c *gin.Context) {
	h.score(c, model.ScoreKindCost)
}

func (h *ScoreHandler) score(c *gin.Context, kind string) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err))
		return
	}

	doc, err := resolveDocument(h.documentService, req.DocumentID, req.Text, model.Metadata{})
	if err != nil {
		Fail(c, err)
		return
	}

	extra, err := h.livePassages(c, req, doc)
	if err != nil {
		Fail(c, err)
		return
	}

	var result model.ScoreResult
	switch kind {
	case model.ScoreKindNovelty:
		result, err = h.scoreService.Novelty(c.Request.Context(), service.DocumentInput(doc), req.CorpusScope, extra)
	case model.ScoreKindPlagiarism:
		result, err = h.scoreService.Plagiarism(c.Request.Context(), service.DocumentInput(doc), req.CorpusScope, extra)
	case model.ScoreKindCost:
		result, err = h.scoreService.Cost(c.Request.Context(), doc, req.CorpusScope, extra)
	}
	if err != nil {
		log.Warnf("[ScoreHandler] %s 评分失败, document: %s, err: %v", kind, doc.ID, err)
		Fail(c, err)
		return
	}
	Success(c, result)
}

// livePassages 按需在线增强。在线检索不可用不会让评分整体失败，
// 只是退回纯语料评分并记录日志。
func (h *ScoreHandler) livePassages(c *gin.Context, req scoreRequest, doc model.Document) ([]model.Passage, error) {
	if !req.Live {
		return nil, nil
	}
	query := req.Query
	if query == "" {
		query = doc.Meta.Title
	}
	if query == "" {
		query = firstLine(doc.Text())
	}

	extra, err := h.liveService.FetchPassages(c.Request.Context(), query)
	if err != nil {
		if apperr.Is(err, apperr.KindExternalSearchUnavailable) {
			log.Warnf("[ScoreHandler] 在线检索不可用，退回纯语料评分: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return extra, nil
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		return text[:idx]
	}
	return text
}
