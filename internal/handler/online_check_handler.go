package handler

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/embedding"
	"prop-eval-go/pkg/log"
	"strconv"

	"github.com/gin-gonic/gin"
)

// OnlineCheckHandler 处理在线核查请求：对给定查询做一次实时检索，
// 与本地语料命中合并后返回，供评审人员核对最新事实。
type OnlineCheckHandler struct {
	liveService      service.LiveService
	retrievalService service.RetrievalService
	embeddingClient  embedding.Client
	defaultTopK      int
}

// NewOnlineCheckHandler 创建一个新的 OnlineCheckHandler 实例。
func NewOnlineCheckHandler(liveService service.LiveService, retrievalService service.RetrievalService, embeddingClient embedding.Client, defaultTopK int) *OnlineCheckHandler {
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	return &OnlineCheckHandler{
		liveService:      liveService,
		retrievalService: retrievalService,
		embeddingClient:  embeddingClient,
		defaultTopK:      defaultTopK,
	}
}

// onlineCheckRequest 是 POST 形态的请求体；GET 形态用同名查询参数。
type onlineCheckRequest struct {
	Query       string `json:"query" binding:"required"`
	CorpusScope string `json:"corpusScope"`
	TopK        int    `json:"topK"`
}

// Check 执行一次在线核查。与评分不同，这里在线检索失败必须显式报错，
// 因为调用方需要的就是实时结果本身。
func (h *OnlineCheckHandler) Check(c *gin.Context) {
	req, err := h.parseRequest(c)
	if err != nil {
		Fail(c, err)
		return
	}

	queryVector, err := h.embeddingClient.CreateEmbedding(c.Request.Context(), req.Query)
	if err != nil {
		Fail(c, apperr.Wrap(apperr.KindEmbeddingUnavailable, "查询向量化失败", err))
		return
	}

	// 指定作用域时先取本地命中，在线结果与之合并重排
	var local model.RetrievalResult
	if req.CorpusScope != "" {
		local, err = h.retrievalService.Retrieve(c.Request.Context(), queryVector, req.CorpusScope, req.TopK)
		if err != nil {
			Fail(c, err)
			return
		}
	}

	merged, err := h.liveService.Augment(c.Request.Context(), req.Query, queryVector, local)
	if err != nil {
		log.Warnf("[OnlineCheckHandler] 在线核查失败, query: %s, err: %v", req.Query, err)
		Fail(c, err)
		return
	}

	log.Infof("[OnlineCheckHandler] 在线核查成功, query: %s, 共 %d 条结果", req.Query, len(merged))
	Success(c, merged)
}

func (h *OnlineCheckHandler) parseRequest(c *gin.Context) (onlineCheckRequest, error) {
	req := onlineCheckRequest{
		Query:       c.Query("query"),
		CorpusScope: c.Query("corpusScope"),
	}
	if topKStr := c.Query("topK"); topKStr != "" {
		if topK, err := strconv.Atoi(topKStr); err == nil {
			req.TopK = topK
		}
	}

	if req.Query == "" && c.Request.Method == "POST" {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err)
		}
	}
	if req.Query == "" {
		return req, apperr.New(apperr.KindInvalidArgument, "必须提供 query")
	}
	if req.TopK <= 0 {
		req.TopK = h.defaultTopK
	}
	return req, nil
}
