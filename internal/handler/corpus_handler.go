package handler

import (
	"prop-eval-go/internal/apperr"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/repository"
	"prop-eval-go/pkg/kafka"
	"prop-eval-go/pkg/log"
	"prop-eval-go/pkg/storage"
	"prop-eval-go/pkg/tasks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorpusHandler 处理参考语料文档的提交与查询。
// 提交是异步的：原文归档到对象存储，索引任务投递到 Kafka，
// 由索引管道完成切分、向量化与写入。
type CorpusHandler struct {
	corpusRepo repository.CorpusRepository
}

// NewCorpusHandler 创建一个新的 CorpusHandler 实例。
func NewCorpusHandler(corpusRepo repository.CorpusRepository) *CorpusHandler {
	return &CorpusHandler{corpusRepo: corpusRepo}
}

// corpusDocumentRequest 是提交语料文档的请求体。
type corpusDocumentRequest struct {
	ID       string `json:"id"`
	Scope    string `json:"scope" binding:"required"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Text     string `json:"text" binding:"required"`
}

// Submit 接收一篇语料文档并投递索引任务。
func (h *CorpusHandler) Submit(c *gin.Context) {
	var req corpusDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "请求体不合法", err))
		return
	}

	if !scopeDeclared(req.Scope) {
		Fail(c, apperr.Newf(apperr.KindInvalidArgument, "作用域 '%s' 未在配置中声明", req.Scope))
		return
	}

	documentID := req.ID
	if documentID == "" {
		documentID = uuid.NewString()
	}

	// 1. 原文归档到对象存储，供索引管道读取
	if err := storage.PutCorpusDocument(c.Request.Context(), config.Conf.MinIO.BucketName, documentID, req.Text); err != nil {
		log.Errorf("[CorpusHandler] 归档语料原文失败: %v", err)
		Fail(c, apperr.Wrap(apperr.KindInternal, "归档语料原文失败", err))
		return
	}

	// 2. 元数据落库，初始状态为待索引
	doc := &model.CorpusDocument{
		ID:       documentID,
		Scope:    req.Scope,
		Title:    req.Title,
		Author:   req.Author,
		Category: req.Category,
		Status:   model.CorpusStatusPending,
	}
	if err := h.corpusRepo.CreateDocument(doc); err != nil {
		log.Errorf("[CorpusHandler] 语料文档落库失败: %v", err)
		Fail(c, apperr.Wrap(apperr.KindInternal, "语料文档落库失败", err))
		return
	}

	// 3. 投递异步索引任务
	task := tasks.CorpusIndexTask{
		DocumentID: documentID,
		Scope:      req.Scope,
		Title:      req.Title,
		Author:     req.Author,
		Category:   req.Category,
	}
	if err := kafka.ProduceIndexTask(task); err != nil {
		log.Errorf("[CorpusHandler] 投递索引任务失败: %v", err)
		Fail(c, apperr.Wrap(apperr.KindInternal, "投递索引任务失败", err))
		return
	}

	log.Infof("[CorpusHandler] 语料文档已受理, id: %s, scope: %s", documentID, req.Scope)
	Success(c, gin.H{"id": documentID, "status": model.CorpusStatusPending})
}

// Get 按 ID 返回语料文档元数据及其段落记录。
func (h *CorpusHandler) Get(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.corpusRepo.FindDocument(id)
	if err != nil {
		log.Errorf("[CorpusHandler] 查询语料文档失败: %v", err)
		Fail(c, apperr.Wrap(apperr.KindInternal, "查询语料文档失败", err))
		return
	}
	if doc == nil {
		Fail(c, apperr.Newf(apperr.KindCorpusUnavailable, "语料文档 '%s' 不存在", id))
		return
	}

	passages, err := h.corpusRepo.FindPassagesByDocument(id)
	if err != nil {
		log.Errorf("[CorpusHandler] 查询段落记录失败: %v", err)
		Fail(c, apperr.Wrap(apperr.KindInternal, "查询段落记录失败", err))
		return
	}

	Success(c, gin.H{"document": doc, "passages": passages})
}

// Scopes 返回配置声明的全部语料作用域。
func (h *CorpusHandler) Scopes(c *gin.Context) {
	Success(c, config.Conf.Corpus.Scopes)
}

func scopeDeclared(scope string) bool {
	for _, s := range config.Conf.Corpus.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
