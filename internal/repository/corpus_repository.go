package repository

import (
	"errors"
	"prop-eval-go/internal/model"
	"time"

	"gorm.io/gorm"
)

// CorpusRepository 定义了语料文档与段落记录的数据库操作。
type CorpusRepository interface {
	CreateDocument(doc *model.CorpusDocument) error
	FindDocument(id string) (*model.CorpusDocument, error)
	MarkDocumentStatus(id string, status int) error
	DeletePassagesByDocument(documentID string) error
	BatchCreatePassages(records []*model.PassageRecord) error
	FindPassagesByDocument(documentID string) ([]model.PassageRecord, error)
}

type corpusRepository struct {
	db *gorm.DB
}

// NewCorpusRepository 创建一个新的 CorpusRepository 实例，并完成表结构迁移。
func NewCorpusRepository(db *gorm.DB) CorpusRepository {
	_ = db.AutoMigrate(&model.CorpusDocument{}, &model.PassageRecord{})
	return &corpusRepository{db: db}
}

// CreateDocument 落库一条语料文档元数据。
func (r *corpusRepository) CreateDocument(doc *model.CorpusDocument) error {
	return r.db.Create(doc).Error
}

// FindDocument 按 ID 查找语料文档；不存在时返回 (nil, nil)。
func (r *corpusRepository) FindDocument(id string) (*model.CorpusDocument, error) {
	var doc model.CorpusDocument
	err := r.db.Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarkDocumentStatus 更新文档索引状态；标记为已索引时同时写入时间。
func (r *corpusRepository) MarkDocumentStatus(id string, status int) error {
	updates := map[string]interface{}{"status": status}
	if status == model.CorpusStatusIndexed {
		now := time.Now()
		updates["indexed_at"] = &now
	}
	return r.db.Model(&model.CorpusDocument{}).Where("id = ?", id).Updates(updates).Error
}

// DeletePassagesByDocument 删除某篇文档的全部段落记录（重建前的幂等清理）。
func (r *corpusRepository) DeletePassagesByDocument(documentID string) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.PassageRecord{}).Error
}

// BatchCreatePassages 批量写入段落记录。
func (r *corpusRepository) BatchCreatePassages(records []*model.PassageRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.Create(records).Error
}

// FindPassagesByDocument 按序号升序返回某篇文档的段落记录。
func (r *corpusRepository) FindPassagesByDocument(documentID string) ([]model.PassageRecord, error) {
	var records []model.PassageRecord
	err := r.db.Where("document_id = ?", documentID).Order("seq asc").Find(&records).Error
	return records, err
}
