// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 语料文档的索引状态。
const (
	CorpusStatusPending = 0
	CorpusStatusIndexed = 1
	CorpusStatusFailed  = 2
)

// CorpusDocument 对应于数据库中的 'corpus_documents' 表。
// 它记录了每篇参考文档的元数据和索引状态。
type CorpusDocument struct {
	ID        string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Scope     string     `gorm:"type:varchar(64);not null;index" json:"scope"`
	Title     string     `gorm:"type:varchar(255)" json:"title"`
	Author    string     `gorm:"type:varchar(128)" json:"author"`
	Category  string     `gorm:"type:varchar(64)" json:"category"`
	Status    int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: pending, 1: indexed, 2: failed
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt *time.Time `gorm:"default:null" json:"indexedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (CorpusDocument) TableName() string {
	return "corpus_documents"
}

// PassageRecord 对应于数据库中的 'passage_records' 表。
// 索引管道先把切分后的段落落库，再逐条向量化写入 Elasticsearch。
type PassageRecord struct {
	PassageID    string `gorm:"type:varchar(80);primaryKey" json:"passageId"`
	DocumentID   string `gorm:"type:varchar(64);not null;index" json:"documentId"`
	Scope        string `gorm:"type:varchar(64);not null;index" json:"scope"`
	Seq          int    `gorm:"not null" json:"seq"`
	TextContent  string `gorm:"type:text" json:"textContent"`
	ModelVersion string `gorm:"type:varchar(50)" json:"modelVersion"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PassageRecord) TableName() string {
	return "passage_records"
}
