// Package model 包含了应用的数据模型定义。
package model

import (
	"fmt"
	"strings"
	"time"
)

// Metadata 是随文档提交的描述信息。
type Metadata struct {
	Author      string    `json:"author"`
	SubmittedAt time.Time `json:"submittedAt"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
}

// Section 是文档中的一个连续段落，Start/End 为其在原文中的字节偏移。
type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// Document 是入库后的规范化文档。创建之后不再修改。
type Document struct {
	ID       string    `json:"id"`
	Sections []Section `json:"sections"`
	Meta     Metadata  `json:"metadata"`
}

// Text 拼接所有章节正文，用于整篇向量化。
func (d Document) Text() string {
	var b strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Passages 将文档的每个章节转换为一个临时 Passage（source=document）。
// Passage 标识为 "<文档ID>#<序号>"，保证同一文档内排序稳定。
func (d Document) Passages() []Passage {
	passages := make([]Passage, 0, len(d.Sections))
	for i, s := range d.Sections {
		passages = append(passages, Passage{
			ID:         fmt.Sprintf("%s#%03d", d.ID, i),
			DocumentID: d.ID,
			Text:       s.Text,
			Source:     SourceDocument,
		})
	}
	return passages
}
