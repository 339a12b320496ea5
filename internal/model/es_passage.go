package model

// EsPassage 代表存储在 Elasticsearch 语料索引中的段落结构。
type EsPassage struct {
	PassageID    string    `json:"passage_id"`
	DocumentID   string    `json:"document_id"`
	Scope        string    `json:"scope"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	Source       string    `json:"source"`
}

// ToPassage 转换为内存快照使用的 Passage。
func (e EsPassage) ToPassage() Passage {
	return Passage{
		ID:         e.PassageID,
		DocumentID: e.DocumentID,
		Scope:      e.Scope,
		Text:       e.TextContent,
		Vector:     e.Vector,
		Source:     SourceCorpus,
	}
}
