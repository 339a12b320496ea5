package model

// Passage 的来源标记，live 注入的段落必须对下游保持可见。
const (
	SourceCorpus   = "corpus"
	SourceDocument = "document"
	SourceLive     = "live"
)

// Passage 是最小可检索的文本单元，附带预计算的向量。
// 创建之后不再修改；语料库中的 Passage 由索引管道产出。
type Passage struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Scope      string    `json:"scope,omitempty"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"-"`
	Source     string    `json:"source"`
}

// ScoredPassage 是一条带相关度的检索命中。
type ScoredPassage struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// RetrievalResult 是按相关度降序排列的命中序列，
// 分数相同时按 Passage ID 升序，保证相同输入产生相同输出。
type RetrievalResult []ScoredPassage

// PassageIDs 返回结果中所有 Passage 的标识，顺序与结果一致。
func (r RetrievalResult) PassageIDs() []string {
	ids := make([]string, 0, len(r))
	for _, sp := range r {
		ids = append(ids, sp.Passage.ID)
	}
	return ids
}
