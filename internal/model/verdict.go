package model

// SimilarityVerdict 是一对文本之间的相似度判定，分数在 [0,1] 内。
type SimilarityVerdict struct {
	SourceID    string  `json:"sourceId"`
	ReferenceID string  `json:"referenceId"`
	Score       float64 `json:"score"`
	Method      string  `json:"method"`
}

// ScoreResult 的评分种类。
const (
	ScoreKindNovelty    = "novelty"
	ScoreKindCost       = "cost"
	ScoreKindPlagiarism = "plagiarism"
)

// ScoreResult 是评分模块的输出。
// Value 必须位于该 Kind 声明的区间内；Supporting 中的 Passage
// 必须来自本次检索/相似度计算的结果，不允许凭空引用。
type ScoreResult struct {
	Kind       string   `json:"kind"`
	Value      float64  `json:"value"`
	Unit       string   `json:"unit"`
	Rationale  string   `json:"rationale"`
	Supporting []string `json:"supporting"`
}
