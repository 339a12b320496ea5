package model

// ExtractionRecord 是按声明 schema 校验过的结构化抽取结果。
// Rows 中的每一行都已通过必填与类型检查；校验失败时整条记录被拒绝，
// 不会返回部分填充的数据。
type ExtractionRecord struct {
	Schema string                   `json:"schema"`
	Rows   []map[string]interface{} `json:"rows"`
}
