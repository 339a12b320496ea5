// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// CorpusIndexTask represents the data structure for a corpus indexing job.
// 原始文本已归档到 MinIO，消费端按 DocumentID 取回并完成切分、向量化与索引。
type CorpusIndexTask struct {
	DocumentID string `json:"document_id"`
	Scope      string `json:"scope"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Category   string `json:"category"`
}
