// Package pipeline 实现了语料文档的异步索引管道。
package pipeline

import (
	"context"
	"fmt"
	"prop-eval-go/internal/config"
	"prop-eval-go/internal/model"
	"prop-eval-go/internal/repository"
	"prop-eval-go/internal/service"
	"prop-eval-go/pkg/embedding"
	"prop-eval-go/pkg/es"
	"prop-eval-go/pkg/log"
	"prop-eval-go/pkg/storage"
	"prop-eval-go/pkg/tasks"
)

// Processor 消费语料索引任务：从对象存储取回原文，切分、落库、
// 向量化并写入 Elasticsearch。整个流程幂等，重复执行会先清理旧段落。
type Processor struct {
	documentService service.DocumentService
	corpusRepo      repository.CorpusRepository
	embeddingClient embedding.Client
}

// NewProcessor 创建一个新的索引管道处理器。
func NewProcessor(documentService service.DocumentService, corpusRepo repository.CorpusRepository, embeddingClient embedding.Client) *Processor {
	return &Processor{
		documentService: documentService,
		corpusRepo:      corpusRepo,
		embeddingClient: embeddingClient,
	}
}

// Process 处理一个语料索引任务。失败时文档被标记为失败状态，
// 由消费端的重试计数决定是否再次投递。
func (p *Processor) Process(ctx context.Context, task tasks.CorpusIndexTask) error {
	if err := p.process(ctx, task); err != nil {
		if markErr := p.corpusRepo.MarkDocumentStatus(task.DocumentID, model.CorpusStatusFailed); markErr != nil {
			log.Errorf("[Pipeline] 标记文档失败状态出错: %v", markErr)
		}
		return err
	}
	return p.corpusRepo.MarkDocumentStatus(task.DocumentID, model.CorpusStatusIndexed)
}

func (p *Processor) process(ctx context.Context, task tasks.CorpusIndexTask) error {
	rawText, err := storage.GetCorpusDocument(ctx, config.Conf.MinIO.BucketName, task.DocumentID)
	if err != nil {
		return fmt.Errorf("读取归档原文失败: %w", err)
	}

	doc, err := p.documentService.Segment(task.DocumentID, rawText, model.Metadata{
		Title:    task.Title,
		Author:   task.Author,
		Category: task.Category,
	})
	if err != nil {
		return fmt.Errorf("文档切分失败: %w", err)
	}
	passages := doc.Passages()

	indexName := config.Conf.Elasticsearch.IndexName

	// 幂等重建：先清理该文档的旧段落
	if err := es.DeletePassagesByDocument(ctx, indexName, task.DocumentID); err != nil {
		return fmt.Errorf("清理旧索引段落失败: %w", err)
	}
	if err := p.corpusRepo.DeletePassagesByDocument(task.DocumentID); err != nil {
		return fmt.Errorf("清理旧段落记录失败: %w", err)
	}

	modelVersion := config.Conf.Embedding.Model
	records := make([]*model.PassageRecord, 0, len(passages))
	for i, passage := range passages {
		records = append(records, &model.PassageRecord{
			PassageID:    passage.ID,
			DocumentID:   task.DocumentID,
			Scope:        task.Scope,
			Seq:          i,
			TextContent:  passage.Text,
			ModelVersion: modelVersion,
		})
	}
	if err := p.corpusRepo.BatchCreatePassages(records); err != nil {
		return fmt.Errorf("批量写入段落记录失败: %w", err)
	}

	for _, passage := range passages {
		vector, err := p.embeddingClient.CreateEmbedding(ctx, passage.Text)
		if err != nil {
			return fmt.Errorf("段落 '%s' 向量化失败: %w", passage.ID, err)
		}
		esDoc := model.EsPassage{
			PassageID:    passage.ID,
			DocumentID:   task.DocumentID,
			Scope:        task.Scope,
			TextContent:  passage.Text,
			Vector:       vector,
			ModelVersion: modelVersion,
			Source:       model.SourceCorpus,
		}
		if err := es.IndexPassage(ctx, indexName, esDoc); err != nil {
			return fmt.Errorf("段落 '%s' 写入索引失败: %w", passage.ID, err)
		}
	}

	log.Infof("[Pipeline] 文档索引完成, document: %s, scope: %s, 共 %d 个段落", task.DocumentID, task.Scope, len(passages))
	return nil
}
