package pipeline

import (
	"context"
	"fmt"
	"time"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/embedding"
	"docchat-go/pkg/log"
	"docchat-go/pkg/tasks"
)

// Processor 负责将文档内容转换为可检索的向量分块。
// 它消费 Kafka 任务，也可被重建任务直接调用。
type Processor interface {
	// Process 实现 kafka.TaskProcessor 接口。
	Process(ctx context.Context, task tasks.DocumentProcessingTask) error
	// ProcessDocument 对单个文档执行完整的分块和索引流程。
	// 先清理旧分块再写入，保证重复处理不产生重复数据。
	ProcessDocument(ctx context.Context, documentID string) error
}

type processor struct {
	documentRepo repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	embedder     *embedding.Provider
	retrieval    config.RetrievalConfig
}

// NewProcessor 创建一个新的文档处理器。
func NewProcessor(
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	embedder *embedding.Provider,
	retrieval config.RetrievalConfig,
) Processor {
	return &processor{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		embedder:     embedder,
		retrieval:    retrieval,
	}
}

func (p *processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	return p.ProcessDocument(ctx, task.DocumentID)
}

// ProcessDocument 执行分块、向量化和批量索引。
// 单个分块 embedding 失败只记日志并跳过，不中断整个文档。
func (p *processor) ProcessDocument(ctx context.Context, documentID string) error {
	doc, err := p.documentRepo.FindByID(documentID)
	if err != nil {
		return fmt.Errorf("加载文档 %s 失败: %w", documentID, err)
	}
	if doc.Content == "" {
		log.Warnf("[Pipeline] 文档 %s 内容为空，跳过索引", documentID)
		return nil
	}

	// 幂等：先清理该文档已有的分块
	if err := p.chunkRepo.DeleteByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("清理文档 %s 的旧分块失败: %w", documentID, err)
	}

	texts := SplitTextIntoChunks(doc.Content, p.retrieval.MaxChunkSize, p.retrieval.OverlapSize)
	if len(texts) == 0 {
		log.Warnf("[Pipeline] 文档 %s 分块结果为空", documentID)
		return nil
	}
	log.Infof("[Pipeline] 文档 %s 分块完成, 共 %d 块", documentID, len(texts))

	now := time.Now()
	chunks := make([]*model.DocumentChunk, 0, len(texts))
	failed := 0
	for i, text := range texts {
		embedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		vec, err := p.embedder.Embed(embedCtx, text)
		cancel()
		if err != nil {
			failed++
			log.Errorf("[Pipeline] 文档 %s 第 %d 块 embedding 失败: %v", documentID, i, err)
			continue
		}

		chunks = append(chunks, &model.DocumentChunk{
			ChunkUID:   fmt.Sprintf("%s_%d", documentID, i),
			DocumentID: documentID,
			Title:      doc.Title,
			Content:    text,
			Embedding:  vec,
			ChunkIndex: i,
			PageNumber: EstimatePageNumber(i, len(texts), doc.PageCount),
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if len(chunks) == 0 {
		return fmt.Errorf("文档 %s 所有分块 embedding 均失败", documentID)
	}

	if err := p.chunkRepo.BulkIndex(ctx, chunks); err != nil {
		return fmt.Errorf("文档 %s 分块索引失败: %w", documentID, err)
	}

	log.Infof("[Pipeline] 文档 %s 索引完成: 成功 %d 块, 失败 %d 块", documentID, len(chunks), failed)
	return nil
}
