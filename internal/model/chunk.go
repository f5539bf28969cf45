package model

import "time"

// DocumentChunk 代表存储在 Elasticsearch document_chunks 索引中的一个文本分块。
// 分块只写一次；文档删除或重新处理时按 document_id 批量清理。
type DocumentChunk struct {
	ChunkUID   string    `json:"chunk_uid"` // 唯一标识：documentID_chunkIndex
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	ChunkIndex int       `json:"chunk_index"`
	PageNumber int       `json:"page_number"` // 按文档页数线性估算
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChunkHit 是向量检索的单条命中结果，Score 已归一化到 [0,1]。
type ChunkHit struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	ChunkIndex int     `json:"chunkIndex"`
	PageNumber int     `json:"pageNumber"`
	Score      float64 `json:"score"`
	RawScore   float64 `json:"rawScore"`
}

// TextHit 是词法兜底检索的单条命中结果。
type TextHit struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}
