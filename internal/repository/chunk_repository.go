// Package repository 提供了数据访问层的实现。
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"docchat-go/internal/model"
	"docchat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// bulkBatchSize 是每次 bulk 请求携带的分块数，控制内存与单次请求体大小。
const bulkBatchSize = 50

// ChunkRepository 定义了分块索引的数据操作接口。
type ChunkRepository interface {
	// BulkIndex 批量写入分块；单个分块失败只记录日志，不中断整批。
	BulkIndex(ctx context.Context, chunks []*model.DocumentChunk) error
	// VectorSearch 执行余弦相似度检索，返回按归一化分数降序的命中。
	VectorSearch(ctx context.Context, queryVector []float32, limit int, minScore float64) ([]model.ChunkHit, error)
	// DeleteByDocumentID 按 document_id 批量删除分块，带 refresh 等待生效。
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

type chunkRepository struct {
	esClient  *elasticsearch.Client
	indexName string
	dims      int
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(esClient *elasticsearch.Client, indexName string, dims int) ChunkRepository {
	return &chunkRepository{
		esClient:  esClient,
		indexName: indexName,
		dims:      dims,
	}
}

// NormalizeScore 将 script_score 的原始分数映射到 [-0.5, 0.5]。
// 原始分数为 cosineSimilarity + 1.0（ES 要求相关性分数非负），
// 归一化后 0.5 表示同向，0.0 表示正交，-0.5 表示反向。
func NormalizeScore(raw float64) float64 {
	return (raw - 1.0) / 2.0
}

// BulkIndex 分批写入分块索引。维度不匹配的向量在发送前被拒绝。
func (r *chunkRepository) BulkIndex(ctx context.Context, chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	batched := 0
	for _, chunk := range chunks {
		if r.dims > 0 && len(chunk.Embedding) != r.dims {
			log.Errorf("[ChunkRepository] 分块 %s 向量维度 %d 与索引配置 %d 不符, 拒绝写入",
				chunk.ChunkUID, len(chunk.Embedding), r.dims)
			continue
		}

		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": r.indexName, "_id": chunk.ChunkUID},
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		docBytes, err := json.Marshal(chunk)
		if err != nil {
			log.Errorf("[ChunkRepository] 序列化分块 %s 失败: %v", chunk.ChunkUID, err)
			continue
		}
		buf.Write(metaBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
		batched++

		if batched >= bulkBatchSize {
			if err := r.flushBulk(ctx, &buf); err != nil {
				return err
			}
			batched = 0
		}
	}

	if buf.Len() > 0 {
		return r.flushBulk(ctx, &buf)
	}
	return nil
}

// flushBulk 发送一批 bulk 操作并检查逐项结果，失败项只记日志。
func (r *chunkRepository) flushBulk(ctx context.Context, buf *bytes.Buffer) error {
	res, err := r.esClient.Bulk(
		bytes.NewReader(buf.Bytes()),
		r.esClient.Bulk.WithContext(ctx),
		r.esClient.Bulk.WithRefresh("true"),
	)
	buf.Reset()
	if err != nil {
		return fmt.Errorf("bulk 写入分块索引失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk 写入分块索引返回错误: %s", string(body))
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, op := range item {
				if op.Error != nil {
					log.Errorf("[ChunkRepository] 分块 %s 索引失败: %s (%s)", op.ID, op.Error.Reason, op.Error.Type)
				}
			}
		}
	}
	return nil
}

// VectorSearch 通过 script_score 召回最多 limit 个分块，
// 归一化分数后按 minScore 过滤、降序排序并截断到 limit。
func (r *chunkRepository) VectorSearch(ctx context.Context, queryVector []float32, limit int, minScore float64) ([]model.ChunkHit, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"term": map[string]interface{}{"is_active": true}},
				},
				"should": []map[string]interface{}{
					{
						"script_score": map[string]interface{}{
							"query": map[string]interface{}{"match_all": map[string]interface{}{}},
							"script": map[string]interface{}{
								"source": "cosineSimilarity(params.query_vector, 'embedding') + 1.0",
								"params": map[string]interface{}{"query_vector": queryVector},
							},
						},
					},
				},
			},
		},
		"size": limit,
		"_source": map[string]interface{}{
			"excludes": []string{"embedding"},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("序列化向量检索查询失败: %w", err)
	}

	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(r.indexName),
		r.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("向量检索请求失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("向量检索返回错误: %s", string(body))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string              `json:"_id"`
				Score  float64             `json:"_score"`
				Source model.DocumentChunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析向量检索响应失败: %w", err)
	}

	hits := make([]model.ChunkHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		normalized := NormalizeScore(hit.Score)
		if normalized < minScore {
			continue
		}
		hits = append(hits, model.ChunkHit{
			DocumentID: hit.Source.DocumentID,
			Title:      hit.Source.Title,
			Content:    hit.Source.Content,
			ChunkIndex: hit.Source.ChunkIndex,
			PageNumber: hit.Source.PageNumber,
			Score:      normalized,
			RawScore:   hit.Score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByDocumentID 按 document_id 做 delete_by_query，refresh 等待删除生效，
// 避免文档删除后索引里残留孤儿分块。
func (r *chunkRepository) DeleteByDocumentID(ctx context.Context, documentID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}

	req := esapi.DeleteByQueryRequest{
		Index:   []string{r.indexName},
		Body:    &buf,
		Refresh: boolPtr(true),
	}
	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return fmt.Errorf("删除文档 %s 的分块失败: %w", documentID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("删除文档 %s 的分块返回错误: %s", documentID, string(body))
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
