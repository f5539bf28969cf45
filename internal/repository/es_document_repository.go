package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docchat-go/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// EsDocumentRepository 定义了 documents 索引的操作接口。
// 该索引是 MySQL 文档记录在 Elasticsearch 中的镜像，供词法兜底检索使用。
type EsDocumentRepository interface {
	Index(ctx context.Context, documentID string, doc model.EsDocument) error
	Delete(ctx context.Context, documentID string) error
	// TextSearch 在 title（权重加倍）和 content 上做模糊多字段匹配。
	// 零命中返回空切片而非错误。
	TextSearch(ctx context.Context, query string, limit int) ([]model.TextHit, error)
}

type esDocumentRepository struct {
	esClient  *elasticsearch.Client
	indexName string
}

// NewEsDocumentRepository 创建一个新的 EsDocumentRepository 实例。
func NewEsDocumentRepository(esClient *elasticsearch.Client, indexName string) EsDocumentRepository {
	return &esDocumentRepository{esClient: esClient, indexName: indexName}
}

// Index 将文档镜像写入 documents 索引，id 与 MySQL 记录一致。
func (r *esDocumentRepository) Index(ctx context.Context, documentID string, doc model.EsDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      r.indexName,
		DocumentID: documentID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return fmt.Errorf("索引文档 %s 失败: %w", documentID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("索引文档 %s 返回错误: %s", documentID, string(body))
	}
	return nil
}

// Delete 从 documents 索引删除镜像，404 视为已删除。
func (r *esDocumentRepository) Delete(ctx context.Context, documentID string) error {
	req := esapi.DeleteRequest{
		Index:      r.indexName,
		DocumentID: documentID,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return fmt.Errorf("删除文档 %s 失败: %w", documentID, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("删除文档 %s 返回错误: %s", documentID, string(body))
	}
	return nil
}

// TextSearch 执行 multi_match 模糊检索，title 字段权重为 content 的两倍。
func (r *esDocumentRepository) TextSearch(ctx context.Context, query string, limit int) ([]model.TextHit, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"term": map[string]interface{}{"is_active": true}},
					{
						"multi_match": map[string]interface{}{
							"query":     query,
							"fields":    []string{"title^2", "content"},
							"fuzziness": "AUTO",
						},
					},
				},
			},
		},
		"size": limit,
		"_source": map[string]interface{}{
			"includes": []string{"title", "content"},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("序列化词法检索查询失败: %w", err)
	}

	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(r.indexName),
		r.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("词法检索请求失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("词法检索返回错误: %s", string(body))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Title   string `json:"title"`
					Content string `json:"content"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析词法检索响应失败: %w", err)
	}

	hits := make([]model.TextHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		hits = append(hits, model.TextHit{
			DocumentID: hit.ID,
			Title:      hit.Source.Title,
			Content:    hit.Source.Content,
			Score:      hit.Score / 10, // BM25 分数粗归一
		})
	}
	return hits, nil
}
