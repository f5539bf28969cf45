package service

import (
	"context"
	"strings"
	"testing"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/pkg/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedClient struct{}

func (s *stubEmbedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestProvider() *embedding.Provider {
	return embedding.NewProvider(&stubEmbedClient{}, 3)
}

type stubChunkRepo struct {
	hits      []model.ChunkHit
	err       error
	gotLimits []int
}

func (s *stubChunkRepo) BulkIndex(ctx context.Context, chunks []*model.DocumentChunk) error {
	return nil
}

func (s *stubChunkRepo) VectorSearch(ctx context.Context, queryVector []float32, limit int, minScore float64) ([]model.ChunkHit, error) {
	s.gotLimits = append(s.gotLimits, limit)
	return s.hits, s.err
}

func (s *stubChunkRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return nil
}

type stubEsDocRepo struct {
	textHits    []model.TextHit
	searchCalls int
}

func (s *stubEsDocRepo) Index(ctx context.Context, documentID string, doc model.EsDocument) error {
	return nil
}

func (s *stubEsDocRepo) Delete(ctx context.Context, documentID string) error {
	return nil
}

func (s *stubEsDocRepo) TextSearch(ctx context.Context, query string, limit int) ([]model.TextHit, error) {
	s.searchCalls++
	return s.textHits, nil
}

func newTestSearchService(chunkRepo *stubChunkRepo, esDocRepo *stubEsDocRepo) SearchService {
	return NewSearchService(chunkRepo, esDocRepo, newTestProvider(), config.RetrievalConfig{
		MaxChunkSize:  512,
		OverlapSize:   100,
		MinScore:      0.1,
		ContextLimit:  5,
		SnippetMaxLen: 800,
	})
}

func TestEnhanceSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"短查询保持原样", "hi", "hi"},
		{"去掉结尾问号和客套短语", "what is the indexing pipeline doing?", "the indexing pipeline doing"},
		{"去掉开头客套短语", "can you describe the indexing pipeline", "describe the indexing pipeline"},
		{"过度裁剪时回退原查询", "what is it?", "what is it?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, enhanceSearchQuery(tt.query))
		})
	}
}

func TestSearchDocumentsForContext_MergesAdjacentPages(t *testing.T) {
	// 同一文档在第 1,2,4,5 页各有一个命中。
	// 1 和 2 相邻，4 和 5 相邻，但 4 与 2 不相邻，应得到两个片段。
	chunkRepo := &stubChunkRepo{hits: []model.ChunkHit{
		{DocumentID: "doc-1", Title: "手册", Content: "第一页内容", PageNumber: 1, Score: 0.9},
		{DocumentID: "doc-1", Title: "手册", Content: "第二页内容", PageNumber: 2, Score: 0.8},
		{DocumentID: "doc-1", Title: "手册", Content: "第四页内容", PageNumber: 4, Score: 0.7},
		{DocumentID: "doc-1", Title: "手册", Content: "第五页内容", PageNumber: 5, Score: 0.6},
	}}
	esDocRepo := &stubEsDocRepo{}
	svc := newTestSearchService(chunkRepo, esDocRepo)

	snippets, err := svc.SearchDocumentsForContext(context.Background(), "describe the manual contents", 5)
	require.NoError(t, err)
	require.Len(t, snippets, 2)

	assert.Equal(t, "Pages 1-2", snippets[0].PageInfo)
	assert.Equal(t, "Pages 4-5", snippets[1].PageInfo)
	// 兜底不应被触发
	assert.Equal(t, 0, esDocRepo.searchCalls)
}

func TestSearchDocumentsForContext_FallbackFiresOnlyOnEmpty(t *testing.T) {
	chunkRepo := &stubChunkRepo{hits: nil}
	esDocRepo := &stubEsDocRepo{textHits: []model.TextHit{
		{DocumentID: "doc-9", Title: "规范", Content: "storage layout and partition strategy for the cluster", Score: 0.42},
	}}
	svc := newTestSearchService(chunkRepo, esDocRepo)

	snippets, err := svc.SearchDocumentsForContext(context.Background(), "partition strategy", 5)
	require.NoError(t, err)
	require.Len(t, snippets, 1)

	assert.Equal(t, 1, esDocRepo.searchCalls)
	// 兜底命中使用固定的降级分数
	assert.Equal(t, 0.5, snippets[0].Score)
	assert.Contains(t, snippets[0].Snippet, "partition")
}

// 候选池按 limit 的两倍召回，相邻页合并后才截断到 limit。
func TestSearchDocumentsForContext_RequestsDoubleCandidatePool(t *testing.T) {
	chunkRepo := &stubChunkRepo{hits: []model.ChunkHit{
		{DocumentID: "doc-1", Title: "手册", Content: "内容", PageNumber: 1, Score: 0.9},
	}}
	svc := newTestSearchService(chunkRepo, &stubEsDocRepo{})

	_, err := svc.SearchDocumentsForContext(context.Background(), "describe the manual contents", 5)
	require.NoError(t, err)

	require.Len(t, chunkRepo.gotLimits, 1)
	assert.Equal(t, 10, chunkRepo.gotLimits[0])
}

func TestSearchDocumentsForContext_SortsAndTruncates(t *testing.T) {
	chunkRepo := &stubChunkRepo{hits: []model.ChunkHit{
		{DocumentID: "a", Title: "A", Content: "aa", PageNumber: 1, Score: 0.3},
		{DocumentID: "b", Title: "B", Content: "bb", PageNumber: 1, Score: 0.9},
		{DocumentID: "c", Title: "C", Content: "cc", PageNumber: 1, Score: 0.6},
	}}
	svc := newTestSearchService(chunkRepo, &stubEsDocRepo{})

	snippets, err := svc.SearchDocumentsForContext(context.Background(), "compare the three documents", 2)
	require.NoError(t, err)
	require.Len(t, snippets, 2)

	assert.Equal(t, "b", snippets[0].DocumentID)
	assert.Equal(t, "c", snippets[1].DocumentID)
}

func TestCreateSnippetFromChunks_RespectsLengthBudget(t *testing.T) {
	svc := &searchService{retrieval: config.RetrievalConfig{SnippetMaxLen: 800}}

	long := strings.Repeat("x", 600)
	chunks := []model.ChunkHit{
		{Content: long, PageNumber: 3, Score: 0.9},
		{Content: long, PageNumber: 4, Score: 0.8},
	}

	snippet := svc.createSnippetFromChunks("标题", "doc-1", chunks)

	// 锚点 600 字符，剩余 200 字符截断追加并加省略号
	assert.True(t, strings.HasSuffix(snippet.Snippet, "..."))
	assert.Equal(t, "Pages 3-4", snippet.PageInfo)
	assert.InDelta(t, 0.85, snippet.Score, 1e-9)

	parts := strings.Split(snippet.Snippet, "\n\n")
	require.Len(t, parts, 2)
	assert.Len(t, parts[1], 200+3)
}

func TestCreateSnippetFromChunks_SkipsTinyRemainder(t *testing.T) {
	svc := &searchService{retrieval: config.RetrievalConfig{SnippetMaxLen: 800}}

	chunks := []model.ChunkHit{
		{Content: strings.Repeat("x", 750), PageNumber: 1, Score: 0.9},
		{Content: strings.Repeat("y", 400), PageNumber: 2, Score: 0.8},
	}

	snippet := svc.createSnippetFromChunks("标题", "doc-1", chunks)

	// 剩余 50 字符不足以容纳有意义的内容，不做截断追加
	assert.NotContains(t, snippet.Snippet, "y")
	assert.Equal(t, "Page 1", snippet.PageInfo)
}

func TestExtractSnippetWindow(t *testing.T) {
	prefix := strings.Repeat("a ", 100) // 200 字符前缀
	content := prefix + "the keyword appears here " + strings.Repeat("b ", 300)

	snippet := extractSnippetWindow(content, "find keyword")

	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
	assert.Contains(t, snippet, "keyword")
}
