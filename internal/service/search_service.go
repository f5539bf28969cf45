// Package service 实现了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/embedding"
	"docchat-go/pkg/log"
)

// fallbackScore 是词法兜底命中的占位分数，低于任何可信的向量命中，
// 用于向下游标记检索置信度降级。
const fallbackScore = 0.5

// fallbackWindowSize 是词法兜底时从文档正文截取的片段长度（字符数）。
const fallbackWindowSize = 500

// fillerRe 匹配问句开头的常见客套/提问短语。
var fillerRe = regexp.MustCompile(`(?i)^(can you|could you|please|tell me|explain|what is|how to|how do|why is|where is|when is)`)

// trailingQuestionRe 匹配结尾的一个或多个问号。
var trailingQuestionRe = regexp.MustCompile(`\?+$`)

// SearchService 定义了上下文检索的业务接口。
type SearchService interface {
	// SearchDocumentsForContext 为给定查询检索最多 limit 条上下文片段。
	// 零命中返回空切片；检索子系统故障返回错误，由调用方决定降级策略。
	SearchDocumentsForContext(ctx context.Context, query string, limit int) ([]model.ContextSnippet, error)
}

type searchService struct {
	chunkRepo repository.ChunkRepository
	esDocRepo repository.EsDocumentRepository
	embedder  *embedding.Provider
	retrieval config.RetrievalConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(
	chunkRepo repository.ChunkRepository,
	esDocRepo repository.EsDocumentRepository,
	embedder *embedding.Provider,
	retrieval config.RetrievalConfig,
) SearchService {
	return &searchService{
		chunkRepo: chunkRepo,
		esDocRepo: esDocRepo,
		embedder:  embedder,
		retrieval: retrieval,
	}
}

func (s *searchService) SearchDocumentsForContext(ctx context.Context, query string, limit int) ([]model.ContextSnippet, error) {
	enhanced := enhanceSearchQuery(query)
	log.Infof("[Search] 查询增强: %q -> %q", query, enhanced)

	queryVector, err := s.embedder.Embed(ctx, enhanced)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	// 召回 limit 的两倍作为候选池，给相邻页合并留出余量，合并后再截断到 limit
	hits, err := s.chunkRepo.VectorSearch(ctx, queryVector, limit*2, s.retrieval.MinScore)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	log.Infof("[Search] 向量检索命中 %d 个分块", len(hits))

	if len(hits) > 0 {
		snippets := s.assembleSnippets(hits)
		sort.SliceStable(snippets, func(i, j int) bool { return snippets[i].Score > snippets[j].Score })
		if len(snippets) > limit {
			snippets = snippets[:limit]
		}
		return snippets, nil
	}

	// 向量检索零命中时兜底到词法检索；兜底自身的故障只降级为空结果。
	log.Info("[Search] 向量检索无命中，兜底到词法检索")
	return s.lexicalFallback(ctx, query, limit), nil
}

// assembleSnippets 按文档分组并把相邻页的分块合并为片段。
// 文档组保持命中分数序中的首次出现顺序。
func (s *searchService) assembleSnippets(hits []model.ChunkHit) []model.ContextSnippet {
	type docGroup struct {
		documentID string
		title      string
		chunks     []model.ChunkHit
	}

	var order []string
	groups := make(map[string]*docGroup)
	for _, hit := range hits {
		g, ok := groups[hit.DocumentID]
		if !ok {
			g = &docGroup{documentID: hit.DocumentID, title: hit.Title}
			groups[hit.DocumentID] = g
			order = append(order, hit.DocumentID)
		}
		g.chunks = append(g.chunks, hit)
	}

	var snippets []model.ContextSnippet
	for _, docID := range order {
		g := groups[docID]

		// 页码升序，同页内分数降序
		sort.SliceStable(g.chunks, func(i, j int) bool {
			if g.chunks[i].PageNumber != g.chunks[j].PageNumber {
				return g.chunks[i].PageNumber < g.chunks[j].PageNumber
			}
			return g.chunks[i].Score > g.chunks[j].Score
		})

		// 相邻页（±1）的分块并入同一组，页距超过 1 时封组
		var current []model.ChunkHit
		currentPage := -1
		for _, chunk := range g.chunks {
			if currentPage == -1 || chunk.PageNumber == currentPage ||
				chunk.PageNumber == currentPage+1 || chunk.PageNumber == currentPage-1 {
				current = append(current, chunk)
			} else {
				snippets = append(snippets, s.createSnippetFromChunks(g.title, g.documentID, current))
				current = []model.ChunkHit{chunk}
			}
			currentPage = chunk.PageNumber
		}
		if len(current) > 0 {
			snippets = append(snippets, s.createSnippetFromChunks(g.title, g.documentID, current))
		}
	}
	return snippets
}

// createSnippetFromChunks 把一组相邻页分块合成一条上下文片段。
// 以最高分分块为锚点，按分数降序追加后续分块，总长受 snippet_max_len 约束；
// 溢出的分块仅在剩余空间超过 100 字符时截断追加，之后停止合并。
func (s *searchService) createSnippetFromChunks(title, documentID string, chunks []model.ChunkHit) model.ContextSnippet {
	if len(chunks) == 1 {
		return model.ContextSnippet{
			DocumentID: documentID,
			Title:      title,
			Snippet:    chunks[0].Content,
			PageNumber: chunks[0].PageNumber,
			PageInfo:   fmt.Sprintf("Page %d", chunks[0].PageNumber),
			Score:      chunks[0].Score,
		}
	}

	sorted := make([]model.ChunkHit, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var sum float64
	for _, c := range sorted {
		sum += c.Score
	}
	avgScore := sum / float64(len(sorted))

	maxLen := s.retrieval.SnippetMaxLen
	combined := sorted[0].Content
	pageSet := map[int]struct{}{sorted[0].PageNumber: {}}

	for i := 1; i < len(sorted); i++ {
		content := sorted[i].Content
		if utf8.RuneCountInString(combined)+utf8.RuneCountInString(content) <= maxLen {
			combined += "\n\n" + content
			pageSet[sorted[i].PageNumber] = struct{}{}
			continue
		}

		remaining := maxLen - utf8.RuneCountInString(combined)
		if remaining > 100 {
			runes := []rune(content)
			combined += "\n\n" + string(runes[:remaining]) + "..."
			pageSet[sorted[i].PageNumber] = struct{}{}
		}
		break
	}

	pages := make([]int, 0, len(pageSet))
	for p := range pageSet {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	pageInfo := fmt.Sprintf("Page %d", pages[0])
	if len(pages) > 1 {
		pageInfo = fmt.Sprintf("Pages %d-%d", pages[0], pages[len(pages)-1])
	}

	return model.ContextSnippet{
		DocumentID: documentID,
		Title:      title,
		Snippet:    combined,
		PageNumber: pages[0],
		PageInfo:   pageInfo,
		Score:      avgScore,
	}
}

// lexicalFallback 执行词法兜底检索，并从命中文档正文中截取查询词附近的窗口。
// 兜底检索的错误只记日志，返回空结果。
func (s *searchService) lexicalFallback(ctx context.Context, query string, limit int) []model.ContextSnippet {
	textHits, err := s.esDocRepo.TextSearch(ctx, query, limit)
	if err != nil {
		log.Errorf("[Search] 词法兜底检索失败: %v", err)
		return []model.ContextSnippet{}
	}

	snippets := make([]model.ContextSnippet, 0, len(textHits))
	for _, hit := range textHits {
		snippets = append(snippets, model.ContextSnippet{
			DocumentID: hit.DocumentID,
			Title:      hit.Title,
			Snippet:    extractSnippetWindow(hit.Content, query),
			Score:      fallbackScore,
		})
	}
	return snippets
}

// extractSnippetWindow 在正文中定位第一个长度大于 3 的查询词，
// 向前回退 100 字符作为窗口起点，截取 500 字符并对齐到词边界。
func extractSnippetWindow(content, query string) string {
	contentRunes := []rune(content)
	start := 0

	lowerContent := strings.ToLower(content)
	for _, term := range strings.Fields(query) {
		if utf8.RuneCountInString(term) <= 3 {
			continue
		}
		bytePos := strings.Index(lowerContent, strings.ToLower(term))
		if bytePos != -1 {
			runePos := utf8.RuneCountInString(content[:bytePos])
			start = runePos - 100
			if start < 0 {
				start = 0
			}
			break
		}
	}

	end := start + fallbackWindowSize
	if end > len(contentRunes) {
		end = len(contentRunes)
	}
	snippet := string(contentRunes[start:end])

	// 窗口从正文中间开始时，跳到下一个空格避免截断单词
	if start > 0 {
		if firstSpace := strings.Index(snippet, " "); firstSpace > 0 {
			snippet = snippet[firstSpace+1:]
		}
		snippet = "..." + snippet
	}
	if start+fallbackWindowSize < len(contentRunes) {
		snippet = snippet + "..."
	}
	return snippet
}

// enhanceSearchQuery 去掉结尾问号和开头的客套短语。
// 增强结果过短（<10 字符）且没有比原查询更长时，保留原查询，
// 防止短查询被过度裁剪。
func enhanceSearchQuery(query string) string {
	enhanced := strings.TrimSpace(trailingQuestionRe.ReplaceAllString(query, ""))
	enhanced = strings.TrimSpace(fillerRe.ReplaceAllString(enhanced, ""))

	if utf8.RuneCountInString(enhanced) < 10 && utf8.RuneCountInString(query) >= utf8.RuneCountInString(enhanced) {
		return query
	}
	return enhanced
}
