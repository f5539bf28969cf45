package model

// ContextSnippet 是查询期临时构造的上下文片段，不落盘。
// 一个片段可能由同一文档中相邻页的多个分块合并而来。
type ContextSnippet struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
	PageNumber int     `json:"pageNumber,omitempty"` // 代表页（组内最小页）
	PageInfo   string  `json:"pageInfo,omitempty"`   // "Page N" 或 "Pages N-M"
	Score      float64 `json:"score"`
}
