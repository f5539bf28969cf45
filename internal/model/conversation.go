package model

import "time"

// ChatMessage 代表对话中的单条消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user"、"assistant" 或 "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ContextDocRef 记录一次回答引用了哪个文档的哪些页。
type ContextDocRef struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	PageInfo   string `json:"pageInfo,omitempty"`
}

// ConversationMetadata 记录最近一次回答的上下文使用情况。
type ConversationMetadata struct {
	LastQueryUsedContext bool            `json:"lastQueryUsedContext"`
	LastContextDocs      []ContextDocRef `json:"lastContextDocs,omitempty"`
	LastResponseTime     float64         `json:"lastResponseTime,omitempty"` // 秒
}

// Conversation 代表一段完整的多轮对话，存储在 Redis 中。
type Conversation struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Model     string               `json:"model"`
	UserID    uint                 `json:"userId"`
	Messages  []ChatMessage        `json:"messages"`
	Metadata  ConversationMetadata `json:"metadata"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}
