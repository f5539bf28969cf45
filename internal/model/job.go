package model

import "time"

// 重处理任务的状态。
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
)

// JobItemResult 记录单个文档在重处理任务中的结果。
type JobItemResult struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Status     string `json:"status"` // "succeeded" 或 "failed"
	Error      string `json:"error,omitempty"`
}

// ReprocessJob 代表一次后台全量重处理任务，可通过 jobId 轮询进度。
type ReprocessJob struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Items     []JobItemResult `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
