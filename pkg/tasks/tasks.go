// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask represents the data structure for a document indexing job.
type DocumentProcessingTask struct {
	DocumentID string `json:"document_id"`
}
