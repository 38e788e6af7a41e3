// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "github.com/google/uuid"

// DocumentProcessingTask represents the data structure for a document ingestion job.
type DocumentProcessingTask struct {
	DocumentID uuid.UUID  `json:"document_id"`
	ObjectKey  string     `json:"object_key"`
	FileName   string     `json:"file_name"`
	Owner      *uuid.UUID `json:"owner,omitempty"`
}
