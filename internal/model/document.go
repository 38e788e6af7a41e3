// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// 文档处理状态。上传后为 processing，入库完成为 processed，失败为 error。
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusProcessed  = "processed"
	DocumentStatusError      = "error"
)

// Document 对应于数据库中的 documents 表。
// Owner 为空表示公共演示文档，所有匿名请求共享。
type Document struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Owner           *uuid.UUID `gorm:"type:uuid;index" json:"owner,omitempty"`
	FileName        string     `gorm:"type:varchar(255);not null" json:"file_name"`
	FileSize        int64      `gorm:"not null" json:"file_size"`
	ObjectKey       string     `gorm:"type:varchar(512);not null" json:"-"`
	Status          string     `gorm:"type:varchar(20);not null;default:processing" json:"status"`
	UploadTimestamp time.Time  `gorm:"autoCreateTime" json:"upload_timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Chunk 对应于数据库中的 doc_chunks 表，入库后不可变。
// ChunkIndex 在同一文档内从 0 开始且唯一；Owner 冗余自所属文档，
// 用于检索时的归属过滤。
type Chunk struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_doc_chunk,priority:1" json:"document_id"`
	ChunkIndex int             `gorm:"not null;uniqueIndex:idx_doc_chunk,priority:2" json:"chunk_index"`
	ChunkText  string          `gorm:"type:text;not null" json:"chunk_text"`
	Embedding  pgvector.Vector `gorm:"type:vector(384)" json:"-"`
	TokenCount int             `gorm:"not null;default:0" json:"token_count"`
	Owner      *uuid.UUID      `gorm:"type:uuid;index" json:"-"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "doc_chunks"
}
