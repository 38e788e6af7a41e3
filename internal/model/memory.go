package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Memory 是从对话中沉淀的用户长期记忆，检索时与文档块
// 使用同一套余弦相似度排序。
type Memory struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Owner      uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner"`
	Title      string          `gorm:"type:varchar(100);not null" json:"title"`
	MemoryText string          `gorm:"type:varchar(600);not null" json:"memory_text"`
	Embedding  pgvector.Vector `gorm:"type:vector(384)" json:"-"`
	Metadata   JSONMap         `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Memory) TableName() string {
	return "memories"
}

// MemoryLog 是记忆操作的追加审计日志，写入失败不阻塞主流程。
type MemoryLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Owner     *uuid.UUID `gorm:"type:uuid;index" json:"owner,omitempty"`
	MemoryID  *uuid.UUID `gorm:"type:uuid" json:"memory_id,omitempty"`
	Action    string     `gorm:"type:varchar(30);not null" json:"action"` // created / deduplicated / deleted / condensed
	Details   JSONMap    `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (MemoryLog) TableName() string {
	return "memory_logs"
}

// UserSetting 存储用户偏好，目前只有一项：是否自动沉淀对话记忆。
type UserSetting struct {
	Owner            uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner"`
	AutosaveMemories bool      `gorm:"not null;default:false" json:"autosave_memories"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserSetting) TableName() string {
	return "user_settings"
}
