// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation 代表一次多轮对话会话。
type Conversation struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Owner     *uuid.UUID `gorm:"type:uuid;index" json:"owner,omitempty"`
	Title     string     `gorm:"type:varchar(255);not null;default:''" json:"title"`
	Archived  bool       `gorm:"not null;default:false" json:"archived"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 代表会话中的一条消息。Citations 以 JSON 形式冗余存储，
// 便于前端回放历史时还原引用列表。
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Role           string     `gorm:"type:varchar(20);not null" json:"role"` // user / assistant / system / tool
	Content        string     `gorm:"type:text;not null" json:"content"`
	Citations      JSONArray  `gorm:"type:jsonb" json:"citations,omitempty"`
	AgentID        *uuid.UUID `gorm:"type:uuid" json:"agent_id,omitempty"`
	ToolUsed       string     `gorm:"type:varchar(50)" json:"tool_used,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
