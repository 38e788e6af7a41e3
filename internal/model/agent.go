package model

import (
	"time"

	"github.com/google/uuid"
)

// Agent 代表用户自定义的智能体，其 Instructions 会作为
// 系统提示注入对话。每个用户最多一个 is_default 智能体。
type Agent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Owner        uuid.UUID `gorm:"type:uuid;not null;index" json:"owner"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	Instructions string    `gorm:"type:text;not null" json:"instructions"`
	AvatarURL    string    `gorm:"type:varchar(512)" json:"avatar_url,omitempty"`
	IsDefault    bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// AgentTool 记录某个智能体启用了哪些内置工具。
type AgentTool struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AgentID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_agent_tool,priority:1" json:"agent_id"`
	ToolKey   string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_agent_tool,priority:2" json:"tool_key"`
	Enabled   bool      `gorm:"not null;default:false" json:"enabled"`
	Config    JSONMap   `gorm:"type:jsonb" json:"config,omitempty"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AgentTool) TableName() string {
	return "agent_tools"
}

// ToolLog 是工具调用的审计记录。
type ToolLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Owner     *uuid.UUID `gorm:"type:uuid;index" json:"owner,omitempty"`
	AgentID   *uuid.UUID `gorm:"type:uuid" json:"agent_id,omitempty"`
	ToolKey   string     `gorm:"type:varchar(50);not null" json:"tool_key"`
	Params    JSONMap    `gorm:"type:jsonb" json:"params,omitempty"`
	Result    JSONMap    `gorm:"type:jsonb" json:"result,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ToolLog) TableName() string {
	return "tool_logs"
}
