package model

import "github.com/google/uuid"

// ChatMessage 是聊天请求中的一条角色消息。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 是 POST /api/llm/chat 的请求体。
// Messages 的最后一条必须是 user 角色的问题；其余消息按时间顺序
// 作为历史进入提示词。TopK 为 0 时使用配置的默认值。
type ChatRequest struct {
	Messages       []ChatMessage `json:"messages"`
	UseRAG         bool          `json:"use_rag"`
	TopK           int           `json:"top_k"`
	DocumentID     *uuid.UUID    `json:"document_id,omitempty"`
	AgentID        *uuid.UUID    `json:"agent_id,omitempty"`
	ConversationID *uuid.UUID    `json:"conversation_id,omitempty"`
}
