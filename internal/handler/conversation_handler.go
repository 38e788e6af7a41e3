// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理会话与消息持久化相关的 API 请求。
// 路由走可选认证：匿名调用方操作的是无归属会话，登录后
// 只能看到自己的会话。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// createConversationRequest 是创建会话的请求体。
type createConversationRequest struct {
	Title string `json:"title"`
}

// updateConversationRequest 是更新会话的请求体，所有字段可选。
type updateConversationRequest struct {
	Title    *string `json:"title"`
	Archived *bool   `json:"archived"`
}

// appendMessageRequest 是向会话追加消息的请求体。
type appendMessageRequest struct {
	Role     string  `json:"role"`
	Content  string  `json:"content"`
	AgentID  *string `json:"agent_id"`
	ToolUsed string  `json:"tool_used"`
}

// Create 创建一个新会话。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	conv, err := h.service.Create(ownerFromContext(c), req.Title)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// List 列出调用方可见的会话；query 参数 include_archived=true
// 时包含已归档的会话。
func (h *ConversationHandler) List(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "true"

	convs, err := h.service.List(ownerFromContext(c), includeArchived)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

// Get 返回一个会话的详情。
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	conv, err := h.service.Get(id, ownerFromContext(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Update 更新会话标题或归档状态，至少需要提供一个字段。
func (h *ConversationHandler) Update(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	conv, err := h.service.Update(id, ownerFromContext(c), req.Title, req.Archived)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Delete 删除一个会话及其全部消息。
func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(id, ownerFromContext(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "会话已删除"})
}

// ListMessages 按时间顺序返回会话内的全部消息。
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	messages, err := h.service.ListMessages(id, ownerFromContext(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// AppendMessage 向会话追加一条消息。
func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	agentID, ok := parseOptionalUUID(c, req.AgentID, "agent_id")
	if !ok {
		return
	}

	msg, err := h.service.AppendMessage(id, ownerFromContext(c), req.Role, req.Content, agentID, req.ToolUsed)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
