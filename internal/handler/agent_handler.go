// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
)

// AgentHandler 负责智能体管理相关的 API 请求，全部要求登录。
type AgentHandler struct {
	agentService service.AgentService
}

// NewAgentHandler 创建一个新的 AgentHandler 实例。
func NewAgentHandler(agentService service.AgentService) *AgentHandler {
	return &AgentHandler{agentService: agentService}
}

// createAgentRequest 是创建智能体的请求体。
type createAgentRequest struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
	AvatarURL    string `json:"avatar_url"`
	IsDefault    bool   `json:"is_default"`
}

// updateAgentRequest 是更新智能体的请求体，所有字段可选。
type updateAgentRequest struct {
	Name         *string `json:"name"`
	Instructions *string `json:"instructions"`
	AvatarURL    *string `json:"avatar_url"`
	IsDefault    *bool   `json:"is_default"`
}

// upsertAgentToolRequest 是启用或配置智能体工具的请求体。
type upsertAgentToolRequest struct {
	Enabled *bool                  `json:"enabled"`
	Config  map[string]interface{} `json:"config"`
}

// Create 为当前用户创建一个智能体。
func (h *AgentHandler) Create(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	agent, err := h.agentService.Create(ownerID, req.Name, req.Instructions, req.AvatarURL, req.IsDefault)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// List 返回当前用户的全部智能体。
func (h *AgentHandler) List(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	agents, err := h.agentService.List(ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

// Get 返回一个智能体的详情，仅属主可见。
func (h *AgentHandler) Get(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	agent, err := h.agentService.Get(id, ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Update 更新一个智能体，至少需要提供一个字段。
func (h *AgentHandler) Update(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	agent, err := h.agentService.Update(id, ownerID, req.Name, req.Instructions, req.AvatarURL, req.IsDefault)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Delete 删除一个智能体及其工具配置。
func (h *AgentHandler) Delete(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.agentService.Delete(id, ownerID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "智能体已删除"})
}

// ListTools 返回智能体的工具启用情况。
func (h *AgentHandler) ListTools(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	agentTools, err := h.agentService.ListTools(id, ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentTools)
}

// UpsertTool 启用、停用或配置智能体的某个工具。
func (h *AgentHandler) UpsertTool(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req upsertAgentToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	agentTool, err := h.agentService.UpsertTool(id, ownerID, c.Param("key"), req.Enabled, req.Config)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentTool)
}
