// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
)

// toolLogDefaultLimit 是工具调用日志列表的默认条数。
const toolLogDefaultLimit = 50

// ToolHandler 负责内置工具的目录、执行与调用日志接口。
// 目录是公开的，执行与日志要求登录。
type ToolHandler struct {
	toolService service.ToolService
}

// NewToolHandler 创建一个新的 ToolHandler 实例。
func NewToolHandler(toolService service.ToolService) *ToolHandler {
	return &ToolHandler{toolService: toolService}
}

// executeToolRequest 是执行工具的请求体。
type executeToolRequest struct {
	AgentID *string                `json:"agent_id"`
	ToolKey string                 `json:"tool_key"`
	Params  map[string]interface{} `json:"params"`
}

// Catalog 返回所有内置工具的描述信息。
func (h *ToolHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.toolService.Catalog())
}

// Execute 执行一个内置工具。携带 agent_id 时要求该助手启用了
// 此工具；无论成功失败都会记录调用日志。
func (h *ToolHandler) Execute(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req executeToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	agentID, ok := parseOptionalUUID(c, req.AgentID, "agent_id")
	if !ok {
		return
	}

	result, err := h.toolService.Execute(c.Request.Context(), &ownerID, agentID, req.ToolKey, req.Params)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// ListLogs 列出当前用户最近的工具调用日志。
func (h *ToolHandler) ListLogs(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	limit := toolLogDefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 limit 参数"})
			return
		}
		limit = v
	}

	logs, err := h.toolService.ListLogs(ownerID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
