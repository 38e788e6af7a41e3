// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
)

// 列表分页的默认值与上限，与检索共用 limit。
const (
	memoryListDefaultLimit = 50
	memoryListMaxLimit     = 200
)

// MemoryHandler 负责长期记忆相关的 API 请求，全部要求登录。
type MemoryHandler struct {
	memoryService service.MemoryService
}

// NewMemoryHandler 创建一个新的 MemoryHandler 实例。
func NewMemoryHandler(memoryService service.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// createMemoryRequest 是手动创建记忆的请求体。
type createMemoryRequest struct {
	Title      string                 `json:"title"`
	MemoryText string                 `json:"memory_text"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// condenseRequest 是对话沉淀接口的请求体。
type condenseRequest struct {
	Conversation string `json:"conversation"`
}

// preferencesRequest 是记忆偏好设置的请求体。
type preferencesRequest struct {
	AutosaveMemories bool `json:"autosave_memories"`
}

// ListOrSearch 列出或检索当前用户的记忆。
// 带 q 参数时做向量相似度检索（limit 充当 topK），否则按
// 更新时间倒序分页列出。
func (h *MemoryHandler) ListOrSearch(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	limit := memoryListDefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 || v > memoryListMaxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 limit 参数"})
			return
		}
		limit = v
	}
	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		v, err := strconv.Atoi(offsetStr)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 offset 参数"})
			return
		}
		offset = v
	}

	if q := c.Query("q"); q != "" {
		matches, err := h.memoryService.Search(c.Request.Context(), ownerID, q, limit)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, matches)
		return
	}

	memories, err := h.memoryService.List(ownerID, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, memories)
}

// Create 手动创建一条记忆。与近似重复的已有记忆会被合并。
func (h *MemoryHandler) Create(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	memory, err := h.memoryService.Create(c.Request.Context(), ownerID, req.Title, req.MemoryText, req.Metadata)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, memory)
}

// Get 返回一条记忆的详情。
func (h *MemoryHandler) Get(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	memory, err := h.memoryService.Get(id, ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, memory)
}

// Delete 删除一条记忆，重复删除同样返回成功。
func (h *MemoryHandler) Delete(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.memoryService.Delete(id, ownerID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Condense 把一段对话沉淀为至多三条一句话记忆。
func (h *MemoryHandler) Condense(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req condenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	created, err := h.memoryService.Condense(c.Request.Context(), ownerID, req.Conversation)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

// GetPreferences 返回记忆偏好设置。
func (h *MemoryHandler) GetPreferences(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	autosave, err := h.memoryService.GetAutosavePreference(ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"autosave_memories": autosave})
}

// SetPreferences 更新记忆偏好设置。
func (h *MemoryHandler) SetPreferences(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	autosave, err := h.memoryService.SetAutosavePreference(ownerID, req.AutosaveMemories)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"autosave_memories": autosave})
}
