package handler

import (
	"net/http"
	"strconv"

	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SearchHandler 负责纯检索接口：向量化查询并返回相似分块，不经过生成模型。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search 是处理相似度检索请求的 Gin 处理函数。
// 查询参数 q（兼容 query）、top_k、document_id。
// 匿名调用只能检索公共文档。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		query = c.Query("query")
	}

	topK := 0
	if topKStr := c.Query("top_k"); topKStr != "" {
		v, err := strconv.Atoi(topKStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 top_k 参数"})
			return
		}
		topK = v
	}

	var documentID *uuid.UUID
	if docIDStr := c.Query("document_id"); docIDStr != "" {
		id, err := uuid.Parse(docIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 document_id 参数"})
			return
		}
		documentID = &id
	}

	owner := ownerFromContext(c)
	results, err := h.searchService.Search(c.Request.Context(), query, owner, documentID, topK)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":       query,
		"total_found": len(results),
		"results":     results,
	})
}
