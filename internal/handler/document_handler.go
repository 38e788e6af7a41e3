// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// List 返回调用方可见的文档列表：公共文档加上自己的文档，
// 每条带分块数量。
func (h *DocumentHandler) List(c *gin.Context) {
	owner := ownerFromContext(c)
	docs, err := h.docService.List(owner)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     len(docs),
	})
}

// Delete 删除一个文档及其全部分块和对象存储中的原始文件。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	owner := ownerFromContext(c)
	if err := h.docService.Delete(c.Request.Context(), id, owner); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "文档已删除"})
}

// Download 生成文档原始文件的临时下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	owner := ownerFromContext(c)
	info, err := h.docService.GenerateDownloadURL(id, owner)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
