// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"agent-platform-go/internal/service"
	"agent-platform-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理文档上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 处理 PDF 文档上传请求。
// 文件先写入对象存储并登记为 processing，分块与向量化由消费端
// 异步完成。匿名上传的文档归属为空，对所有人可见。
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未能获取上传的文件"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[UploadHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误", "code": "INTERNAL"})
		return
	}
	defer file.Close()

	owner := ownerFromContext(c)
	doc, err := h.uploadService.Upload(
		c.Request.Context(),
		owner,
		fileHeader.Filename,
		fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "上传成功，文档正在后台处理",
		"document": doc,
	})
}
