package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/model"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/pkg/kafka"
	"agent-platform-go/pkg/log"
	"agent-platform-go/pkg/storage"
	"agent-platform-go/pkg/tasks"

	"github.com/google/uuid"
)

// UploadService 接口定义了文档上传操作。
type UploadService interface {
	Upload(ctx context.Context, owner *uuid.UUID, fileName string, fileSize int64, contentType string, reader io.Reader) (*model.Document, error)
}

type uploadService struct {
	documentRepo repository.DocumentRepository
	minioCfg     config.MinIOConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(documentRepo repository.DocumentRepository, minioCfg config.MinIOConfig) UploadService {
	return &uploadService{
		documentRepo: documentRepo,
		minioCfg:     minioCfg,
	}
}

// Upload 接收一个 PDF 文件：写入对象存储、登记文档元数据（状态
// processing），然后投递异步入库任务。分块与向量化由消费端完成。
func (s *uploadService) Upload(ctx context.Context, owner *uuid.UUID, fileName string, fileSize int64, contentType string, reader io.Reader) (*model.Document, error) {
	log.Infof("[UploadService] 收到上传请求, file: %s, size: %d, type: %s", fileName, fileSize, contentType)

	// 1. 校验文件类型与大小
	if !isPDF(fileName, contentType) {
		return nil, rag.NewValidationError("仅支持 PDF 文件")
	}
	if fileSize <= 0 {
		return nil, rag.NewValidationError("文件内容为空")
	}

	// 2. 写入对象存储，对象键以文档 ID 命名
	doc := &model.Document{
		ID:       uuid.New(),
		Owner:    owner,
		FileName: fileName,
		FileSize: fileSize,
		Status:   model.DocumentStatusProcessing,
	}
	doc.ObjectKey = fmt.Sprintf("documents/%s.pdf", doc.ID)

	log.Infof("[UploadService] 步骤1: 写入对象存储, objectKey: %s", doc.ObjectKey)
	if err := storage.PutObject(ctx, s.minioCfg.BucketName, doc.ObjectKey, reader, fileSize, contentType); err != nil {
		log.Errorf("[UploadService] 写入对象存储失败: %v", err)
		return nil, fmt.Errorf("写入对象存储失败: %w", err)
	}

	// 3. 登记文档元数据
	log.Info("[UploadService] 步骤2: 登记文档元数据")
	if err := s.documentRepo.Create(doc); err != nil {
		log.Errorf("[UploadService] 登记文档元数据失败: %v", err)
		return nil, fmt.Errorf("登记文档元数据失败: %w", err)
	}

	// 4. 投递异步入库任务
	log.Info("[UploadService] 步骤3: 投递文档入库任务")
	task := tasks.DocumentProcessingTask{
		DocumentID: doc.ID,
		ObjectKey:  doc.ObjectKey,
		FileName:   doc.FileName,
		Owner:      owner,
	}
	if err := kafka.ProduceDocumentTask(task); err != nil {
		log.Errorf("[UploadService] 投递入库任务失败: %v", err)
		// 任务未入队的文档无法完成处理，直接标记为失败
		if updErr := s.documentRepo.UpdateStatus(doc.ID, model.DocumentStatusError); updErr != nil {
			log.Errorf("[UploadService] 标记文档失败状态时出错: %v", updErr)
		}
		return nil, fmt.Errorf("投递入库任务失败: %w", err)
	}

	log.Infof("[UploadService] 上传完成, documentID: %s", doc.ID)
	return doc, nil
}

// isPDF 按扩展名或 Content-Type 判断是否为 PDF 文件。
func isPDF(fileName, contentType string) bool {
	if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(contentType), "application/pdf")
}
