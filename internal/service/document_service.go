package service

import (
	"context"
	"fmt"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/model"
	"agent-platform-go/internal/repository"
	"agent-platform-go/pkg/log"
	"agent-platform-go/pkg/storage"

	"github.com/google/uuid"
)

// DocumentDTO 在文档元数据上附加已入库的分块数量。
type DocumentDTO struct {
	model.Document
	ChunkCount int64 `json:"chunk_count"`
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url"`
	FileSize    int64  `json:"file_size"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	List(owner *uuid.UUID) ([]DocumentDTO, error)
	Delete(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error
	GenerateDownloadURL(id uuid.UUID, owner *uuid.UUID) (*DownloadInfoDTO, error)
}

type documentService struct {
	documentRepo repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	minioCfg     config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(documentRepo repository.DocumentRepository, chunkRepo repository.ChunkRepository, minioCfg config.MinIOConfig) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		minioCfg:     minioCfg,
	}
}

// List 列出调用方可见的文档及各自的分块数量。
func (s *documentService) List(owner *uuid.UUID) ([]DocumentDTO, error) {
	docs, err := s.documentRepo.ListByOwner(owner)
	if err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}

	dtos := make([]DocumentDTO, 0, len(docs))
	for _, doc := range docs {
		count, err := s.chunkRepo.CountByDocumentID(doc.ID)
		if err != nil {
			log.Warnf("[DocumentService] 统计文档分块数失败, documentID: %s, error: %v", doc.ID, err)
			count = 0
		}
		dtos = append(dtos, DocumentDTO{Document: doc, ChunkCount: count})
	}
	return dtos, nil
}

// Delete 删除一个文档：对象存储中的文件、全部分块与元数据记录。
// 对象删除失败不阻塞数据库清理；分块清理失败则中止，避免悬挂分块
// 继续出现在检索结果中。
func (s *documentService) Delete(ctx context.Context, id uuid.UUID, owner *uuid.UUID) error {
	doc, err := s.documentRepo.FindByIDForOwner(id, owner)
	if err != nil {
		return err
	}

	log.Infof("[DocumentService] 开始删除文档, documentID: %s, file: %s", doc.ID, doc.FileName)
	if err := storage.RemoveObject(ctx, s.minioCfg.BucketName, doc.ObjectKey); err != nil {
		log.Warnf("[DocumentService] 删除对象存储文件失败, objectKey: %s, error: %v", doc.ObjectKey, err)
	}

	if err := s.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return fmt.Errorf("删除文档分块失败: %w", err)
	}
	if err := s.documentRepo.Delete(doc.ID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	log.Infof("[DocumentService] 文档删除完成, documentID: %s", doc.ID)
	return nil
}

// GenerateDownloadURL 生成文档的临时下载链接，有效期为1小时。
func (s *documentService) GenerateDownloadURL(id uuid.UUID, owner *uuid.UUID) (*DownloadInfoDTO, error) {
	doc, err := s.documentRepo.FindByIDForOwner(id, owner)
	if err != nil {
		return nil, err
	}

	presignedURL, err := storage.GetPresignedURL(s.minioCfg.BucketName, doc.ObjectKey, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("生成下载链接失败: %w", err)
	}
	return &DownloadInfoDTO{
		FileName:    doc.FileName,
		DownloadURL: presignedURL,
		FileSize:    doc.FileSize,
	}, nil
}
