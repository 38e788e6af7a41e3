package service

import (
	"context"
	"fmt"
	"strings"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/pkg/embedding"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
)

// RAGStatus 是检索链路健康探测的结果。
type RAGStatus struct {
	OK        bool `json:"ok"`
	Embedding bool `json:"embedding"`
	Database  bool `json:"database"`
}

// SearchService 接口定义了纯检索操作：向量化查询并返回相似分块，
// 不经过生成模型。
type SearchService interface {
	Search(ctx context.Context, query string, owner *uuid.UUID, documentID *uuid.UUID, topK int) ([]rag.RetrievedChunk, error)
	Ping(ctx context.Context) *RAGStatus
}

type searchService struct {
	embeddingClient embedding.Client
	retriever       ChunkRetriever
	documentRepo    repository.DocumentRepository
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, retriever ChunkRetriever, documentRepo repository.DocumentRepository) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		retriever:       retriever,
		documentRepo:    documentRepo,
	}
}

// Search 执行一次相似度检索。
func (s *searchService) Search(ctx context.Context, query string, owner *uuid.UUID, documentID *uuid.UUID, topK int) ([]rag.RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, rag.NewValidationError("查询内容不能为空")
	}
	if topK == 0 {
		topK = config.Conf.RAG.DefaultTopK
	}
	log.Infof("[SearchService] 开始检索, query: '%s', topK: %d", query, topK)

	// 1. 向量化查询
	log.Info("[SearchService] 步骤1: 开始向量化查询")
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}
	log.Infof("[SearchService] 步骤1: 向量化查询成功, 向量维度: %d", len(queryVector))

	// 2. 相似度检索与排序
	log.Info("[SearchService] 步骤2: 开始检索相似分块")
	results, err := s.retriever.Retrieve(ctx, queryVector, owner, documentID, topK)
	if err != nil {
		log.Errorf("[SearchService] 检索相似分块失败: %v", err)
		return nil, fmt.Errorf("检索相似分块失败: %w", err)
	}
	log.Infof("[SearchService] 检索完成, 返回 %d 条结果", len(results))
	return results, nil
}

// Ping 探测检索链路的两个外部依赖：向量化服务与数据库。
// 任一失败只置标志位，不返回错误。
func (s *searchService) Ping(ctx context.Context) *RAGStatus {
	status := &RAGStatus{Embedding: true, Database: true}

	if _, err := s.embeddingClient.CreateEmbedding(ctx, "test"); err != nil {
		log.Warnf("[SearchService] 向量化服务探测失败: %v", err)
		status.Embedding = false
	}
	if err := s.documentRepo.Ping(ctx); err != nil {
		log.Warnf("[SearchService] 数据库探测失败: %v", err)
		status.Database = false
	}

	status.OK = status.Embedding && status.Database
	return status
}
