// Package pipeline 定义了文档入库处理的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/model"
	"agent-platform-go/internal/repository"
	"agent-platform-go/pkg/embedding"
	"agent-platform-go/pkg/extractor"
	"agent-platform-go/pkg/log"
	"agent-platform-go/pkg/storage"
	"agent-platform-go/pkg/tasks"

	"github.com/pgvector/pgvector-go"
)

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	extractorClient *extractor.Client
	embeddingClient embedding.Client
	minioCfg        config.MinIOConfig
	docRepo         repository.DocumentRepository
	chunkRepo       repository.ChunkRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractorClient *extractor.Client,
	embeddingClient embedding.Client,
	minioCfg config.MinIOConfig,
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
) *Processor {
	return &Processor{
		extractorClient: extractorClient,
		embeddingClient: embeddingClient,
		minioCfg:        minioCfg,
		docRepo:         docRepo,
		chunkRepo:       chunkRepo,
	}
}

// Process 是文档处理的主函数，失败时将文档状态标记为 error。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, FileName: %s", task.DocumentID, task.FileName)

	if err := p.process(ctx, task); err != nil {
		if statusErr := p.docRepo.UpdateStatus(task.DocumentID, model.DocumentStatusError); statusErr != nil {
			log.Errorf("[Processor] 更新文档状态为 error 失败, DocumentID: %s, Error: %v", task.DocumentID, statusErr)
		}
		return err
	}

	if err := p.docRepo.UpdateStatus(task.DocumentID, model.DocumentStatusProcessed); err != nil {
		log.Errorf("[Processor] 更新文档状态为 processed 失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[Processor] 文档处理成功完成, DocumentID: %s", task.DocumentID)
	return nil
}

func (p *Processor) process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	// 1. 从 MinIO 下载文件
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", p.minioCfg.BucketName, task.ObjectKey)
	object, err := storage.GetObject(ctx, p.minioCfg.BucketName, task.ObjectKey)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectKey, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 从MinIO对象流中读取内容失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 文件大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}

	// 2. 提取文本
	log.Info("[Processor] 步骤2: 提取文本内容")
	textContent, err := p.extractorClient.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		log.Errorf("[Processor] 提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("提取文本失败: %w", err)
	}
	if textContent == "" {
		log.Warnf("[Processor] 提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 清洗并按句子分块
	log.Infof("[Processor] 步骤3: 清洗文本并分块, 目标每块 %d tokens", DefaultChunkTokens)
	cleaned := CleanText(textContent)
	chunks := SplitIntoChunks(cleaned, DefaultChunkTokens)
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, FileName: %s", task.FileName)
		return errors.New("未生成任何文本分块")
	}

	// 4. 逐块向量化
	log.Info("[Processor] 步骤4: 开始遍历分块并进行向量化")
	records := make([]*model.Chunk, 0, len(chunks))
	for i, chunkText := range chunks {
		vector, err := p.embeddingClient.CreateEmbedding(ctx, chunkText)
		if err != nil {
			log.Errorf("[Processor] 分块 %d 向量化失败, Error: %v", i, err)
			return fmt.Errorf("块 %d 向量化失败: %w", i, err)
		}
		records = append(records, &model.Chunk{
			DocumentID: task.DocumentID,
			ChunkIndex: i,
			ChunkText:  chunkText,
			Embedding:  pgvector.NewVector(vector),
			TokenCount: EstimateTokenCount(chunkText),
			Owner:      task.Owner,
		})
		log.Infof("[Processor] 分块 %d/%d 向量化成功", i+1, len(chunks))
	}

	// 5. 替换写入：先清理该文档既有分块（幂等），再批量入库。
	// 向量化全部成功后才清理，避免中途失败导致旧分块丢失。
	log.Info("[Processor] 步骤5: 开始将分块写入数据库")
	if err := p.chunkRepo.DeleteByDocumentID(task.DocumentID); err != nil {
		log.Errorf("[Processor] 清理文档旧分块失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return fmt.Errorf("清理文档旧分块失败: %w", err)
	}
	if err := p.chunkRepo.BatchCreate(records); err != nil {
		log.Errorf("[Processor] 批量保存分块到数据库失败, Error: %v", err)
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤5: 成功将 %d 个分块存入数据库", len(records))
	return nil
}
