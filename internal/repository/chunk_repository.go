package repository

import (
	"context"

	"agent-platform-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChunkRepository 定义了对 doc_chunks 表的数据操作接口。
// FindCandidates 同时满足检索核心的 ChunkStore 契约：
// owner 为 nil 时只返回无归属（owner IS NULL）的分块，
// 非 nil 时只返回该用户自己的分块，两者永不混合。
type ChunkRepository interface {
	BatchCreate(chunks []*model.Chunk) error
	FindCandidates(ctx context.Context, owner *uuid.UUID, documentID *uuid.UUID) ([]model.Chunk, error)
	CountByDocumentID(documentID uuid.UUID) (int64, error)
	DeleteByDocumentID(documentID uuid.UUID) error
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量创建文档分块记录。
func (r *chunkRepository) BatchCreate(chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindCandidates 按归属过滤读取候选分块，documentID 非 nil 时限定单个文档。
// 只读扫描，排序与打分都在检索核心完成。
func (r *chunkRepository) FindCandidates(ctx context.Context, owner *uuid.UUID, documentID *uuid.UUID) ([]model.Chunk, error) {
	query := r.db.WithContext(ctx).Model(&model.Chunk{})
	if owner == nil {
		query = query.Where("owner IS NULL")
	} else {
		query = query.Where("owner = ?", *owner)
	}
	if documentID != nil {
		query = query.Where("document_id = ?", *documentID)
	}
	var chunks []model.Chunk
	err := query.Find(&chunks).Error
	return chunks, err
}

// CountByDocumentID 统计某文档已入库的分块数量。
func (r *chunkRepository) CountByDocumentID(documentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&count).Error
	return count, err
}

// DeleteByDocumentID 删除某文档的全部分块，重新入库前调用以保证幂等。
func (r *chunkRepository) DeleteByDocumentID(documentID uuid.UUID) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}
