package repository

import (
	"context"
	"errors"

	"agent-platform-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示文档不存在或不属于当前用户。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id uuid.UUID) (*model.Document, error)
	FindByIDForOwner(id uuid.UUID, owner *uuid.UUID) (*model.Document, error)
	ListByOwner(owner *uuid.UUID) ([]model.Document, error)
	UpdateStatus(id uuid.UUID, status string) error
	Delete(id uuid.UUID) error
	Ping(ctx context.Context) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 创建文档元数据记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByID 按主键查找文档，未找到时返回 ErrDocumentNotFound。
func (r *documentRepository) FindByID(id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByIDForOwner 在归属范围内查找文档：owner 为 nil 时只匹配无归属文档，
// 非 nil 时只匹配该用户自己的文档。越权访问与不存在同样返回 ErrDocumentNotFound。
func (r *documentRepository) FindByIDForOwner(id uuid.UUID, owner *uuid.UUID) (*model.Document, error) {
	query := r.db.Where("id = ?", id)
	if owner == nil {
		query = query.Where("owner IS NULL")
	} else {
		query = query.Where("owner = ?", *owner)
	}
	var doc model.Document
	err := query.First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByOwner 按归属列出文档，新上传的在前。
func (r *documentRepository) ListByOwner(owner *uuid.UUID) ([]model.Document, error) {
	query := r.db.Model(&model.Document{})
	if owner == nil {
		query = query.Where("owner IS NULL")
	} else {
		query = query.Where("owner = ?", *owner)
	}
	var docs []model.Document
	err := query.Order("upload_timestamp DESC").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新文档处理状态。
func (r *documentRepository) UpdateStatus(id uuid.UUID, status string) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error
}

// Delete 删除文档记录本身，分块由 ChunkRepository 负责清理。
func (r *documentRepository) Delete(id uuid.UUID) error {
	return r.db.Where("id = ?", id).Delete(&model.Document{}).Error
}

// Ping 对 documents 表做一次最小查询，用于健康探测。
func (r *documentRepository) Ping(ctx context.Context) error {
	var docs []model.Document
	return r.db.WithContext(ctx).Select("id").Limit(1).Find(&docs).Error
}
