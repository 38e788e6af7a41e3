package repository

import (
	"errors"

	"agent-platform-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrMemoryNotFound 表示记忆不存在或不属于当前用户。
var ErrMemoryNotFound = errors.New("memory not found")

// MemoryRepository 接口定义了长期记忆、审计日志与用户偏好的数据操作方法。
type MemoryRepository interface {
	Create(memory *model.Memory) error
	Update(memory *model.Memory) error
	FindByIDForOwner(id uuid.UUID, owner uuid.UUID) (*model.Memory, error)
	ListByOwner(owner uuid.UUID, limit, offset int) ([]model.Memory, error)
	ListRecentByOwner(owner uuid.UUID, limit int) ([]model.Memory, error)
	Delete(id uuid.UUID, owner uuid.UUID) error
	AppendLog(entry *model.MemoryLog) error
	GetSettings(owner uuid.UUID) (*model.UserSetting, error)
	SaveSettings(settings *model.UserSetting) error
}

type memoryRepository struct {
	db *gorm.DB
}

// NewMemoryRepository 创建一个新的 MemoryRepository 实例。
func NewMemoryRepository(db *gorm.DB) MemoryRepository {
	return &memoryRepository{db: db}
}

// Create 插入一条记忆记录。
func (r *memoryRepository) Create(memory *model.Memory) error {
	return r.db.Create(memory).Error
}

// Update 保存记忆的文本、向量与元数据变更。
func (r *memoryRepository) Update(memory *model.Memory) error {
	return r.db.Save(memory).Error
}

// FindByIDForOwner 查找属于指定用户的记忆，越权访问与不存在同样返回 ErrMemoryNotFound。
func (r *memoryRepository) FindByIDForOwner(id uuid.UUID, owner uuid.UUID) (*model.Memory, error) {
	var memory model.Memory
	err := r.db.Where("id = ? AND owner = ?", id, owner).First(&memory).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

// ListByOwner 按创建时间倒序分页列出某用户的记忆。
func (r *memoryRepository) ListByOwner(owner uuid.UUID, limit, offset int) ([]model.Memory, error) {
	var memories []model.Memory
	query := r.db.Where("owner = ?", owner).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&memories).Error
	return memories, err
}

// ListRecentByOwner 按更新时间倒序取最近的若干条记忆，
// 供去重比对与向量检索使用。相似度打分在服务层完成。
func (r *memoryRepository) ListRecentByOwner(owner uuid.UUID, limit int) ([]model.Memory, error) {
	var memories []model.Memory
	query := r.db.Where("owner = ?", owner).Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&memories).Error
	return memories, err
}

// Delete 删除某用户的一条记忆。
func (r *memoryRepository) Delete(id uuid.UUID, owner uuid.UUID) error {
	result := r.db.Where("id = ? AND owner = ?", id, owner).Delete(&model.Memory{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

// AppendLog 追加一条记忆操作日志。
func (r *memoryRepository) AppendLog(entry *model.MemoryLog) error {
	return r.db.Create(entry).Error
}

// GetSettings 读取用户偏好，没有记录时返回 nil，默认值由服务层决定。
func (r *memoryRepository) GetSettings(owner uuid.UUID) (*model.UserSetting, error) {
	var settings model.UserSetting
	err := r.db.Where("owner = ?", owner).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings 写入用户偏好，不存在时创建。
func (r *memoryRepository) SaveSettings(settings *model.UserSetting) error {
	var existing model.UserSetting
	err := r.db.Where("owner = ?", settings.Owner).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(settings).Error
	}
	if err != nil {
		return err
	}
	existing.AutosaveMemories = settings.AutosaveMemories
	if err := r.db.Save(&existing).Error; err != nil {
		return err
	}
	*settings = existing
	return nil
}
