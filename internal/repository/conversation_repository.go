// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"

	"agent-platform-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrConversationNotFound 表示会话不存在或不属于当前用户。
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository 定义了会话与消息的持久化操作接口。
type ConversationRepository interface {
	Create(conv *model.Conversation) error
	FindByIDForOwner(id uuid.UUID, owner *uuid.UUID) (*model.Conversation, error)
	ListByOwner(owner *uuid.UUID, includeArchived bool) ([]model.Conversation, error)
	Update(conv *model.Conversation) error
	Delete(id uuid.UUID) error
	AppendMessage(msg *model.Message) error
	ListMessages(conversationID uuid.UUID, limit int) ([]model.Message, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create 创建会话记录。
func (r *conversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// FindByIDForOwner 在归属范围内查找会话，越权访问与不存在同样返回 ErrConversationNotFound。
func (r *conversationRepository) FindByIDForOwner(id uuid.UUID, owner *uuid.UUID) (*model.Conversation, error) {
	query := r.db.Where("id = ?", id)
	if owner == nil {
		query = query.Where("owner IS NULL")
	} else {
		query = query.Where("owner = ?", *owner)
	}
	var conv model.Conversation
	err := query.First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByOwner 按归属列出会话，最近更新的在前。默认隐藏已归档会话。
func (r *conversationRepository) ListByOwner(owner *uuid.UUID, includeArchived bool) ([]model.Conversation, error) {
	query := r.db.Model(&model.Conversation{})
	if owner == nil {
		query = query.Where("owner IS NULL")
	} else {
		query = query.Where("owner = ?", *owner)
	}
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}
	var convs []model.Conversation
	err := query.Order("updated_at DESC").Find(&convs).Error
	return convs, err
}

// Update 保存会话的标题、归档状态等字段变更。
func (r *conversationRepository) Update(conv *model.Conversation) error {
	return r.db.Save(conv).Error
}

// Delete 删除会话及其全部消息。
func (r *conversationRepository) Delete(id uuid.UUID) error {
	return errors.Join(
		r.db.Where("conversation_id = ?", id).Delete(&model.Message{}).Error,
		r.db.Where("id = ?", id).Delete(&model.Conversation{}).Error,
	)
}

// AppendMessage 追加一条消息并刷新会话的更新时间。
func (r *conversationRepository) AppendMessage(msg *model.Message) error {
	if err := r.db.Create(msg).Error; err != nil {
		return err
	}
	return r.db.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).
		Update("updated_at", msg.CreatedAt).Error
}

// ListMessages 按时间顺序读取会话消息，limit 大于 0 时只保留最近的 limit 条。
func (r *conversationRepository) ListMessages(conversationID uuid.UUID, limit int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
