package service

import (
	"fmt"
	"strings"

	"agent-platform-go/internal/model"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
)

// ConversationService 接口定义了会话与消息管理的业务操作。
type ConversationService interface {
	Create(owner *uuid.UUID, title string) (*model.Conversation, error)
	List(owner *uuid.UUID, includeArchived bool) ([]model.Conversation, error)
	Get(id uuid.UUID, owner *uuid.UUID) (*model.Conversation, error)
	Update(id uuid.UUID, owner *uuid.UUID, title *string, archived *bool) (*model.Conversation, error)
	Delete(id uuid.UUID, owner *uuid.UUID) error
	ListMessages(conversationID uuid.UUID, owner *uuid.UUID) ([]model.Message, error)
	AppendMessage(conversationID uuid.UUID, owner *uuid.UUID, role, content string, agentID *uuid.UUID, toolUsed string) (*model.Message, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(conversationRepo repository.ConversationRepository) ConversationService {
	return &conversationService{conversationRepo: conversationRepo}
}

// Create 创建一个新会话，标题可以为空。
func (s *conversationService) Create(owner *uuid.UUID, title string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:    uuid.New(),
		Owner: owner,
		Title: strings.TrimSpace(title),
	}
	if err := s.conversationRepo.Create(conv); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	log.Infof("[ConversationService] 会话创建成功, conversationID: %s", conv.ID)
	return conv, nil
}

// List 列出调用方的会话，默认隐藏已归档的。
func (s *conversationService) List(owner *uuid.UUID, includeArchived bool) ([]model.Conversation, error) {
	return s.conversationRepo.ListByOwner(owner, includeArchived)
}

// Get 读取单个会话，越权访问与不存在同样返回未找到。
func (s *conversationService) Get(id uuid.UUID, owner *uuid.UUID) (*model.Conversation, error) {
	return s.conversationRepo.FindByIDForOwner(id, owner)
}

// Update 修改会话的标题或归档状态，nil 字段保持原值。
func (s *conversationService) Update(id uuid.UUID, owner *uuid.UUID, title *string, archived *bool) (*model.Conversation, error) {
	if title == nil && archived == nil {
		return nil, rag.NewValidationError("没有需要更新的字段")
	}

	conv, err := s.conversationRepo.FindByIDForOwner(id, owner)
	if err != nil {
		return nil, err
	}
	if title != nil {
		conv.Title = strings.TrimSpace(*title)
	}
	if archived != nil {
		conv.Archived = *archived
	}
	if err := s.conversationRepo.Update(conv); err != nil {
		return nil, fmt.Errorf("更新会话失败: %w", err)
	}
	return conv, nil
}

// Delete 删除会话及其全部消息。
func (s *conversationService) Delete(id uuid.UUID, owner *uuid.UUID) error {
	if _, err := s.conversationRepo.FindByIDForOwner(id, owner); err != nil {
		return err
	}
	if err := s.conversationRepo.Delete(id); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	log.Infof("[ConversationService] 会话删除完成, conversationID: %s", id)
	return nil
}

// ListMessages 按时间顺序读取会话的全部消息。
func (s *conversationService) ListMessages(conversationID uuid.UUID, owner *uuid.UUID) ([]model.Message, error) {
	if _, err := s.conversationRepo.FindByIDForOwner(conversationID, owner); err != nil {
		return nil, err
	}
	return s.conversationRepo.ListMessages(conversationID, 0)
}

// AppendMessage 向会话追加一条消息。
func (s *conversationService) AppendMessage(conversationID uuid.UUID, owner *uuid.UUID, role, content string, agentID *uuid.UUID, toolUsed string) (*model.Message, error) {
	if !isValidRole(role) {
		return nil, rag.NewValidationError("不支持的消息角色: %s", role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, rag.NewValidationError("消息内容不能为空")
	}
	if _, err := s.conversationRepo.FindByIDForOwner(conversationID, owner); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AgentID:        agentID,
		ToolUsed:       toolUsed,
	}
	if err := s.conversationRepo.AppendMessage(msg); err != nil {
		return nil, fmt.Errorf("追加消息失败: %w", err)
	}
	return msg, nil
}

// isValidRole 校验消息角色是否在支持的集合内。
func isValidRole(role string) bool {
	switch role {
	case rag.RoleUser, rag.RoleAssistant, rag.RoleSystem, rag.RoleTool:
		return true
	}
	return false
}
