package service

import (
	"errors"
	"fmt"
	"strings"

	"agent-platform-go/internal/model"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/internal/tools"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentService 接口定义了智能体及其工具配置的业务操作。
type AgentService interface {
	Create(owner uuid.UUID, name, instructions, avatarURL string, isDefault bool) (*model.Agent, error)
	List(owner uuid.UUID) ([]model.Agent, error)
	Get(id uuid.UUID, owner uuid.UUID) (*model.Agent, error)
	Update(id uuid.UUID, owner uuid.UUID, name, instructions, avatarURL *string, isDefault *bool) (*model.Agent, error)
	Delete(id uuid.UUID, owner uuid.UUID) error
	ListTools(agentID uuid.UUID, owner uuid.UUID) ([]model.AgentTool, error)
	UpsertTool(agentID uuid.UUID, owner uuid.UUID, toolKey string, enabled *bool, config map[string]interface{}) (*model.AgentTool, error)
}

type agentService struct {
	agentRepo repository.AgentRepository
	registry  *tools.Registry
}

// NewAgentService 创建一个新的 AgentService 实例。
func NewAgentService(agentRepo repository.AgentRepository, registry *tools.Registry) AgentService {
	return &agentService{agentRepo: agentRepo, registry: registry}
}

// Create 为用户创建一个智能体。设为默认时会先取消该用户其他
// 智能体的默认标记，保证默认智能体唯一。
func (s *agentService) Create(owner uuid.UUID, name, instructions, avatarURL string, isDefault bool) (*model.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, rag.NewValidationError("智能体名称不能为空")
	}
	if strings.TrimSpace(instructions) == "" {
		return nil, rag.NewValidationError("智能体指令不能为空")
	}

	if isDefault {
		if err := s.agentRepo.ClearDefault(owner); err != nil {
			return nil, fmt.Errorf("取消原默认智能体失败: %w", err)
		}
	}
	agent := &model.Agent{
		ID:           uuid.New(),
		Owner:        owner,
		Name:         name,
		Instructions: instructions,
		AvatarURL:    avatarURL,
		IsDefault:    isDefault,
	}
	if err := s.agentRepo.Create(agent); err != nil {
		return nil, fmt.Errorf("创建智能体失败: %w", err)
	}
	log.Infof("[AgentService] 智能体创建成功, agentID: %s, name: %s", agent.ID, agent.Name)
	return agent, nil
}

// List 列出用户的全部智能体，默认智能体在前。
func (s *agentService) List(owner uuid.UUID) ([]model.Agent, error) {
	return s.agentRepo.ListByOwner(owner)
}

// Get 读取单个智能体，越权访问与不存在同样返回未找到。
func (s *agentService) Get(id uuid.UUID, owner uuid.UUID) (*model.Agent, error) {
	return s.agentRepo.FindByIDForOwner(id, owner)
}

// Update 修改智能体字段，nil 字段保持原值。
func (s *agentService) Update(id uuid.UUID, owner uuid.UUID, name, instructions, avatarURL *string, isDefault *bool) (*model.Agent, error) {
	if name == nil && instructions == nil && avatarURL == nil && isDefault == nil {
		return nil, rag.NewValidationError("没有需要更新的字段")
	}

	agent, err := s.agentRepo.FindByIDForOwner(id, owner)
	if err != nil {
		return nil, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, rag.NewValidationError("智能体名称不能为空")
		}
		agent.Name = trimmed
	}
	if instructions != nil {
		if strings.TrimSpace(*instructions) == "" {
			return nil, rag.NewValidationError("智能体指令不能为空")
		}
		agent.Instructions = *instructions
	}
	if avatarURL != nil {
		agent.AvatarURL = *avatarURL
	}
	if isDefault != nil {
		if *isDefault && !agent.IsDefault {
			if err := s.agentRepo.ClearDefault(owner); err != nil {
				return nil, fmt.Errorf("取消原默认智能体失败: %w", err)
			}
		}
		agent.IsDefault = *isDefault
	}
	if err := s.agentRepo.Update(agent); err != nil {
		return nil, fmt.Errorf("更新智能体失败: %w", err)
	}
	return agent, nil
}

// Delete 删除智能体及其工具配置。
func (s *agentService) Delete(id uuid.UUID, owner uuid.UUID) error {
	if _, err := s.agentRepo.FindByIDForOwner(id, owner); err != nil {
		return err
	}
	if err := s.agentRepo.Delete(id); err != nil {
		return fmt.Errorf("删除智能体失败: %w", err)
	}
	log.Infof("[AgentService] 智能体删除完成, agentID: %s", id)
	return nil
}

// ListTools 列出智能体的工具配置。
func (s *agentService) ListTools(agentID uuid.UUID, owner uuid.UUID) ([]model.AgentTool, error) {
	if _, err := s.agentRepo.FindByIDForOwner(agentID, owner); err != nil {
		return nil, err
	}
	return s.agentRepo.ListTools(agentID)
}

// UpsertTool 写入智能体的工具开关与参数，nil 字段保持原值。
// 工具键必须在注册表中存在。
func (s *agentService) UpsertTool(agentID uuid.UUID, owner uuid.UUID, toolKey string, enabled *bool, config map[string]interface{}) (*model.AgentTool, error) {
	if !s.registry.Has(toolKey) {
		return nil, rag.NewValidationError("不支持的工具: %s", toolKey)
	}
	if _, err := s.agentRepo.FindByIDForOwner(agentID, owner); err != nil {
		return nil, err
	}

	tool := &model.AgentTool{AgentID: agentID, ToolKey: toolKey}
	existing, err := s.agentRepo.FindTool(agentID, toolKey)
	switch {
	case err == nil:
		tool.Enabled = existing.Enabled
		tool.Config = existing.Config
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 首次配置，使用零值
	default:
		return nil, fmt.Errorf("查询工具配置失败: %w", err)
	}

	if enabled != nil {
		tool.Enabled = *enabled
	}
	if config != nil {
		tool.Config = model.JSONMap(config)
	}
	if err := s.agentRepo.UpsertTool(tool); err != nil {
		return nil, fmt.Errorf("写入工具配置失败: %w", err)
	}
	return tool, nil
}
