package repository

import (
	"errors"

	"agent-platform-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrAgentNotFound 表示助手不存在或不属于当前用户。
var ErrAgentNotFound = errors.New("agent not found")

// AgentRepository 接口定义了助手及其工具配置的数据操作方法。
type AgentRepository interface {
	Create(agent *model.Agent) error
	FindByIDForOwner(id uuid.UUID, owner uuid.UUID) (*model.Agent, error)
	ListByOwner(owner uuid.UUID) ([]model.Agent, error)
	Update(agent *model.Agent) error
	Delete(id uuid.UUID) error
	ClearDefault(owner uuid.UUID) error
	ListTools(agentID uuid.UUID) ([]model.AgentTool, error)
	FindTool(agentID uuid.UUID, toolKey string) (*model.AgentTool, error)
	UpsertTool(tool *model.AgentTool) error
	RemoveTool(agentID uuid.UUID, toolKey string) error
}

type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository 创建一个新的 AgentRepository 实例。
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

// Create 在数据库中插入一个新的助手记录。
func (r *agentRepository) Create(agent *model.Agent) error {
	return r.db.Create(agent).Error
}

// FindByIDForOwner 查找属于指定用户的助手，越权访问与不存在同样返回 ErrAgentNotFound。
func (r *agentRepository) FindByIDForOwner(id uuid.UUID, owner uuid.UUID) (*model.Agent, error) {
	var agent model.Agent
	err := r.db.Where("id = ? AND owner = ?", id, owner).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListByOwner 列出某用户的全部助手，默认助手在前，其余按创建时间排列。
func (r *agentRepository) ListByOwner(owner uuid.UUID) ([]model.Agent, error) {
	var agents []model.Agent
	err := r.db.Where("owner = ?", owner).
		Order("is_default DESC, created_at ASC").Find(&agents).Error
	return agents, err
}

// Update 更新数据库中一个已存在的助手记录。
func (r *agentRepository) Update(agent *model.Agent) error {
	return r.db.Save(agent).Error
}

// Delete 删除助手及其工具配置。
func (r *agentRepository) Delete(id uuid.UUID) error {
	return errors.Join(
		r.db.Where("agent_id = ?", id).Delete(&model.AgentTool{}).Error,
		r.db.Delete(&model.Agent{}, "id = ?", id).Error,
	)
}

// ClearDefault 取消某用户所有助手的默认标记，设置新默认助手前调用。
func (r *agentRepository) ClearDefault(owner uuid.UUID) error {
	return r.db.Model(&model.Agent{}).Where("owner = ?", owner).
		Update("is_default", false).Error
}

// ListTools 列出助手已配置的工具。
func (r *agentRepository) ListTools(agentID uuid.UUID) ([]model.AgentTool, error) {
	var tools []model.AgentTool
	err := r.db.Where("agent_id = ?", agentID).Order("tool_key ASC").Find(&tools).Error
	return tools, err
}

// FindTool 查找助手上某个工具的配置，未配置时返回 gorm.ErrRecordNotFound。
func (r *agentRepository) FindTool(agentID uuid.UUID, toolKey string) (*model.AgentTool, error) {
	var tool model.AgentTool
	err := r.db.Where("agent_id = ? AND tool_key = ?", agentID, toolKey).First(&tool).Error
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

// UpsertTool 写入助手的工具配置，已存在时覆盖开关与参数。
func (r *agentRepository) UpsertTool(tool *model.AgentTool) error {
	var existing model.AgentTool
	err := r.db.Where("agent_id = ? AND tool_key = ?", tool.AgentID, tool.ToolKey).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(tool).Error
	}
	if err != nil {
		return err
	}
	existing.Enabled = tool.Enabled
	existing.Config = tool.Config
	if err := r.db.Save(&existing).Error; err != nil {
		return err
	}
	*tool = existing
	return nil
}

// RemoveTool 移除助手上的某个工具配置。
func (r *agentRepository) RemoveTool(agentID uuid.UUID, toolKey string) error {
	return r.db.Where("agent_id = ? AND tool_key = ?", agentID, toolKey).
		Delete(&model.AgentTool{}).Error
}
