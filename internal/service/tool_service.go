package service

import (
	"context"
	"errors"
	"fmt"

	"agent-platform-go/internal/model"
	"agent-platform-go/internal/repository"
	"agent-platform-go/internal/tools"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrToolNotEnabled 表示指定的助手未启用该工具。
var ErrToolNotEnabled = errors.New("tool not enabled for this agent")

// ToolService 定义了内置工具的目录查询与执行接口。
type ToolService interface {
	// Catalog 返回所有内置工具的描述信息，无需鉴权。
	Catalog() []tools.Descriptor
	// Execute 执行指定工具。传入 agentID 时会先校验该助手是否启用了
	// 此工具；无论成功失败都会写入一条调用日志。
	Execute(ctx context.Context, owner *uuid.UUID, agentID *uuid.UUID, toolKey string, params map[string]interface{}) (map[string]interface{}, error)
	// ListLogs 列出某用户最近的工具调用日志。
	ListLogs(owner uuid.UUID, limit int) ([]model.ToolLog, error)
}

type toolService struct {
	registry  *tools.Registry
	agentRepo repository.AgentRepository
	stateRepo repository.ToolStateRepository
}

// NewToolService 创建一个新的 ToolService 实例。
func NewToolService(registry *tools.Registry, agentRepo repository.AgentRepository, stateRepo repository.ToolStateRepository) ToolService {
	return &toolService{
		registry:  registry,
		agentRepo: agentRepo,
		stateRepo: stateRepo,
	}
}

// Catalog 返回注册表中的全部工具描述。
func (s *toolService) Catalog() []tools.Descriptor {
	return s.registry.Catalog()
}

// Execute 执行工具调用的完整流程：启用校验、分发执行、审计落库。
func (s *toolService) Execute(ctx context.Context, owner *uuid.UUID, agentID *uuid.UUID, toolKey string, params map[string]interface{}) (map[string]interface{}, error) {
	log.Infof("[ToolService] 收到工具执行请求, tool: %s, agent: %v", toolKey, agentID)

	// 1. 指定了助手时校验工具启用状态
	if agentID != nil {
		if err := s.checkEnabled(owner, *agentID, toolKey); err != nil {
			return nil, err
		}
	}

	// 2. 分发到具体工具执行
	result, err := s.registry.Execute(ctx, toolKey, owner, params)
	if err != nil {
		// 失败同样入审计日志，记录错误文案
		s.writeLog(owner, agentID, toolKey, params, map[string]interface{}{"error": err.Error()})
		log.Warnf("[ToolService] 工具执行失败, tool: %s, error: %v", toolKey, err)
		return nil, err
	}

	// 3. 成功结果入审计日志
	s.writeLog(owner, agentID, toolKey, params, result)
	log.Infof("[ToolService] 工具执行成功, tool: %s", toolKey)
	return result, nil
}

// ListLogs 列出某用户最近的工具调用日志。
func (s *toolService) ListLogs(owner uuid.UUID, limit int) ([]model.ToolLog, error) {
	return s.stateRepo.ListLogsByOwner(owner, limit)
}

// checkEnabled 校验助手归属与工具启用状态。
// 匿名调用方没有助手，未配置或已禁用都视为未启用。
func (s *toolService) checkEnabled(owner *uuid.UUID, agentID uuid.UUID, toolKey string) error {
	if owner == nil {
		return ErrToolNotEnabled
	}
	if _, err := s.agentRepo.FindByIDForOwner(agentID, *owner); err != nil {
		return err
	}
	tool, err := s.agentRepo.FindTool(agentID, toolKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrToolNotEnabled
	}
	if err != nil {
		return fmt.Errorf("查询助手工具配置失败: %w", err)
	}
	if !tool.Enabled {
		return ErrToolNotEnabled
	}
	return nil
}

// writeLog 追加一条工具调用日志，失败只记日志不影响主流程。
func (s *toolService) writeLog(owner *uuid.UUID, agentID *uuid.UUID, toolKey string, params map[string]interface{}, result map[string]interface{}) {
	entry := &model.ToolLog{
		Owner:   owner,
		AgentID: agentID,
		ToolKey: toolKey,
		Params:  model.JSONMap(params),
		Result:  model.JSONMap(result),
	}
	if err := s.stateRepo.CreateLog(entry); err != nil {
		log.Errorf("[ToolService] 写入工具调用日志失败: %v", err)
	}
}
