package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/model"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/pkg/embedding"
	"agent-platform-go/pkg/llm"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// 记忆字段的长度上限与去重比对窗口。
const (
	memoryTitleLimit  = 100
	memoryTextLimit   = 600
	memoryDedupWindow = 50
	memorySearchPool  = 200
)

// condensePrompt 是对话沉淀的指令模板，输出必须是 JSON 字符串数组。
const condensePrompt = "Condense the following conversation into up to 3 concise memory statements about the user " +
	"(preferences, facts, long-term commitments). Each statement must be one sentence, factual, and not sensitive. " +
	"If nothing to save, return empty JSON list [].\n\nConversation:\n%s\n\nReturn JSON: [\"User likes X.\", \"User prefers Y.\"]"

// MemoryMatchDTO 在记忆记录上附加与查询的相似度。
type MemoryMatchDTO struct {
	model.Memory
	Similarity float64 `json:"similarity"`
}

// MemoryService 接口定义了长期记忆的业务操作。
type MemoryService interface {
	Create(ctx context.Context, owner uuid.UUID, title, memoryText string, metadata map[string]interface{}) (*model.Memory, error)
	List(owner uuid.UUID, limit, offset int) ([]model.Memory, error)
	Search(ctx context.Context, owner uuid.UUID, query string, topK int) ([]MemoryMatchDTO, error)
	Get(id uuid.UUID, owner uuid.UUID) (*model.Memory, error)
	Delete(id uuid.UUID, owner uuid.UUID) error
	Condense(ctx context.Context, owner uuid.UUID, conversation string) ([]model.Memory, error)
	GetAutosavePreference(owner uuid.UUID) (bool, error)
	SetAutosavePreference(owner uuid.UUID, enabled bool) (bool, error)
}

type memoryService struct {
	memoryRepo      repository.MemoryRepository
	embeddingClient embedding.Client
	llmClient       llm.Client
}

// NewMemoryService 创建一个新的 MemoryService 实例。
func NewMemoryService(memoryRepo repository.MemoryRepository, embeddingClient embedding.Client, llmClient llm.Client) MemoryService {
	return &memoryService{
		memoryRepo:      memoryRepo,
		embeddingClient: embeddingClient,
		llmClient:       llmClient,
	}
}

// Create 新建一条记忆。先与最近的记忆做余弦相似度比对，超过阈值的
// 视为重复：刷新已有记录并把新来源合并进元数据，不再插入新行。
func (s *memoryService) Create(ctx context.Context, owner uuid.UUID, title, memoryText string, metadata map[string]interface{}) (*model.Memory, error) {
	title = strings.TrimSpace(title)
	memoryText = strings.TrimSpace(memoryText)
	if title == "" || memoryText == "" {
		return nil, rag.NewValidationError("title 和 memory_text 不能为空")
	}

	// 1. 向量化记忆文本。没有向量的记忆既无法去重也无法检索，
	// 向量化失败时直接失败而不是存入死数据。
	vector, err := s.embeddingClient.CreateEmbedding(ctx, memoryText)
	if err != nil {
		return nil, fmt.Errorf("向量化记忆文本失败: %w", err)
	}

	// 2. 与最近的记忆去重
	recent, err := s.memoryRepo.ListRecentByOwner(owner, memoryDedupWindow)
	if err != nil {
		return nil, fmt.Errorf("读取近期记忆失败: %w", err)
	}
	threshold := config.Conf.Memory.DedupThreshold
	for i := range recent {
		stored := recent[i].Embedding.Slice()
		if len(stored) == 0 {
			continue
		}
		if rag.CosineSimilarity(vector, stored) > threshold {
			return s.mergeDuplicate(&recent[i], owner, metadata)
		}
	}

	// 3. 插入新记忆
	memory := &model.Memory{
		ID:         uuid.New(),
		Owner:      owner,
		Title:      clipRunes(title, memoryTitleLimit),
		MemoryText: clipRunes(memoryText, memoryTextLimit),
		Embedding:  pgvector.NewVector(vector),
		Metadata:   model.JSONMap(metadata),
	}
	if err := s.memoryRepo.Create(memory); err != nil {
		return nil, fmt.Errorf("保存记忆失败: %w", err)
	}
	s.logEvent(owner, &memory.ID, "created", nil)
	log.Infof("[MemoryService] 记忆创建成功, memoryID: %s", memory.ID)
	return memory, nil
}

// mergeDuplicate 处理去重命中：刷新已有记忆并把新来源追加到
// metadata.references，返回已有记录。
func (s *memoryService) mergeDuplicate(existing *model.Memory, owner uuid.UUID, metadata map[string]interface{}) (*model.Memory, error) {
	if existing.Metadata == nil {
		existing.Metadata = model.JSONMap{}
	}
	refs, _ := existing.Metadata["references"].([]interface{})
	existing.Metadata["references"] = append(refs, metadata)

	if err := s.memoryRepo.Update(existing); err != nil {
		return nil, fmt.Errorf("刷新重复记忆失败: %w", err)
	}
	s.logEvent(owner, &existing.ID, "deduplicated", model.JSONMap{"reason": "dedup"})
	log.Infof("[MemoryService] 记忆去重命中, 复用已有记录: %s", existing.ID)
	return existing, nil
}

// List 按创建时间倒序分页列出记忆。
func (s *memoryService) List(owner uuid.UUID, limit, offset int) ([]model.Memory, error) {
	return s.memoryRepo.ListByOwner(owner, limit, offset)
}

// Search 向量化查询后在最近的记忆里做余弦相似度排序，返回前 topK 条。
// 排序与文档检索同一套约定：相似度降序，同分按更新时间与主键兜底。
func (s *memoryService) Search(ctx context.Context, owner uuid.UUID, query string, topK int) ([]MemoryMatchDTO, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, rag.NewValidationError("查询内容不能为空")
	}
	if topK <= 0 {
		topK = config.Conf.Memory.TopK
	}

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}

	candidates, err := s.memoryRepo.ListRecentByOwner(owner, memorySearchPool)
	if err != nil {
		return nil, fmt.Errorf("读取候选记忆失败: %w", err)
	}

	matches := make([]MemoryMatchDTO, 0, len(candidates))
	for _, m := range candidates {
		stored := m.Embedding.Slice()
		if len(stored) == 0 {
			continue
		}
		matches = append(matches, MemoryMatchDTO{
			Memory:     m,
			Similarity: rag.CosineSimilarity(queryVector, stored),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Get 读取单条记忆。
func (s *memoryService) Get(id uuid.UUID, owner uuid.UUID) (*model.Memory, error) {
	return s.memoryRepo.FindByIDForOwner(id, owner)
}

// Delete 删除一条记忆。重复删除保持幂等，不报错。
func (s *memoryService) Delete(id uuid.UUID, owner uuid.UUID) error {
	err := s.memoryRepo.Delete(id, owner)
	if err != nil && err != repository.ErrMemoryNotFound {
		return fmt.Errorf("删除记忆失败: %w", err)
	}
	s.logEvent(owner, &id, "deleted", nil)
	return nil
}

// Condense 让生成模型把一段对话浓缩成至多 3 条一句话记忆并逐条入库，
// 入库复用 Create 的去重逻辑。模型输出解析失败时按空列表处理。
func (s *memoryService) Condense(ctx context.Context, owner uuid.UUID, conversation string) ([]model.Memory, error) {
	conversation = strings.TrimSpace(conversation)
	if conversation == "" {
		return nil, rag.NewValidationError("conversation 不能为空")
	}

	log.Info("[MemoryService] 开始沉淀对话记忆")
	messages := []llm.Message{
		{Role: rag.RoleSystem, Content: "You output only valid JSON."},
		{Role: rag.RoleUser, Content: fmt.Sprintf(condensePrompt, conversation)},
	}
	temperature := 0.2
	maxTokens := 256
	gen := &llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens}

	result, err := s.llmClient.Complete(ctx, messages, gen)
	if err != nil {
		return nil, fmt.Errorf("生成记忆摘要失败: %w", err)
	}

	statements := parseMemoryStatements(result)
	created := make([]model.Memory, 0, len(statements))
	for _, stmt := range statements {
		title := firstWords(stmt, 8)
		memory, err := s.Create(ctx, owner, title, stmt, map[string]interface{}{"source": "chat_autosave"})
		if err != nil {
			log.Warnf("[MemoryService] 沉淀单条记忆失败: %v", err)
			continue
		}
		created = append(created, *memory)
	}
	s.logEvent(owner, nil, "condensed", model.JSONMap{"count": len(created)})
	log.Infof("[MemoryService] 对话沉淀完成, 新增/合并 %d 条记忆", len(created))
	return created, nil
}

// GetAutosavePreference 读取自动沉淀偏好，用户未设置过时返回配置默认值。
func (s *memoryService) GetAutosavePreference(owner uuid.UUID) (bool, error) {
	settings, err := s.memoryRepo.GetSettings(owner)
	if err != nil {
		return false, fmt.Errorf("读取用户偏好失败: %w", err)
	}
	if settings == nil {
		return config.Conf.Memory.AutosaveDefault, nil
	}
	return settings.AutosaveMemories, nil
}

// SetAutosavePreference 写入自动沉淀偏好。
func (s *memoryService) SetAutosavePreference(owner uuid.UUID, enabled bool) (bool, error) {
	settings := &model.UserSetting{Owner: owner, AutosaveMemories: enabled}
	if err := s.memoryRepo.SaveSettings(settings); err != nil {
		return false, fmt.Errorf("保存用户偏好失败: %w", err)
	}
	return settings.AutosaveMemories, nil
}

// logEvent 追加一条记忆审计日志，失败只记日志不阻塞主流程。
func (s *memoryService) logEvent(owner uuid.UUID, memoryID *uuid.UUID, action string, details model.JSONMap) {
	entry := &model.MemoryLog{
		Owner:    &owner,
		MemoryID: memoryID,
		Action:   action,
		Details:  details,
	}
	if err := s.memoryRepo.AppendLog(entry); err != nil {
		log.Warnf("[MemoryService] 写入记忆日志失败 (不阻塞): %v", err)
	}
}

// parseMemoryStatements 从生成结果中解析 JSON 字符串数组，
// 解析失败时尝试截取首尾方括号之间的片段重试，最多取前 3 条。
func parseMemoryStatements(result *llm.GeneratorResult) []string {
	if result.Kind != llm.ResultText {
		return nil
	}
	text := result.Text

	var raw []interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		start := strings.Index(text, "[")
		end := strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return nil
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
			return nil
		}
	}

	statements := make([]string, 0, 3)
	for _, item := range raw {
		if len(statements) == 3 {
			break
		}
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		statements = append(statements, s)
	}
	return statements
}

// firstWords 取字符串的前 n 个空白分隔词作为标题。
func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// clipRunes 按字符数截断字符串，保证多字节字符不被劈开。
func clipRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
