// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/model"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/pkg/embedding"
	"agent-platform-go/pkg/llm"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ChunkRetriever 约束对话编排所需的检索能力，生产实现为 *rag.Retriever。
type ChunkRetriever interface {
	Retrieve(ctx context.Context, queryVector []float32, owner *uuid.UUID, documentID *uuid.UUID, topK int) ([]rag.RetrievedChunk, error)
}

// ChatResult 是一次对话编排的最终产出。
// Citations 为 nil 表示本轮未启用检索；启用检索但无命中时为空切片。
type ChatResult struct {
	Response       string         `json:"response"`
	Citations      []rag.Citation `json:"citations,omitempty"`
	ConversationID *uuid.UUID     `json:"conversation_id,omitempty"`
}

// ChatService 定义了对话编排的接口。
type ChatService interface {
	// Chat 以同步方式执行一轮对话编排并返回完整结果。
	Chat(ctx context.Context, owner *uuid.UUID, req *model.ChatRequest) (*ChatResult, error)
	// StreamResponse 执行同样的编排，但生成阶段以流式分块写入 WebSocket。
	StreamResponse(ctx context.Context, owner *uuid.UUID, req *model.ChatRequest, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	embeddingClient  embedding.Client
	retriever        ChunkRetriever
	assembler        *rag.PromptAssembler
	llmClient        llm.Client
	agentRepo        repository.AgentRepository
	conversationRepo repository.ConversationRepository
	toolService      ToolService
	memoryService    MemoryService
}

// NewChatService 创建一个新的 ChatService 实例。
// memoryService 可以为 nil，此时不做对话后的记忆自动沉淀。
func NewChatService(embeddingClient embedding.Client, retriever ChunkRetriever, llmClient llm.Client, agentRepo repository.AgentRepository, conversationRepo repository.ConversationRepository, toolService ToolService, memoryService MemoryService) ChatService {
	return &chatService{
		embeddingClient:  embeddingClient,
		retriever:        retriever,
		assembler:        rag.NewPromptAssembler(config.Conf.RAG.GroundingRules, config.Conf.RAG.GroundingCharBudget),
		llmClient:        llmClient,
		agentRepo:        agentRepo,
		conversationRepo: conversationRepo,
		toolService:      toolService,
		memoryService:    memoryService,
	}
}

// chatContext 汇集生成之前各阶段的中间产物。
type chatContext struct {
	question string
	messages []rag.Message
	included []rag.RetrievedChunk
}

// Chat 协调完整的对话流程：校验、检索、拼装、生成与引用映射。
func (s *chatService) Chat(ctx context.Context, owner *uuid.UUID, req *model.ChatRequest) (*ChatResult, error) {
	cc, err := s.prepare(ctx, owner, req)
	if err != nil {
		return nil, err
	}

	// 生成阶段：结果形态在客户端边界判定一次，工具调用指令在此消费
	log.Info("[ChatService] 步骤5 GENERATING: 开始调用生成模型")
	llmMsgs := toLLMMessages(cc.messages)
	gen := buildGenerationParams()
	result, err := s.llmClient.Complete(ctx, llmMsgs, gen)
	if err != nil {
		log.Errorf("[ChatService] FAILED(GENERATING): %v", err)
		return nil, fmt.Errorf("生成回答失败: %w", err)
	}

	responseText := result.Text
	toolUsed := ""
	if result.Kind == llm.ResultToolCall {
		responseText, toolUsed = s.runToolRound(ctx, owner, req.AgentID, llmMsgs, gen, result)
	}

	// 引用映射：只在启用检索时进行，且只映射真正进入提示词的分块
	var citations []rag.Citation
	if req.UseRAG {
		log.Infof("[ChatService] 步骤6 MAPPING_CITATIONS: 映射 %d 条引用", len(cc.included))
		citations = rag.MapCitations(cc.included, config.Conf.RAG.SnippetLength)
	}

	out := &ChatResult{Response: responseText, Citations: citations}
	if req.ConversationID != nil {
		s.persistTurns(*req.ConversationID, req.AgentID, cc.question, responseText, citations, toolUsed)
		out.ConversationID = req.ConversationID
	}
	log.Infof("[ChatService] DONE: 对话处理完成, use_rag: %v, citations: %d", req.UseRAG, len(citations))
	s.maybeAutosaveMemory(owner, cc.question, responseText)
	return out, nil
}

// StreamResponse 协调同样的编排流程并流式传输生成结果。
// 流式响应不做工具调用判定，分块按原样透传。
func (s *chatService) StreamResponse(ctx context.Context, owner *uuid.UUID, req *model.ChatRequest, ws *websocket.Conn, shouldStop func() bool) error {
	cc, err := s.prepare(ctx, owner, req)
	if err != nil {
		return err
	}

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	log.Info("[ChatService] 步骤5 GENERATING: 开始流式调用生成模型")
	err = s.llmClient.StreamChatMessages(ctx, toLLMMessages(cc.messages), buildGenerationParams(), interceptor)
	if err != nil {
		log.Errorf("[ChatService] FAILED(GENERATING): %v", err)
		return err
	}

	var citations []rag.Citation
	if req.UseRAG {
		log.Infof("[ChatService] 步骤6 MAPPING_CITATIONS: 映射 %d 条引用", len(cc.included))
		citations = rag.MapCitations(cc.included, config.Conf.RAG.SnippetLength)
	}

	// 发送完成通知（附带引用），再把完整问答落库
	sendCompletion(ws, citations)
	fullAnswer := answerBuilder.String()
	if req.ConversationID != nil && len(fullAnswer) > 0 {
		s.persistTurns(*req.ConversationID, req.AgentID, cc.question, fullAnswer, citations, "")
	}
	log.Infof("[ChatService] DONE: 流式对话处理完成, use_rag: %v", req.UseRAG)
	s.maybeAutosaveMemory(owner, cc.question, fullAnswer)
	return nil
}

// prepare 执行生成之前的所有阶段：请求校验、会话与智能体解析、
// 检索（仅在启用时）与提示词拼装。
func (s *chatService) prepare(ctx context.Context, owner *uuid.UUID, req *model.ChatRequest) (*chatContext, error) {
	log.Infof("[ChatService] 步骤1 RECEIVED: 收到对话请求, use_rag: %v, top_k: %d, messages: %d", req.UseRAG, req.TopK, len(req.Messages))
	question, history, err := s.resolveMessages(owner, req)
	if err != nil {
		log.Warnf("[ChatService] FAILED(RECEIVED): %v", err)
		return nil, err
	}

	instructions, err := s.resolveAgentInstructions(owner, req.AgentID)
	if err != nil {
		log.Warnf("[ChatService] FAILED(RECEIVED): 解析智能体失败: %v", err)
		return nil, err
	}

	var retrieved []rag.RetrievedChunk
	if req.UseRAG {
		retrieved, err = s.retrieveContext(ctx, owner, req, question)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info("[ChatService] 未启用检索，跳过向量化与检索阶段")
	}

	messages, included := s.assembler.Assemble(question, retrieved, instructions, history)
	log.Infof("[ChatService] 步骤4 ASSEMBLING: 提示词拼装完成, 消息数: %d, 进入资料的分块数: %d", len(messages), len(included))
	return &chatContext{question: question, messages: messages, included: included}, nil
}

// resolveMessages 校验请求消息并拆出问题与历史。
// 只带问题且指定了会话时，从库中读取该会话的消息作为历史。
func (s *chatService) resolveMessages(owner *uuid.UUID, req *model.ChatRequest) (string, []rag.Message, error) {
	if len(req.Messages) == 0 {
		return "", nil, rag.NewValidationError("未提供任何消息")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != rag.RoleUser {
		return "", nil, rag.NewValidationError("最后一条消息必须来自用户")
	}
	question := strings.TrimSpace(last.Content)
	if question == "" {
		return "", nil, rag.NewValidationError("问题内容不能为空")
	}

	// 指定会话时先校验归属，越权或不存在的会话直接拒绝
	if req.ConversationID != nil {
		if _, err := s.conversationRepo.FindByIDForOwner(*req.ConversationID, owner); err != nil {
			return "", nil, err
		}
	}

	history := make([]rag.Message, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		history = append(history, rag.Message{Role: m.Role, Content: m.Content})
	}
	if len(history) == 0 && req.ConversationID != nil {
		stored, err := s.conversationRepo.ListMessages(*req.ConversationID, 0)
		if err != nil {
			return "", nil, fmt.Errorf("读取会话历史失败: %w", err)
		}
		for _, m := range stored {
			history = append(history, rag.Message{Role: m.Role, Content: m.Content})
		}
	}
	return question, history, nil
}

// resolveAgentInstructions 读取智能体指令，未指定智能体时返回空串。
func (s *chatService) resolveAgentInstructions(owner *uuid.UUID, agentID *uuid.UUID) (string, error) {
	if agentID == nil {
		return "", nil
	}
	if owner == nil {
		return "", rag.NewValidationError("使用智能体前请先登录")
	}
	agent, err := s.agentRepo.FindByIDForOwner(*agentID, *owner)
	if err != nil {
		return "", err
	}
	return agent.Instructions, nil
}

// retrieveContext 向量化问题并检索相似分块。
func (s *chatService) retrieveContext(ctx context.Context, owner *uuid.UUID, req *model.ChatRequest, question string) ([]rag.RetrievedChunk, error) {
	log.Info("[ChatService] 步骤2 EMBEDDING: 开始向量化问题")
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, question)
	if err != nil {
		log.Errorf("[ChatService] FAILED(EMBEDDING): %v", err)
		return nil, fmt.Errorf("向量化问题失败: %w", err)
	}

	topK := req.TopK
	if topK == 0 {
		topK = config.Conf.RAG.DefaultTopK
	}
	log.Infof("[ChatService] 步骤3 RETRIEVING: 开始检索相似分块, topK: %d", topK)
	retrieved, err := s.retriever.Retrieve(ctx, queryVector, owner, req.DocumentID, topK)
	if err != nil {
		log.Errorf("[ChatService] FAILED(RETRIEVING): %v", err)
		return nil, fmt.Errorf("检索相似分块失败: %w", err)
	}
	log.Infof("[ChatService] 步骤3 RETRIEVING: 命中 %d 个候选分块", len(retrieved))
	return retrieved, nil
}

// runToolRound 消费工具调用指令：执行工具、把结果作为 tool 消息追加后
// 重新生成一次。每个请求至多一轮，二次指令不再执行。任何失败都降级为
// 返回指令原文，不让请求整体失败。
func (s *chatService) runToolRound(ctx context.Context, owner *uuid.UUID, agentID *uuid.UUID, llmMsgs []llm.Message, gen *llm.GenerationParams, directive *llm.GeneratorResult) (string, string) {
	directiveText := renderToolDirective(directive)
	log.Infof("[ChatService] 生成结果为工具调用指令, tool: %s", directive.ToolName)

	toolResult, err := s.toolService.Execute(ctx, owner, agentID, directive.ToolName, directive.ToolParams)
	if err != nil {
		log.Warnf("[ChatService] 工具执行失败，降级为返回指令原文: %v", err)
		return directiveText, ""
	}

	resultBytes, err := json.Marshal(toolResult)
	if err != nil {
		log.Warnf("[ChatService] 序列化工具结果失败，降级为返回指令原文: %v", err)
		return directiveText, ""
	}

	followup := make([]llm.Message, 0, len(llmMsgs)+2)
	followup = append(followup, llmMsgs...)
	followup = append(followup,
		llm.Message{Role: rag.RoleAssistant, Content: directiveText},
		llm.Message{Role: rag.RoleTool, Content: string(resultBytes)},
	)
	second, err := s.llmClient.Complete(ctx, followup, gen)
	if err != nil {
		log.Warnf("[ChatService] 工具结果复述生成失败，降级为返回指令原文: %v", err)
		return directiveText, directive.ToolName
	}
	if second.Kind == llm.ResultToolCall {
		return renderToolDirective(second), directive.ToolName
	}
	return second.Text, directive.ToolName
}

// maybeAutosaveMemory 在一轮对话完成后按用户偏好异步沉淀记忆。
// 偏好关闭、匿名请求或沉淀失败都不影响已经返回的对话结果。
func (s *chatService) maybeAutosaveMemory(owner *uuid.UUID, question, answer string) {
	if s.memoryService == nil || owner == nil || answer == "" {
		return
	}
	ownerID := *owner
	transcript := fmt.Sprintf("user: %s\nassistant: %s", question, answer)
	go func() {
		enabled, err := s.memoryService.GetAutosavePreference(ownerID)
		if err != nil {
			log.Warnf("[ChatService] 读取自动沉淀偏好失败 (不阻塞): %v", err)
			return
		}
		if !enabled {
			return
		}
		if _, err := s.memoryService.Condense(context.Background(), ownerID, transcript); err != nil {
			log.Warnf("[ChatService] 自动沉淀记忆失败 (不阻塞): %v", err)
		}
	}()
}

// persistTurns 在编排完成后把问答双方的消息落库，失败只记日志。
// 引用随助手消息冗余存储，便于历史回放。
func (s *chatService) persistTurns(conversationID uuid.UUID, agentID *uuid.UUID, question, answer string, citations []rag.Citation, toolUsed string) {
	userMsg := &model.Message{
		ConversationID: conversationID,
		Role:           rag.RoleUser,
		Content:        question,
		AgentID:        agentID,
	}
	if err := s.conversationRepo.AppendMessage(userMsg); err != nil {
		log.Errorf("[ChatService] 保存用户消息失败: %v", err)
		return
	}
	assistantMsg := &model.Message{
		ConversationID: conversationID,
		Role:           rag.RoleAssistant,
		Content:        answer,
		Citations:      citationsToJSONArray(citations),
		AgentID:        agentID,
		ToolUsed:       toolUsed,
	}
	if err := s.conversationRepo.AppendMessage(assistantMsg); err != nil {
		log.Errorf("[ChatService] 保存助手消息失败: %v", err)
	}
}

// renderToolDirective 将工具调用指令还原为 JSON 文本。
func renderToolDirective(result *llm.GeneratorResult) string {
	directive := map[string]interface{}{"tool": result.ToolName}
	if result.ToolParams != nil {
		directive["params"] = result.ToolParams
	}
	b, err := json.Marshal(directive)
	if err != nil {
		return result.ToolName
	}
	return string(b)
}

// citationsToJSONArray 把引用列表转成可存进 jsonb 列的通用数组。
func citationsToJSONArray(citations []rag.Citation) model.JSONArray {
	if len(citations) == 0 {
		return nil
	}
	b, err := json.Marshal(citations)
	if err != nil {
		return nil
	}
	var arr model.JSONArray
	if err := json.Unmarshal(b, &arr); err != nil {
		return nil
	}
	return arr
}

// toLLMMessages 把编排消息转换为生成客户端的消息类型。
func toLLMMessages(msgs []rag.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON，启用检索时附带本轮引用。
func sendCompletion(ws *websocket.Conn, citations []rag.Citation) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	if citations != nil {
		notif["citations"] = citations
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

// buildGenerationParams 从配置读取生成参数，全部为零值时返回 nil。
func buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if config.Conf.LLM.Generation.Temperature != 0 {
		t := config.Conf.LLM.Generation.Temperature
		gp.Temperature = &t
	}
	if config.Conf.LLM.Generation.TopP != 0 {
		p := config.Conf.LLM.Generation.TopP
		gp.TopP = &p
	}
	if config.Conf.LLM.Generation.MaxTokens != 0 {
		m := config.Conf.LLM.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
