package rag

import (
	"fmt"
	"strings"
)

// 对话消息角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 是提交给生成模型的一条对话消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptAssembler 按固定顺序拼装提示词：
//  1. 智能体指令（system，可选）
//  2. 检索资料（system，含 [source N] 标记；无命中时整条省略）
//  3. 历史消息（按时间顺序，角色原样保留）
//  4. 用户问题（user，始终最后）
type PromptAssembler struct {
	rules      string
	charBudget int
}

// NewPromptAssembler 创建一个 PromptAssembler。
// rules 为检索资料前的使用说明，charBudget 限制资料块的总字符数。
func NewPromptAssembler(rules string, charBudget int) *PromptAssembler {
	return &PromptAssembler{rules: rules, charBudget: charBudget}
}

// Assemble 生成有序消息列表，并返回实际进入提示词的块。
// 超出字符预算时从相似度最低的块开始丢弃；被丢弃的块不会出现在
// 返回的 included 中，因此也永远不会被引用。
func (a *PromptAssembler) Assemble(question string, retrieved []RetrievedChunk, agentInstructions string, history []Message) ([]Message, []RetrievedChunk) {
	included := a.fitToBudget(retrieved)

	msgs := make([]Message, 0, len(history)+3)
	if agentInstructions != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: agentInstructions})
	}
	if len(included) > 0 {
		msgs = append(msgs, Message{Role: RoleSystem, Content: a.buildGroundingMessage(included)})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: question})
	return msgs, included
}

// fitToBudget 从尾部（相似度最低）逐个丢弃块，直到资料部分的
// 字符总量不超过预算。块按 Rank 有序，丢尾不会打乱 source 编号。
func (a *PromptAssembler) fitToBudget(retrieved []RetrievedChunk) []RetrievedChunk {
	if a.charBudget <= 0 || len(retrieved) == 0 {
		return retrieved
	}
	total := 0
	cut := len(retrieved)
	for i, c := range retrieved {
		total += len([]rune(a.renderSource(i+1, c.Text)))
		if total > a.charBudget {
			cut = i
			break
		}
	}
	return retrieved[:cut]
}

// buildGroundingMessage 生成资料 system 消息：使用规则 + 逐条标记的资料。
func (a *PromptAssembler) buildGroundingMessage(included []RetrievedChunk) string {
	var sb strings.Builder
	if a.rules != "" {
		sb.WriteString(a.rules)
		sb.WriteString("\n\n")
	}
	for i, c := range included {
		sb.WriteString(a.renderSource(i+1, c.Text))
	}
	return sb.String()
}

func (a *PromptAssembler) renderSource(n int, text string) string {
	return fmt.Sprintf("[source %d] %s\n", n, text)
}
