// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/rag"
	"agent-platform-go/pkg/log"

	"github.com/gorilla/websocket"
)

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and our interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// 生成结果的两种形态：纯文本，或模型请求调用某个工具。
const (
	ResultText     = "text"
	ResultToolCall = "tool_call"
)

// GeneratorResult 是生成调用的带标签结果。形态在客户端边界判定一次，
// 之后的流程只看 Kind，不再重新解析文本。
type GeneratorResult struct {
	Kind       string
	Text       string
	ToolName   string
	ToolParams map[string]interface{}
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以同步方式调用聊天接口并返回判定后的结果。
	// 仅当服务商返回限流（429）时重试一次，其余失败立即上抛。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (*GeneratorResult, error)
	// StreamChatMessages 以 role-based 消息与可选生成参数调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client for an OpenAI-compatible endpoint.
func NewClient(cfg config.LLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// 限流重试前的等待时间。
const rateLimitBackoff = time.Second

// Complete calls the chat completions API once and classifies the reply.
func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (*GeneratorResult, error) {
	reqBytes, err := json.Marshal(c.buildRequest(messages, gen, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	text, err := c.completeOnce(ctx, reqBytes)
	if err != nil {
		var genErr *rag.RemoteGenerationError
		if !(errors.As(err, &genErr) && genErr.IsRateLimited()) {
			return nil, err
		}
		// 限流：等待片刻后重试一次，仍失败则上抛
		log.Warnf("[LLMClient] 服务商限流，%s 后重试一次", rateLimitBackoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rateLimitBackoff):
		}
		text, err = c.completeOnce(ctx, reqBytes)
		if err != nil {
			return nil, err
		}
	}

	return classify(text), nil
}

func (c *openAICompatibleClient) completeOnce(ctx context.Context, reqBytes []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &rag.RemoteGenerationError{Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Errorf("[LLMClient] Chat API 返回非 200 状态码: %s, body: %s", resp.Status, string(body))
		return "", &rag.RemoteGenerationError{StatusCode: resp.StatusCode, Detail: string(body)}
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", &rag.RemoteGenerationError{StatusCode: resp.StatusCode, Detail: "invalid response body", Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &rag.RemoteGenerationError{StatusCode: resp.StatusCode, Detail: "empty completion"}
	}
	return completion.Choices[0].Message.Content, nil
}

// classify 在客户端边界一次性判定结果形态：
// 回复恰好是一个 {"tool": ..., "params": {...}} JSON 对象时视为工具调用，
// 其余一律按纯文本处理。
func classify(text string) *GeneratorResult {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var directive struct {
			Tool   string                 `json:"tool"`
			Params map[string]interface{} `json:"params"`
		}
		if err := json.Unmarshal([]byte(trimmed), &directive); err == nil && directive.Tool != "" {
			return &GeneratorResult{
				Kind:       ResultToolCall,
				ToolName:   directive.Tool,
				ToolParams: directive.Params,
			}
		}
	}
	return &GeneratorResult{Kind: ResultText, Text: text}
}

func (c *openAICompatibleClient) buildRequest(messages []Message, gen *GenerationParams, stream bool) chatRequest {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	// 从配置或传参注入生成参数（传参优先生效）
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
	} else {
		if c.cfg.Generation.Temperature != 0 {
			t := c.cfg.Generation.Temperature
			reqBody.Temperature = &t
		}
		if c.cfg.Generation.TopP != 0 {
			p := c.cfg.Generation.TopP
			reqBody.TopP = &p
		}
		if c.cfg.Generation.MaxTokens != 0 {
			m := c.cfg.Generation.MaxTokens
			reqBody.MaxTokens = &m
		}
	}
	return reqBody
}

// StreamChatMessages calls the chat completions API and streams the response.
func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	reqBytes, err := json.Marshal(c.buildRequest(messages, gen, true))
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return &rag.RemoteGenerationError{Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Errorf("[LLMClient] Chat API 返回非 200 状态码: %s, body: %s", resp.Status, string(bodyBytes))
		return &rag.RemoteGenerationError{StatusCode: resp.StatusCode, Detail: string(bodyBytes)}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}

			var chunk streamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if len(chunk.Choices) > 0 {
				content := chunk.Choices[0].Delta.Content
				if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
					return fmt.Errorf("failed to write message to websocket: %w", err)
				}
			}
		}
	}
	return nil
}
