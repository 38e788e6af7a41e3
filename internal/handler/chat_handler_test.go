package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"agent-platform-go/internal/model"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/service"
	"agent-platform-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newChatRouter(h *ChatHandler, owner *uuid.UUID) *gin.Engine {
	r := gin.New()
	group := r.Group("/api/llm")
	if owner != nil {
		group.Use(withOwner(*owner))
	}
	group.POST("/chat", h.Chat)
	group.GET("/chat/websocket-token", h.GetWebsocketToken)
	return r
}

func TestChatRejectsInvalidPayload(t *testing.T) {
	h := NewChatHandler(&fakeChatService{}, token.NewJWTManager("secret", "authenticated"))
	r := newChatRouter(h, nil)

	w := doJSON(t, r, http.MethodPost, "/api/llm/chat", "{不是 JSON")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, 期望 400", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "无效的请求负载" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestChatForwardsOwnerAndRequest(t *testing.T) {
	owner := uuid.New()
	var gotOwner *uuid.UUID
	var gotReq *model.ChatRequest
	svc := &fakeChatService{
		chatFn: func(ctx context.Context, o *uuid.UUID, req *model.ChatRequest) (*service.ChatResult, error) {
			gotOwner = o
			gotReq = req
			return &service.ChatResult{
				Response: "你好，我能帮你什么？",
				Citations: []rag.Citation{
					{ID: uuid.New(), Snippet: "摘录", Similarity: 0.91},
				},
			}, nil
		},
	}
	h := NewChatHandler(svc, token.NewJWTManager("secret", "authenticated"))
	r := newChatRouter(h, &owner)

	payload := model.ChatRequest{
		Messages: []model.ChatMessage{{Role: "user", Content: "文档讲了什么？"}},
		UseRAG:   true,
		TopK:     3,
	}
	w := doJSON(t, r, http.MethodPost, "/api/llm/chat", payload)

	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if gotOwner == nil || *gotOwner != owner {
		t.Errorf("传给服务层的 owner = %v, 期望 %s", gotOwner, owner)
	}
	if gotReq == nil || len(gotReq.Messages) != 1 || gotReq.TopK != 3 || !gotReq.UseRAG {
		t.Errorf("传给服务层的请求不完整: %+v", gotReq)
	}
	body := decodeBody(t, w)
	if body["response"] != "你好，我能帮你什么？" {
		t.Errorf("response = %v", body["response"])
	}
	if !strings.Contains(w.Body.String(), "citations") {
		t.Errorf("应答缺少 citations 字段: %s", w.Body.String())
	}
}

func TestChatAnonymousPassesNilOwner(t *testing.T) {
	called := false
	svc := &fakeChatService{
		chatFn: func(ctx context.Context, o *uuid.UUID, req *model.ChatRequest) (*service.ChatResult, error) {
			called = true
			if o != nil {
				t.Errorf("匿名请求 owner = %v, 期望 nil", o)
			}
			return &service.ChatResult{Response: "ok"}, nil
		},
	}
	h := NewChatHandler(svc, token.NewJWTManager("secret", "authenticated"))
	r := newChatRouter(h, nil)

	payload := model.ChatRequest{Messages: []model.ChatMessage{{Role: "user", Content: "hi"}}}
	w := doJSON(t, r, http.MethodPost, "/api/llm/chat", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if !called {
		t.Fatal("服务层未被调用")
	}
}

func TestChatCitationsFieldShape(t *testing.T) {
	t.Run("检索无命中时返回空引用列表", func(t *testing.T) {
		svc := &fakeChatService{
			chatFn: func(ctx context.Context, o *uuid.UUID, req *model.ChatRequest) (*service.ChatResult, error) {
				return &service.ChatResult{Response: "没有找到相关资料", Citations: []rag.Citation{}}, nil
			},
		}
		h := NewChatHandler(svc, token.NewJWTManager("secret", "authenticated"))
		r := newChatRouter(h, nil)

		payload := model.ChatRequest{Messages: []model.ChatMessage{{Role: "user", Content: "退款政策"}}, UseRAG: true}
		w := doJSON(t, r, http.MethodPost, "/api/llm/chat", payload)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		raw, ok := body["citations"]
		if !ok {
			t.Fatal("启用检索时 citations 字段必须存在")
		}
		if list, isList := raw.([]interface{}); !isList || len(list) != 0 {
			t.Errorf("citations = %v, 期望空列表", raw)
		}
	})

	t.Run("未启用检索时不带引用字段", func(t *testing.T) {
		svc := &fakeChatService{
			chatFn: func(ctx context.Context, o *uuid.UUID, req *model.ChatRequest) (*service.ChatResult, error) {
				return &service.ChatResult{Response: "直接回答"}, nil
			},
		}
		h := NewChatHandler(svc, token.NewJWTManager("secret", "authenticated"))
		r := newChatRouter(h, nil)

		payload := model.ChatRequest{Messages: []model.ChatMessage{{Role: "user", Content: "你好"}}}
		w := doJSON(t, r, http.MethodPost, "/api/llm/chat", payload)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if _, ok := body["citations"]; ok {
			t.Error("未启用检索时响应不应包含 citations 字段")
		}
	})
}

func TestChatMapsGenerationFailure(t *testing.T) {
	svc := &fakeChatService{
		chatFn: func(ctx context.Context, o *uuid.UUID, req *model.ChatRequest) (*service.ChatResult, error) {
			return nil, &rag.RemoteGenerationError{StatusCode: 502, Detail: "bad gateway"}
		},
	}
	h := NewChatHandler(svc, token.NewJWTManager("secret", "authenticated"))
	r := newChatRouter(h, nil)

	payload := model.ChatRequest{Messages: []model.ChatMessage{{Role: "user", Content: "hi"}}}
	w := doJSON(t, r, http.MethodPost, "/api/llm/chat", payload)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("状态码 = %d, 期望 500", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != "GENERATION_FAILED" {
		t.Errorf("code = %v", body["code"])
	}
	if strings.Contains(w.Body.String(), "bad gateway") {
		t.Errorf("服务商错误细节泄露: %s", w.Body.String())
	}
}

func TestGetWebsocketTokenRequiresAuth(t *testing.T) {
	h := NewChatHandler(&fakeChatService{}, token.NewJWTManager("secret", "authenticated"))
	r := newChatRouter(h, nil)

	w := doJSON(t, r, http.MethodGet, "/api/llm/chat/websocket-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("状态码 = %d, 期望 401", w.Code)
	}
}

func TestGetWebsocketTokenIssuesCredentials(t *testing.T) {
	owner := uuid.New()
	mgr := token.NewJWTManager("secret", "authenticated")
	h := NewChatHandler(&fakeChatService{}, mgr)
	r := newChatRouter(h, &owner)

	w := doJSON(t, r, http.MethodGet, "/api/llm/chat/websocket-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	wsToken, _ := body["ws_token"].(string)
	cmdToken, _ := body["cmd_token"].(string)
	if wsToken == "" || cmdToken == "" {
		t.Fatalf("应答缺少令牌字段: %s", w.Body.String())
	}

	// ws_token 必须能被同一个管理器验签且归属正确的用户。
	claims, err := mgr.VerifyToken(wsToken)
	if err != nil {
		t.Fatalf("验证 ws_token 失败: %v", err)
	}
	userID, err := claims.UserID()
	if err != nil || userID != owner {
		t.Errorf("ws_token 归属 = %v (err=%v), 期望 %s", userID, err, owner)
	}
	if !strings.HasPrefix(cmdToken, "WSS_STOP_CMD_") {
		t.Errorf("cmd_token 格式异常: %s", cmdToken)
	}

	// 每次签发都轮换停止令牌。
	w2 := doJSON(t, r, http.MethodGet, "/api/llm/chat/websocket-token", nil)
	if cmd2 := decodeBody(t, w2)["cmd_token"]; cmd2 == cmdToken {
		t.Errorf("停止令牌未轮换: %v", cmd2)
	}
}

func TestParseStreamRequest(t *testing.T) {
	t.Run("JSON 请求体按完整请求解析", func(t *testing.T) {
		raw := `{"messages":[{"role":"user","content":"问题"}],"use_rag":false,"top_k":2}`
		req := parseStreamRequest([]byte(raw))
		if len(req.Messages) != 1 || req.Messages[0].Content != "问题" {
			t.Fatalf("messages = %+v", req.Messages)
		}
		if req.UseRAG || req.TopK != 2 {
			t.Errorf("use_rag = %v, top_k = %d", req.UseRAG, req.TopK)
		}
	})

	t.Run("纯文本按单条 user 问题处理", func(t *testing.T) {
		req := parseStreamRequest([]byte("文档讲了什么？"))
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "文档讲了什么？" {
			t.Fatalf("messages = %+v", req.Messages)
		}
		if !req.UseRAG {
			t.Error("纯文本问题应默认开启检索")
		}
	})

	t.Run("没有消息的 JSON 退回纯文本处理", func(t *testing.T) {
		raw := `{"foo":"bar"}`
		req := parseStreamRequest([]byte(raw))
		if len(req.Messages) != 1 || req.Messages[0].Content != raw {
			t.Fatalf("messages = %+v", req.Messages)
		}
	})
}
