package handler

import (
	"context"
	"net/http"
	"testing"

	"agent-platform-go/internal/model"
	"agent-platform-go/internal/service"
	"agent-platform-go/internal/tools"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newToolRouter(h *ToolHandler, owner *uuid.UUID) *gin.Engine {
	r := gin.New()
	r.GET("/api/tools", h.Catalog)
	authed := r.Group("/api/tools")
	if owner != nil {
		authed.Use(withOwner(*owner))
	}
	authed.POST("/execute", h.Execute)
	authed.GET("/logs", h.ListLogs)
	return r
}

func TestToolCatalogIsPublic(t *testing.T) {
	svc := &fakeToolService{
		catalog: []tools.Descriptor{
			{Key: "get_weather", Name: "天气查询", Params: map[string]string{"city": "城市名"}},
			{Key: "get_news", Name: "新闻头条"},
		},
	}
	r := newToolRouter(NewToolHandler(svc), nil)

	w := doJSON(t, r, http.MethodGet, "/api/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}

	var got []tools.Descriptor
	mustUnmarshal(t, w.Body.Bytes(), &got)
	if len(got) != 2 || got[0].Key != "get_weather" || got[1].Key != "get_news" {
		t.Errorf("目录内容异常: %+v", got)
	}
}

func TestExecuteToolRequiresAuth(t *testing.T) {
	r := newToolRouter(NewToolHandler(&fakeToolService{}), nil)

	w := doJSON(t, r, http.MethodPost, "/api/tools/execute", gin.H{"tool_key": "get_weather"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("状态码 = %d, 期望 401", w.Code)
	}
}

func TestExecuteToolSuccess(t *testing.T) {
	owner := uuid.New()
	agentID := uuid.New()
	var gotOwner, gotAgent *uuid.UUID
	var gotKey string
	var gotParams map[string]interface{}
	svc := &fakeToolService{
		executeFn: func(ctx context.Context, o *uuid.UUID, a *uuid.UUID, toolKey string, params map[string]interface{}) (map[string]interface{}, error) {
			gotOwner, gotAgent, gotKey, gotParams = o, a, toolKey, params
			return map[string]interface{}{"city": "北京", "temperature": "26℃"}, nil
		},
	}
	r := newToolRouter(NewToolHandler(svc), &owner)

	payload := gin.H{
		"agent_id": agentID.String(),
		"tool_key": "get_weather",
		"params":   gin.H{"city": "北京"},
	}
	w := doJSON(t, r, http.MethodPost, "/api/tools/execute", payload)

	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	result, _ := body["result"].(map[string]interface{})
	if result["city"] != "北京" {
		t.Errorf("result = %v", body["result"])
	}
	if gotOwner == nil || *gotOwner != owner {
		t.Errorf("owner = %v, 期望 %s", gotOwner, owner)
	}
	if gotAgent == nil || *gotAgent != agentID {
		t.Errorf("agentID = %v, 期望 %s", gotAgent, agentID)
	}
	if gotKey != "get_weather" || gotParams["city"] != "北京" {
		t.Errorf("toolKey = %s, params = %v", gotKey, gotParams)
	}
}

func TestExecuteToolRejectsBadAgentID(t *testing.T) {
	owner := uuid.New()
	r := newToolRouter(NewToolHandler(&fakeToolService{}), &owner)

	w := doJSON(t, r, http.MethodPost, "/api/tools/execute", gin.H{"agent_id": "not-a-uuid", "tool_key": "get_weather"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, 期望 400", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "无效的 agent_id 参数" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestExecuteToolErrorMapping(t *testing.T) {
	owner := uuid.New()
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "助手未启用工具",
			err:        service.ErrToolNotEnabled,
			wantStatus: http.StatusForbidden,
			wantError:  "该助手未启用此工具",
		},
		{
			name:       "外部接口限流",
			err:        &tools.ToolError{Message: "新闻接口调用过于频繁，请稍后再试", RateLimited: true},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "新闻接口调用过于频繁，请稍后再试",
		},
		{
			name:       "工具参数错误",
			err:        &tools.ToolError{Message: "缺少 city 参数"},
			wantStatus: http.StatusBadRequest,
			wantError:  "缺少 city 参数",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeToolService{
				executeFn: func(ctx context.Context, o *uuid.UUID, a *uuid.UUID, toolKey string, params map[string]interface{}) (map[string]interface{}, error) {
					return nil, tc.err
				},
			}
			r := newToolRouter(NewToolHandler(svc), &owner)

			w := doJSON(t, r, http.MethodPost, "/api/tools/execute", gin.H{"tool_key": "get_news"})
			if w.Code != tc.wantStatus {
				t.Fatalf("状态码 = %d, 期望 %d, body: %s", w.Code, tc.wantStatus, w.Body.String())
			}
			if body := decodeBody(t, w); body["error"] != tc.wantError {
				t.Errorf("error = %v, 期望 %s", body["error"], tc.wantError)
			}
		})
	}
}

func TestListToolLogs(t *testing.T) {
	owner := uuid.New()

	t.Run("默认条数", func(t *testing.T) {
		svc := &fakeToolService{logs: []model.ToolLog{{ID: uuid.New(), ToolKey: "get_weather"}}}
		r := newToolRouter(NewToolHandler(svc), &owner)

		w := doJSON(t, r, http.MethodGet, "/api/tools/logs", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d", w.Code)
		}
		if svc.lastLimit != toolLogDefaultLimit {
			t.Errorf("limit = %d, 期望 %d", svc.lastLimit, toolLogDefaultLimit)
		}
		var got []model.ToolLog
		mustUnmarshal(t, w.Body.Bytes(), &got)
		if len(got) != 1 || got[0].ToolKey != "get_weather" {
			t.Errorf("日志内容异常: %+v", got)
		}
	})

	t.Run("自定义条数", func(t *testing.T) {
		svc := &fakeToolService{}
		r := newToolRouter(NewToolHandler(svc), &owner)

		w := doJSON(t, r, http.MethodGet, "/api/tools/logs?limit=5", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d", w.Code)
		}
		if svc.lastLimit != 5 {
			t.Errorf("limit = %d, 期望 5", svc.lastLimit)
		}
	})

	t.Run("非法条数", func(t *testing.T) {
		r := newToolRouter(NewToolHandler(&fakeToolService{}), &owner)

		for _, q := range []string{"limit=abc", "limit=0", "limit=-1"} {
			w := doJSON(t, r, http.MethodGet, "/api/tools/logs?"+q, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: 状态码 = %d, 期望 400", q, w.Code)
			}
		}
	})

	t.Run("未登录", func(t *testing.T) {
		r := newToolRouter(NewToolHandler(&fakeToolService{}), nil)

		w := doJSON(t, r, http.MethodGet, "/api/tools/logs", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("状态码 = %d, 期望 401", w.Code)
		}
	})
}
