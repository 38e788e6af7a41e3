package handler

import (
	"context"
	"net/http"
	"testing"

	"agent-platform-go/internal/model"
	"agent-platform-go/internal/repository"
	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newMemoryRouter(h *MemoryHandler, owner *uuid.UUID) *gin.Engine {
	r := gin.New()
	group := r.Group("/api/memories")
	if owner != nil {
		group.Use(withOwner(*owner))
	}
	group.GET("", h.ListOrSearch)
	group.POST("", h.Create)
	group.POST("/condense", h.Condense)
	group.GET("/preferences", h.GetPreferences)
	group.PUT("/preferences", h.SetPreferences)
	group.GET("/:id", h.Get)
	group.DELETE("/:id", h.Delete)
	return r
}

func TestMemoryRoutesRequireAuth(t *testing.T) {
	r := newMemoryRouter(NewMemoryHandler(&fakeMemoryService{}), nil)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/memories"},
		{http.MethodPost, "/api/memories"},
		{http.MethodPost, "/api/memories/condense"},
		{http.MethodGet, "/api/memories/preferences"},
		{http.MethodPut, "/api/memories/preferences"},
		{http.MethodGet, "/api/memories/" + uuid.NewString()},
		{http.MethodDelete, "/api/memories/" + uuid.NewString()},
	}
	for _, tc := range cases {
		w := doJSON(t, r, tc.method, tc.path, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: 状态码 = %d, 期望 401", tc.method, tc.path, w.Code)
		}
	}
}

func TestListMemories(t *testing.T) {
	owner := uuid.New()

	t.Run("默认分页", func(t *testing.T) {
		var gotLimit, gotOffset int
		svc := &fakeMemoryService{
			listFn: func(o uuid.UUID, limit, offset int) ([]model.Memory, error) {
				gotLimit, gotOffset = limit, offset
				return []model.Memory{
					{ID: uuid.New(), Owner: o, Title: "口味偏好", MemoryText: "用户喜欢黑咖啡"},
					{ID: uuid.New(), Owner: o, Title: "称呼", MemoryText: "用户希望被称为老师"},
				}, nil
			},
		}
		r := newMemoryRouter(NewMemoryHandler(svc), &owner)

		w := doJSON(t, r, http.MethodGet, "/api/memories", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
		}
		if gotLimit != memoryListDefaultLimit || gotOffset != 0 {
			t.Errorf("limit = %d, offset = %d, 期望 %d/0", gotLimit, gotOffset, memoryListDefaultLimit)
		}
		var got []model.Memory
		mustUnmarshal(t, w.Body.Bytes(), &got)
		if len(got) != 2 || got[0].MemoryText != "用户喜欢黑咖啡" {
			t.Errorf("列表内容异常: %+v", got)
		}
	})

	t.Run("自定义分页", func(t *testing.T) {
		var gotLimit, gotOffset int
		svc := &fakeMemoryService{
			listFn: func(o uuid.UUID, limit, offset int) ([]model.Memory, error) {
				gotLimit, gotOffset = limit, offset
				return nil, nil
			},
		}
		r := newMemoryRouter(NewMemoryHandler(svc), &owner)

		w := doJSON(t, r, http.MethodGet, "/api/memories?limit=10&offset=20", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d", w.Code)
		}
		if gotLimit != 10 || gotOffset != 20 {
			t.Errorf("limit = %d, offset = %d, 期望 10/20", gotLimit, gotOffset)
		}
	})

	t.Run("非法分页参数", func(t *testing.T) {
		r := newMemoryRouter(NewMemoryHandler(&fakeMemoryService{}), &owner)

		for _, q := range []string{"limit=0", "limit=201", "limit=abc", "offset=-1", "offset=x"} {
			w := doJSON(t, r, http.MethodGet, "/api/memories?"+q, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: 状态码 = %d, 期望 400", q, w.Code)
			}
		}
	})
}

func TestSearchMemoriesBranch(t *testing.T) {
	owner := uuid.New()
	var gotQuery string
	var gotTopK int
	listCalled := false
	svc := &fakeMemoryService{
		searchFn: func(ctx context.Context, o uuid.UUID, query string, topK int) ([]service.MemoryMatchDTO, error) {
			gotQuery, gotTopK = query, topK
			return []service.MemoryMatchDTO{
				{
					Memory:     model.Memory{ID: uuid.New(), Owner: o, Title: "口味偏好", MemoryText: "用户喜欢黑咖啡"},
					Similarity: 0.87,
				},
			}, nil
		},
		listFn: func(o uuid.UUID, limit, offset int) ([]model.Memory, error) {
			listCalled = true
			return nil, nil
		},
	}
	r := newMemoryRouter(NewMemoryHandler(svc), &owner)

	w := doJSON(t, r, http.MethodGet, "/api/memories?q=咖啡&limit=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if gotQuery != "咖啡" || gotTopK != 3 {
		t.Errorf("query = %s, topK = %d, 期望 咖啡/3", gotQuery, gotTopK)
	}
	if listCalled {
		t.Error("带 q 参数时不应走列表分支")
	}

	var got []service.MemoryMatchDTO
	mustUnmarshal(t, w.Body.Bytes(), &got)
	if len(got) != 1 || got[0].Similarity != 0.87 {
		t.Errorf("检索结果异常: %+v", got)
	}
}

func TestCreateMemory(t *testing.T) {
	owner := uuid.New()
	var gotTitle, gotText string
	var gotMetadata map[string]interface{}
	svc := &fakeMemoryService{
		createFn: func(ctx context.Context, o uuid.UUID, title, memoryText string, metadata map[string]interface{}) (*model.Memory, error) {
			gotTitle, gotText, gotMetadata = title, memoryText, metadata
			return &model.Memory{ID: uuid.New(), Owner: o, Title: title, MemoryText: memoryText}, nil
		},
	}
	r := newMemoryRouter(NewMemoryHandler(svc), &owner)

	payload := gin.H{
		"title":       "口味偏好",
		"memory_text": "用户喜欢黑咖啡",
		"metadata":    gin.H{"source": "manual"},
	}
	w := doJSON(t, r, http.MethodPost, "/api/memories", payload)

	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if gotTitle != "口味偏好" || gotText != "用户喜欢黑咖啡" {
		t.Errorf("title = %s, text = %s", gotTitle, gotText)
	}
	if gotMetadata["source"] != "manual" {
		t.Errorf("metadata = %v", gotMetadata)
	}
	if body := decodeBody(t, w); body["memory_text"] != "用户喜欢黑咖啡" {
		t.Errorf("应答内容异常: %s", w.Body.String())
	}
}

func TestCondenseMemories(t *testing.T) {
	owner := uuid.New()
	var gotConversation string
	svc := &fakeMemoryService{
		condenseFn: func(ctx context.Context, o uuid.UUID, conversation string) ([]model.Memory, error) {
			gotConversation = conversation
			return []model.Memory{
				{ID: uuid.New(), Owner: o, Title: "称呼", MemoryText: "用户希望被称为老师"},
				{ID: uuid.New(), Owner: o, Title: "口味偏好", MemoryText: "用户喜欢黑咖啡"},
			}, nil
		},
	}
	r := newMemoryRouter(NewMemoryHandler(svc), &owner)

	w := doJSON(t, r, http.MethodPost, "/api/memories/condense", gin.H{"conversation": "user: 请叫我老师\nassistant: 好的"})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if gotConversation == "" {
		t.Error("conversation 未传到服务层")
	}

	body := decodeBody(t, w)
	created, _ := body["created"].([]interface{})
	if len(created) != 2 {
		t.Errorf("created = %v", body["created"])
	}
}

func TestMemoryPreferencesRoundTrip(t *testing.T) {
	owner := uuid.New()
	svc := &fakeMemoryService{}
	r := newMemoryRouter(NewMemoryHandler(svc), &owner)

	w := doJSON(t, r, http.MethodGet, "/api/memories/preferences", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	if body := decodeBody(t, w); body["autosave_memories"] != false {
		t.Errorf("默认 autosave_memories = %v, 期望 false", body["autosave_memories"])
	}

	w = doJSON(t, r, http.MethodPut, "/api/memories/preferences", gin.H{"autosave_memories": true})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	if body := decodeBody(t, w); body["autosave_memories"] != true {
		t.Errorf("更新后 autosave_memories = %v, 期望 true", body["autosave_memories"])
	}

	w = doJSON(t, r, http.MethodGet, "/api/memories/preferences", nil)
	if body := decodeBody(t, w); body["autosave_memories"] != true {
		t.Errorf("再次读取 autosave_memories = %v, 期望 true", body["autosave_memories"])
	}
}

func TestDeleteMemory(t *testing.T) {
	owner := uuid.New()
	memoryID := uuid.New()
	var gotID, gotOwner uuid.UUID
	svc := &fakeMemoryService{
		deleteFn: func(id uuid.UUID, o uuid.UUID) error {
			gotID, gotOwner = id, o
			return nil
		},
	}
	r := newMemoryRouter(NewMemoryHandler(svc), &owner)

	w := doJSON(t, r, http.MethodDelete, "/api/memories/"+memoryID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["ok"] != true {
		t.Errorf("应答 = %s", w.Body.String())
	}
	if gotID != memoryID || gotOwner != owner {
		t.Errorf("id = %s, owner = %s", gotID, gotOwner)
	}
}

func TestGetMemoryErrors(t *testing.T) {
	owner := uuid.New()

	t.Run("记忆不存在", func(t *testing.T) {
		svc := &fakeMemoryService{
			getFn: func(id uuid.UUID, o uuid.UUID) (*model.Memory, error) {
				return nil, repository.ErrMemoryNotFound
			},
		}
		r := newMemoryRouter(NewMemoryHandler(svc), &owner)

		w := doJSON(t, r, http.MethodGet, "/api/memories/"+uuid.NewString(), nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("状态码 = %d, 期望 404", w.Code)
		}
		if body := decodeBody(t, w); body["error"] != "记忆不存在" {
			t.Errorf("error = %v", body["error"])
		}
	})

	t.Run("非法 id", func(t *testing.T) {
		r := newMemoryRouter(NewMemoryHandler(&fakeMemoryService{}), &owner)

		w := doJSON(t, r, http.MethodGet, "/api/memories/not-a-uuid", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("状态码 = %d, 期望 400", w.Code)
		}
		if body := decodeBody(t, w); body["error"] != "无效的 id 参数" {
			t.Errorf("error = %v", body["error"])
		}
	})
}
