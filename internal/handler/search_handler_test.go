package handler

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"agent-platform-go/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newSearchRouter(h *SearchHandler, owner *uuid.UUID) *gin.Engine {
	r := gin.New()
	group := r.Group("/api/ingest")
	if owner != nil {
		group.Use(withOwner(*owner))
	}
	group.GET("/search", h.Search)
	return r
}

func TestSearchForwardsParameters(t *testing.T) {
	owner := uuid.New()
	docID := uuid.New()
	var gotQuery string
	var gotOwner, gotDoc *uuid.UUID
	var gotTopK int
	svc := &fakeSearchService{
		searchFn: func(ctx context.Context, query string, o *uuid.UUID, documentID *uuid.UUID, topK int) ([]rag.RetrievedChunk, error) {
			gotQuery, gotOwner, gotDoc, gotTopK = query, o, documentID, topK
			return []rag.RetrievedChunk{
				{ChunkID: uuid.New(), DocumentID: docID, ChunkIndex: 0, Text: "第一段", Similarity: 0.93, Rank: 1},
				{ChunkID: uuid.New(), DocumentID: docID, ChunkIndex: 4, Text: "第二段", Similarity: 0.71, Rank: 2},
			}, nil
		},
	}
	r := newSearchRouter(NewSearchHandler(svc), &owner)

	path := "/api/ingest/search?q=" + url.QueryEscape("退款政策") + "&top_k=2&document_id=" + docID.String()
	w := doJSON(t, r, http.MethodGet, path, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if gotQuery != "退款政策" || gotTopK != 2 {
		t.Errorf("query = %s, topK = %d", gotQuery, gotTopK)
	}
	if gotOwner == nil || *gotOwner != owner {
		t.Errorf("owner = %v, 期望 %s", gotOwner, owner)
	}
	if gotDoc == nil || *gotDoc != docID {
		t.Errorf("documentID = %v, 期望 %s", gotDoc, docID)
	}

	body := decodeBody(t, w)
	if body["query"] != "退款政策" {
		t.Errorf("query 字段 = %v", body["query"])
	}
	if body["total_found"] != float64(2) {
		t.Errorf("total_found = %v, 期望 2", body["total_found"])
	}
	results, _ := body["results"].([]interface{})
	if len(results) != 2 {
		t.Fatalf("results 长度 = %d", len(results))
	}
	first, _ := results[0].(map[string]interface{})
	if first["text"] != "第一段" || first["rank"] != float64(1) {
		t.Errorf("首条结果异常: %v", first)
	}
}

func TestSearchAcceptsLegacyQueryParam(t *testing.T) {
	var gotQuery string
	svc := &fakeSearchService{
		searchFn: func(ctx context.Context, query string, o *uuid.UUID, documentID *uuid.UUID, topK int) ([]rag.RetrievedChunk, error) {
			gotQuery = query
			if o != nil {
				t.Errorf("匿名检索 owner = %v, 期望 nil", o)
			}
			return nil, nil
		},
	}
	r := newSearchRouter(NewSearchHandler(svc), nil)

	w := doJSON(t, r, http.MethodGet, "/api/ingest/search?query="+url.QueryEscape("合同条款"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}
	if gotQuery != "合同条款" {
		t.Errorf("query = %s, 期望 合同条款", gotQuery)
	}
}

func TestSearchRejectsBadParameters(t *testing.T) {
	r := newSearchRouter(NewSearchHandler(&fakeSearchService{}), nil)

	cases := []struct {
		name      string
		path      string
		wantError string
	}{
		{"非法 top_k", "/api/ingest/search?q=x&top_k=abc", "无效的 top_k 参数"},
		{"非法 document_id", "/api/ingest/search?q=x&document_id=123", "无效的 document_id 参数"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodGet, tc.path, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("状态码 = %d, 期望 400", w.Code)
			}
			if body := decodeBody(t, w); body["error"] != tc.wantError {
				t.Errorf("error = %v, 期望 %s", body["error"], tc.wantError)
			}
		})
	}
}

func TestSearchMapsValidationError(t *testing.T) {
	svc := &fakeSearchService{
		searchFn: func(ctx context.Context, query string, o *uuid.UUID, documentID *uuid.UUID, topK int) ([]rag.RetrievedChunk, error) {
			return nil, rag.NewValidationError("查询内容不能为空")
		},
	}
	r := newSearchRouter(NewSearchHandler(svc), nil)

	w := doJSON(t, r, http.MethodGet, "/api/ingest/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, 期望 400", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "查询内容不能为空" {
		t.Errorf("error = %v", body["error"])
	}
}
