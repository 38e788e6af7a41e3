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

func newDocumentRouter(h *DocumentHandler, owner *uuid.UUID) *gin.Engine {
	r := gin.New()
	group := r.Group("/api/ingest")
	if owner != nil {
		group.Use(withOwner(*owner))
	}
	group.GET("/documents", h.List)
	group.DELETE("/documents/:id", h.Delete)
	group.GET("/documents/:id/download", h.Download)
	return r
}

func TestListDocuments(t *testing.T) {
	owner := uuid.New()
	svc := &fakeDocumentService{
		listFn: func(o *uuid.UUID) ([]service.DocumentDTO, error) {
			if o == nil || *o != owner {
				t.Errorf("owner = %v, 期望 %s", o, owner)
			}
			return []service.DocumentDTO{
				{Document: model.Document{ID: uuid.New(), FileName: "合同.pdf", Status: "processed"}, ChunkCount: 12},
				{Document: model.Document{ID: uuid.New(), FileName: "手册.pdf", Status: "processing"}, ChunkCount: 0},
			}, nil
		},
	}
	r := newDocumentRouter(NewDocumentHandler(svc), &owner)

	w := doJSON(t, r, http.MethodGet, "/api/ingest/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["total"] != float64(2) {
		t.Errorf("total = %v, 期望 2", body["total"])
	}
	docs, _ := body["documents"].([]interface{})
	if len(docs) != 2 {
		t.Fatalf("documents 长度 = %d", len(docs))
	}
	first, _ := docs[0].(map[string]interface{})
	if first["file_name"] != "合同.pdf" || first["chunk_count"] != float64(12) {
		t.Errorf("首条文档异常: %v", first)
	}
}

func TestDeleteDocument(t *testing.T) {
	docID := uuid.New()

	t.Run("删除成功", func(t *testing.T) {
		var gotID uuid.UUID
		svc := &fakeDocumentService{
			deleteFn: func(ctx context.Context, id uuid.UUID, o *uuid.UUID) error {
				gotID = id
				return nil
			},
		}
		r := newDocumentRouter(NewDocumentHandler(svc), nil)

		w := doJSON(t, r, http.MethodDelete, "/api/ingest/documents/"+docID.String(), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码 = %d", w.Code)
		}
		if gotID != docID {
			t.Errorf("id = %s, 期望 %s", gotID, docID)
		}
		if body := decodeBody(t, w); body["message"] != "文档已删除" {
			t.Errorf("message = %v", body["message"])
		}
	})

	t.Run("文档不存在", func(t *testing.T) {
		svc := &fakeDocumentService{
			deleteFn: func(ctx context.Context, id uuid.UUID, o *uuid.UUID) error {
				return repository.ErrDocumentNotFound
			},
		}
		r := newDocumentRouter(NewDocumentHandler(svc), nil)

		w := doJSON(t, r, http.MethodDelete, "/api/ingest/documents/"+uuid.NewString(), nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("状态码 = %d, 期望 404", w.Code)
		}
		if body := decodeBody(t, w); body["error"] != "文档不存在" {
			t.Errorf("error = %v", body["error"])
		}
	})

	t.Run("非法 id", func(t *testing.T) {
		r := newDocumentRouter(NewDocumentHandler(&fakeDocumentService{}), nil)

		w := doJSON(t, r, http.MethodDelete, "/api/ingest/documents/not-a-uuid", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("状态码 = %d, 期望 400", w.Code)
		}
	})
}

func TestDownloadDocument(t *testing.T) {
	docID := uuid.New()
	svc := &fakeDocumentService{
		downloadFn: func(id uuid.UUID, o *uuid.UUID) (*service.DownloadInfoDTO, error) {
			return &service.DownloadInfoDTO{
				FileName:    "合同.pdf",
				DownloadURL: "https://minio.local/documents/abc?signature=xyz",
				FileSize:    2048,
			}, nil
		},
	}
	r := newDocumentRouter(NewDocumentHandler(svc), nil)

	w := doJSON(t, r, http.MethodGet, "/api/ingest/documents/"+docID.String()+"/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["file_name"] != "合同.pdf" || body["file_size"] != float64(2048) {
		t.Errorf("下载信息异常: %s", w.Body.String())
	}
	if body["download_url"] != "https://minio.local/documents/abc?signature=xyz" {
		t.Errorf("download_url = %v", body["download_url"])
	}
}
