package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type stubTool struct {
	key    string
	result map[string]interface{}
}

func (s *stubTool) Key() string { return s.key }

func (s *stubTool) Descriptor() Descriptor {
	return Descriptor{Key: s.key, Name: s.key}
}

func (s *stubTool) Execute(_ context.Context, _ *uuid.UUID, _ map[string]interface{}) (map[string]interface{}, error) {
	return s.result, nil
}

func TestRegistry_CatalogKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry(
		&stubTool{key: "weather"},
		&stubTool{key: "news"},
	)

	catalog := r.Catalog()
	if len(catalog) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(catalog))
	}
	if catalog[0].Key != "weather" || catalog[1].Key != "news" {
		t.Errorf("catalog order changed: %#v", catalog)
	}
}

func TestRegistry_ExecuteDispatchesByKey(t *testing.T) {
	want := map[string]interface{}{"ok": true}
	r := NewRegistry(&stubTool{key: "weather", result: want})

	got, err := r.Execute(context.Background(), "weather", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["ok"] != true {
		t.Errorf("unexpected result: %#v", got)
	}
}

func TestRegistry_UnknownToolRejected(t *testing.T) {
	r := NewRegistry(&stubTool{key: "weather"})

	_, err := r.Execute(context.Background(), "stocks", nil, nil)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError for unknown tool, got %v", err)
	}
	if r.Has("stocks") {
		t.Error("Has should be false for unregistered tool")
	}
	if !r.Has("weather") {
		t.Error("Has should be true for registered tool")
	}
}
