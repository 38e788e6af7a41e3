package tools

import (
	"context"

	"github.com/google/uuid"
)

// Registry 持有全部已注册的工具，按注册顺序提供目录与分发。
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry 创建一个新的 Registry 实例并注册给定工具。
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Key()]; exists {
			continue
		}
		r.tools[t.Key()] = t
		r.order = append(r.order, t.Key())
	}
	return r
}

// Catalog 返回全部工具的目录项。
func (r *Registry) Catalog() []Descriptor {
	descriptors := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		descriptors = append(descriptors, r.tools[key].Descriptor())
	}
	return descriptors
}

// Has 判断某个工具是否已注册。
func (r *Registry) Has(key string) bool {
	_, ok := r.tools[key]
	return ok
}

// Execute 按工具标识分发执行，未注册的工具返回 ToolError。
func (r *Registry) Execute(ctx context.Context, key string, owner *uuid.UUID, params map[string]interface{}) (map[string]interface{}, error) {
	tool, ok := r.tools[key]
	if !ok {
		return nil, NewToolError("不支持的工具: %s", key)
	}
	return tool.Execute(ctx, owner, params)
}
