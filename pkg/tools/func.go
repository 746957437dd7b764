package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ilkoid/poncho-react/pkg/utils"
)

// HandlerFunc — обработчик инструмента над сырыми аргументами.
type HandlerFunc func(ctx context.Context, argsJSON string) (string, error)

// FuncTool — инструмент из определения и функции.
type FuncTool struct {
	def     ToolDefinition
	handler HandlerFunc
}

// NewFuncTool создаёт Tool из обычной функции.
func NewFuncTool(def ToolDefinition, handler HandlerFunc) *FuncTool {
	if def.Parameters == nil {
		def.Parameters = JSONSchema{"type": "object", "properties": map[string]any{}}
	}
	return &FuncTool{def: def.Clone(), handler: handler}
}

func (t *FuncTool) Definition() ToolDefinition {
	return t.def.Clone()
}

func (t *FuncTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	if t.handler == nil {
		return "", fmt.Errorf("tool %s has no handler", t.def.Name)
	}
	return t.handler(ctx, argsJSON)
}

// TypedTool декодирует аргументы в T до вызова обработчика.
type TypedTool[T any] struct {
	def     ToolDefinition
	handler func(ctx context.Context, args T) (string, error)
}

// NewTypedTool создаёт типизированный инструмент.
func NewTypedTool[T any](def ToolDefinition, handler func(ctx context.Context, args T) (string, error)) *TypedTool[T] {
	return &TypedTool[T]{def: def.Clone(), handler: handler}
}

func (t *TypedTool[T]) Definition() ToolDefinition {
	return t.def.Clone()
}

func (t *TypedTool[T]) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args T
	raw := utils.CleanJsonBlock(argsJSON)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
	}
	return t.handler(ctx, args)
}
