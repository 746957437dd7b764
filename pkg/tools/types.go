// Интерфейс Tool и структуры определений.

package tools

import "context"

// JSONSchema представляет JSON Schema для параметров инструмента.
//
// Формат соответствует JSON Schema для Function Calling API.
type JSONSchema map[string]any

// ToolDefinition описывает инструмент для LLM (Function Calling API format).
//
// Неизменяем после создания: реестр и адаптеры получают копии через Clone.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  JSONSchema `json:"parameters"` // JSON Schema объекта аргументов
}

// Clone возвращает глубокую копию определения.
func (d ToolDefinition) Clone() ToolDefinition {
	d.Parameters = d.Parameters.Clone()
	return d
}

// Clone возвращает глубокую копию схемы.
func (s JSONSchema) Clone() JSONSchema {
	if s == nil {
		return nil
	}
	return JSONSchema(cloneMap(s))
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case JSONSchema:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// Tool — контракт, который должен реализовать любой инструмент.
//
// Rule 1: "Raw In, String Out".
type Tool interface {
	// Definition возвращает описание инструмента для LLM.
	Definition() ToolDefinition

	// Execute выполняет логику инструмента.
	// argsJSON — сырой JSON с аргументами, уже прошедший валидацию по схеме.
	// Возвращает текстовый результат или ошибку.
	Execute(ctx context.Context, argsJSON string) (string, error)
}
