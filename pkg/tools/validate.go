package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ilkoid/poncho-react/pkg/utils"
)

// resolvedSchemas кэширует разобранные схемы по их каноничному JSON:
// схема инструмента не меняется между вызовами.
var resolvedSchemas sync.Map // string -> *jsonschema.Resolved

// ValidateArguments проверяет сырой JSON аргументов по схеме инструмента.
//
// Пустая строка трактуется как "{}". Markdown-обёртка вокруг JSON снимается.
// Схема проверяется целиком (draft 2020-12): required, type, enum,
// additionalProperties, вложенные объекты и items.
func ValidateArguments(schema JSONSchema, argsJSON string) error {
	args, err := DecodeArguments(argsJSON)
	if err != nil {
		return err
	}
	if len(schema) == 0 {
		return nil
	}

	resolved, err := ResolveSchema(schema)
	if err != nil {
		return err
	}
	if err := resolved.Validate(args); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}

// ResolveSchema переводит JSONSchema в jsonschema.Resolved, готовую к Validate.
func ResolveSchema(schema JSONSchema) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid tool schema: %w", err)
	}
	key := string(raw)
	if cached, ok := resolvedSchemas.Load(key); ok {
		return cached.(*jsonschema.Resolved), nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid tool schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("invalid tool schema: %w", err)
	}
	resolvedSchemas.Store(key, resolved)
	return resolved, nil
}

// DecodeArguments разбирает аргументы в map.
func DecodeArguments(argsJSON string) (map[string]any, error) {
	raw := utils.CleanJsonBlock(argsJSON)
	if raw == "" {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if decoded == nil {
		return map[string]any{}, nil
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, errors.New("arguments must be a JSON object")
	}
	return obj, nil
}

// FormatArgs сокращает JSON аргументов для логов.
func FormatArgs(argsJSON string, max int) string {
	return utils.Truncate(strings.Join(strings.Fields(argsJSON), " "), max)
}
