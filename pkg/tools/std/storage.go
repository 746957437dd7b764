package std

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/s3storage"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// Имена инструментов хранилища по умолчанию.
const (
	ListObjectsToolName = "list_s3_files"
	ReadObjectToolName  = "read_s3_object"
)

// maxObjectText — сколько байт текста отдаём модели, остальное обрезается.
const maxObjectText = 16 << 10

// ListObjectsTool — аналог ls по бакету из секции storage.
type ListObjectsTool struct {
	client      s3storage.ClientInterface
	description string
}

// NewListObjectsTool создаёт инструмент поверх s3storage клиента.
func NewListObjectsTool(client s3storage.ClientInterface, toolCfg config.ToolConfig) *ListObjectsTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = "Lists files in object storage under a prefix, newest first."
	}
	return &ListObjectsTool{client: client, description: desc}
}

func (t *ListObjectsTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        ListObjectsToolName,
		Description: t.description,
		Parameters: tools.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"prefix": map[string]any{
					"type":        "string",
					"description": "Folder prefix such as 'reports/2024/', empty for the bucket root",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of entries, 50 by default",
				},
			},
			"additionalProperties": false,
		},
	}
}

func (t *ListObjectsTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args struct {
		Prefix string `json:"prefix"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Limit <= 0 {
		args.Limit = 50
	}

	objects, err := t.client.ListFiles(ctx, args.Prefix)
	if err != nil {
		return "", fmt.Errorf("s3 list error: %w", err)
	}

	// только ключ и читаемый размер: метаданные модели не нужны
	type entry struct {
		Key  string `json:"key"`
		Size string `json:"size"`
	}
	list := make([]entry, 0, min(len(objects), args.Limit))
	for _, obj := range objects {
		if len(list) == args.Limit {
			break
		}
		list = append(list, entry{Key: obj.Key, Size: humanize.IBytes(uint64(obj.Size))})
	}

	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadObjectTool — аналог cat для текстовых объектов.
type ReadObjectTool struct {
	client      s3storage.ClientInterface
	description string
}

// NewReadObjectTool создаёт инструмент чтения объектов.
func NewReadObjectTool(client s3storage.ClientInterface, toolCfg config.ToolConfig) *ReadObjectTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = "Reads a text object (JSON, TXT, MD, CSV) from object storage by its key."
	}
	return &ReadObjectTool{client: client, description: desc}
}

func (t *ReadObjectTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        ReadObjectToolName,
		Description: t.description,
		Parameters: tools.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{
					"type":        "string",
					"description": "Full object key as returned by " + ListObjectsToolName,
				},
			},
			"required":             []any{"key"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadObjectTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	var args struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Key == "" {
		return "", fmt.Errorf("key must not be empty")
	}

	if ext := strings.ToLower(path.Ext(args.Key)); isBinaryExt(ext) {
		return "", fmt.Errorf("file type %q is binary and cannot be read as text", ext)
	}

	content, err := t.client.DownloadFile(ctx, args.Key)
	if err != nil {
		return "", fmt.Errorf("s3 download error: %w", err)
	}

	if len(content) > maxObjectText {
		return utils.Truncate(string(content), maxObjectText) +
			fmt.Sprintf("\n...[truncated, %s total]", humanize.IBytes(uint64(len(content)))), nil
	}
	return string(content), nil
}

func isBinaryExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".zip", ".gz", ".pdf", ".mp4":
		return true
	}
	return false
}

// RegisterStorageTools регистрирует инструменты хранилища поверх client.
//
// Как и RegisterAll, учитывает enabled и alias из секции tools.
func RegisterStorageTools(registry *tools.Registry, cfg *config.AppConfig, client s3storage.ClientInterface) error {
	if cfg == nil {
		cfg = &config.AppConfig{}
	}

	builders := []toolBuilder{
		{ListObjectsToolName, func(tc config.ToolConfig) tools.Tool { return NewListObjectsTool(client, tc) }},
		{ReadObjectToolName, func(tc config.ToolConfig) tools.Tool { return NewReadObjectTool(client, tc) }},
	}
	return register(registry, cfg, builders)
}

var (
	_ tools.Tool = (*ListObjectsTool)(nil)
	_ tools.Tool = (*ReadObjectTool)(nil)
)
