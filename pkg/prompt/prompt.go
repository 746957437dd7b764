// Package prompt загружает system prompt агента из YAML файла с шаблоном.
//
// Формат файла:
//
//	config:
//	  temperature: 0.2
//	  max_tokens: 1500
//	messages:
//	  - role: system
//	    content: |
//	      You are {{.AgentName}}. Today is {{.Date}}.
//	      Tools: {{range .Tools}}{{.Name}} {{end}}
//
// Все system/developer сообщения склеиваются в один system prompt.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

// PromptFile описывает структуру YAML-файла с промптом
type PromptFile struct {
	Config   PromptConfig `yaml:"config"`
	Messages []Message    `yaml:"messages"`
}

// PromptConfig — параметры генерации, которые промпт задаёт модели.
type PromptConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Format      string  `yaml:"format"` // "json_object" или пусто
}

// Message - одно сообщение в чате
type Message struct {
	Role    string `yaml:"role"`    // system, developer
	Content string `yaml:"content"` // Шаблон с {{.Variables}}
}

// Data — переменные, доступные в шаблоне.
type Data struct {
	AgentName string
	Date      string
	Tools     []tools.ToolDefinition
}

// Load загружает и парсит YAML файл промпта
func Load(path string) (*PromptFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return Parse(data)
}

// Parse разбирает промпт из памяти.
func Parse(data []byte) (*PromptFile, error) {
	var pf PromptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	if len(pf.Messages) == 0 {
		return nil, fmt.Errorf("prompt file has no messages")
	}
	for i, msg := range pf.Messages {
		switch llm.Role(msg.Role) {
		case llm.RoleSystem, llm.RoleDeveloper:
		default:
			return nil, fmt.Errorf("message #%d: role %q is not allowed in a system prompt", i, msg.Role)
		}
	}
	return &pf, nil
}

// Render подставляет data во все сообщения и склеивает их через пустую строку.
func (pf *PromptFile) Render(data Data) (string, error) {
	parts := make([]string, 0, len(pf.Messages))
	for i, msg := range pf.Messages {
		tmpl, err := template.New("msg").Option("missingkey=error").Parse(msg.Content)
		if err != nil {
			return "", fmt.Errorf("template parse error in message #%d: %w", i, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("template execute error in message #%d: %w", i, err)
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// GenerateOptions переводит config промпта в опции провайдера.
// Нулевые поля не переопределяют дефолты модели.
func (c PromptConfig) GenerateOptions() []llm.GenerateOption {
	var opts []llm.GenerateOption
	if c.Model != "" {
		opts = append(opts, llm.WithModel(c.Model))
	}
	if c.Temperature > 0 {
		opts = append(opts, llm.WithTemperature(c.Temperature))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(c.MaxTokens))
	}
	if c.Format != "" {
		opts = append(opts, llm.WithFormat(c.Format))
	}
	return opts
}
