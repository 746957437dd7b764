// Package factory создаёт LLM провайдеров по описанию модели из config.yaml.
package factory

import (
	"fmt"
	"strings"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/llm/anthropic"
	"github.com/ilkoid/poncho-react/pkg/llm/ollama"
	"github.com/ilkoid/poncho-react/pkg/llm/openai"
)

// NewLLMProvider создает провайдера на основе конфигурации модели.
//
// OpenAI-совместимые вендоры (zai, deepseek, openrouter) идут через
// адаптер openai с custom BaseURL.
func NewLLMProvider(modelDef config.ModelDef) (llm.Provider, error) {
	switch strings.ToLower(modelDef.Provider) {
	case "openai", "zai", "deepseek", "openrouter":
		if modelDef.ToolMode == "prompt" {
			return nil, fmt.Errorf("tool_mode=prompt is only supported by the ollama provider")
		}
		return openai.NewClient(modelDef), nil

	case "anthropic":
		return anthropic.NewClient(modelDef)

	case "ollama":
		return ollama.NewClient(modelDef)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", modelDef.Provider)
	}
}
