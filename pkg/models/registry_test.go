package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Generate(context.Context, []llm.Message, []tools.ToolDefinition, ...llm.GenerateOption) (llm.GenerateResult, error) {
	return llm.GenerateResult{Content: s.name}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry("a")
	require.NoError(t, r.Register("b", config.ModelDef{ModelName: "mb"}, stubProvider{"b"}))
	require.NoError(t, r.Register("a", config.ModelDef{ModelName: "ma"}, stubProvider{"a"}))

	assert.Error(t, r.Register("a", config.ModelDef{}, stubProvider{"dup"}))
	assert.Error(t, r.Register("c", config.ModelDef{}, nil))

	m, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", m.Name)
	assert.Equal(t, "ma", m.Def.ModelName)
	assert.Equal(t, "a", llm.ProviderName(m.Provider))

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrModelNotFound)

	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Equal(t, "a", r.DefaultName())
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry("main")
	require.NoError(t, r.Register("main", config.ModelDef{}, stubProvider{"main"}))
	require.NoError(t, r.Register("fast", config.ModelDef{}, stubProvider{"fast"}))

	tests := []struct {
		name         string
		requested    string
		want         string
		wantFallback bool
	}{
		{"requested exists", "fast", "fast", false},
		{"empty means default", "", "main", false},
		{"default by name", "main", "main", false},
		{"unknown falls back", "vision", "main", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Resolve(tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Name)
			assert.Equal(t, tt.wantFallback, m.Fallback)
		})
	}

	_, err := NewRegistry("other").Resolve("vision")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
models:
  default_chat: local
  definitions:
    local:
      provider: ollama
      model_name: llama3.2
      tool_mode: prompt
    gpt:
      provider: openai
      model_name: gpt-4o-mini
      api_key: test
`))
	require.NoError(t, err)

	r, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt", "local"}, r.Names())

	m, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "local", m.Name)
	assert.Equal(t, "llama3.2", m.Def.ModelName)
	assert.Equal(t, "ollama", llm.ProviderName(m.Provider))

	// модель без ключа пропускается
	cfg.Models.Definitions["claude"] = config.ModelDef{Provider: "anthropic", ModelName: "claude"}
	r, err = NewRegistryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt", "local"}, r.Names())

	// а сломанная модель по умолчанию — ошибка
	cfg.Models.Definitions["local"] = config.ModelDef{Provider: "telegraph", ModelName: "x"}
	_, err = NewRegistryFromConfig(cfg)
	assert.Error(t, err)

	r, err = NewRegistryFromConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, r.Names())
}
