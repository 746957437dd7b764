// Package models хранит LLM провайдеры, собранные из секции models config.yaml.
//
// Агент выбирает модель по имени через Resolve: пустое или неизвестное имя
// уводит на models.default_chat.
//
// Rule 3: Registry pattern (как tools.Registry)
// Rule 5: Thread-safe via sync.RWMutex
package models

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/factory"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// ErrModelNotFound — модели нет в реестре и выбрать модель по умолчанию нельзя.
var ErrModelNotFound = errors.New("model not found")

// Model — провайдер вместе с описанием из конфига.
type Model struct {
	Name     string
	Def      config.ModelDef
	Provider llm.Provider

	// Fallback — Resolve вернул модель по умолчанию вместо запрошенной.
	Fallback bool
}

// Registry — набор моделей, доступных агенту.
type Registry struct {
	mu          sync.RWMutex
	models      map[string]Model
	defaultName string
}

// NewRegistry создаёт пустой реестр. defaultName может быть пустым.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		models:      make(map[string]Model),
		defaultName: defaultName,
	}
}

// Register добавляет модель. Повторное имя — ошибка: две модели
// с одним именем в config.yaml означают ошибку конфигурации.
func (r *Registry) Register(name string, def config.ModelDef, provider llm.Provider) error {
	if provider == nil {
		return fmt.Errorf("model '%s': provider is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[name]; exists {
		return fmt.Errorf("model '%s' already registered", name)
	}
	r.models[name] = Model{Name: name, Def: def, Provider: provider}
	return nil
}

// Get возвращает модель строго по имени.
func (r *Registry) Get(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: '%s'", ErrModelNotFound, name)
	}
	return m, nil
}

// Resolve выбирает модель для запуска агента.
//
// Пустое имя означает модель по умолчанию. Неизвестное имя тоже даёт
// модель по умолчанию, с Fallback = true; вызывающий решает, предупреждать ли.
func (r *Registry) Resolve(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name != "" {
		if m, ok := r.models[name]; ok {
			return m, nil
		}
	}
	m, ok := r.models[r.defaultName]
	if !ok {
		return Model{}, fmt.Errorf("%w: neither '%s' nor default '%s'", ErrModelNotFound, name, r.defaultName)
	}
	m.Fallback = name != "" && name != r.defaultName
	return m, nil
}

// DefaultName — имя модели по умолчанию.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names возвращает имена моделей по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewRegistryFromConfig создаёт провайдеры для всех models.definitions.
//
// Модель, провайдер которой не создаётся (например, нет api_key в окружении),
// пропускается с предупреждением. Ошибка только для models.default_chat:
// без неё агенту не на чем работать.
func NewRegistryFromConfig(cfg *config.AppConfig) (*Registry, error) {
	if cfg == nil {
		return NewRegistry(""), nil
	}
	registry := NewRegistry(cfg.Models.DefaultChat)

	names := make([]string, 0, len(cfg.Models.Definitions))
	for name := range cfg.Models.Definitions {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		def := cfg.Models.Definitions[name]
		provider, err := factory.NewLLMProvider(def)
		if err != nil {
			if name == cfg.Models.DefaultChat {
				return nil, fmt.Errorf("failed to create provider for default model '%s': %w", name, err)
			}
			utils.Warn("Model skipped", "model", name, "provider", def.Provider, "error", err)
			continue
		}
		if err := registry.Register(name, def, provider); err != nil {
			return nil, err
		}
		utils.Debug("Model registered", "model", name, "provider", llm.ProviderName(provider), "model_name", def.ModelName)
	}
	return registry, nil
}
