// Реестр для хранения и поиска инструментов.
package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrEmptyName возвращается при регистрации инструмента без имени.
var ErrEmptyName = errors.New("tool name cannot be empty")

// Registry — потокобезопасное хранилище инструментов.
//
// Имена уникальны: повторная регистрация заменяет прежнюю привязку.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry создает новый пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register добавляет или заменяет инструмент под его собственным именем.
//
// Проверяется только непустое имя; схема валидируется при вызове.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	return r.RegisterAs(tool.Definition().Name, tool)
}

// RegisterAs регистрирует инструмент под явным именем (алиас).
//
// Модель увидит инструмент под этим именем.
func (r *Registry) RegisterAs(name string, tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool %q is nil", name)
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}

	if tool.Definition().Name != name {
		tool = &aliasedTool{Tool: tool, name: name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	return nil
}

// Unregister удаляет инструмент. Возвращает false если его не было.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	return ok
}

// Get ищет инструмент по имени.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, &ToolError{Kind: KindNotFound, Tool: name, Err: fmt.Errorf("tool '%s' not found", name)}
	}
	return tool, nil
}

// Has сообщает, зарегистрирован ли инструмент.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Len возвращает количество инструментов.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names возвращает отсортированный список имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions возвращает копии всех определений для отправки в LLM.
//
// Порядок стабилен (по имени), чтобы запросы к провайдеру были детерминированы.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition().Clone())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// aliasedTool подменяет имя в определении.
type aliasedTool struct {
	Tool
	name string
}

func (a *aliasedTool) Definition() ToolDefinition {
	def := a.Tool.Definition()
	def.Name = a.name
	return def
}
