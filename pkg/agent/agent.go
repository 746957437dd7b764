// Package agent предоставляет простой API для создания и запуска AI агентов.
//
// Пакет реализует фасад над chain.ReActCycle: один провайдер, один реестр
// инструментов и одна история диалога на агента.
//
// Basic usage:
//
//	ag, _ := agent.New(provider, registry, agent.WithSystemPrompt("be brief"))
//	answer, _ := ag.RunTask(ctx, "What's the weather in Beijing?")
//
// From config.yaml:
//
//	cfg, _ := config.Load("config.yaml")
//	ag, _ := agent.NewFromConfig(cfg, "")
//
// История накапливается между вызовами RunTask, Reset() её очищает.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/ilkoid/poncho-react/pkg/chain"
	"github.com/ilkoid/poncho-react/pkg/events"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/state"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// Agent — ReAct агент с памятью.
//
// Thread-safe: запуски сериализуются, History() можно читать параллельно.
type Agent struct {
	name     string
	provider llm.Provider
	cycle    *chain.ReActCycle
	registry *tools.Registry
	conv     *state.Conversation

	// runMu сериализует запуски над одной историей.
	runMu sync.Mutex

	// emitterMu protects emitter field for concurrent access
	emitterMu sync.RWMutex
	emitter   events.Emitter
}

// New создаёт агента поверх готового провайдера и реестра.
//
// registry может быть nil: тогда создаётся пустой реестр.
//
// Rule 7: некорректная конфигурация — ошибка, а не panic.
func New(provider llm.Provider, registry *tools.Registry, opts ...Option) (*Agent, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if registry == nil {
		registry = tools.NewRegistry()
	}

	cycle, err := chain.NewReActCycle(provider, registry, o.cycle)
	if err != nil {
		return nil, fmt.Errorf("failed to create react cycle: %w", err)
	}

	conv, err := state.NewConversation()
	if err != nil {
		return nil, err
	}

	name := o.name
	if name == "" {
		name = llm.ProviderName(provider)
	}
	cycle.SetName(name)
	if len(o.genOptions) > 0 {
		cycle.SetGenerateOptions(o.genOptions...)
	}
	for _, obs := range o.observers {
		cycle.AddObserver(obs)
	}
	if o.recorder != nil {
		cycle.AttachDebug(o.recorder)
	}

	a := &Agent{
		name:     name,
		provider: provider,
		cycle:    cycle,
		registry: registry,
		conv:     conv,
	}
	if o.emitter != nil {
		a.SetEmitter(o.emitter)
	}

	utils.Debug("Agent created", "agent", name, "tools", registry.Names(), "max_iterations", o.cycle.MaxIterations)
	return a, nil
}

// Name возвращает имя агента.
func (a *Agent) Name() string {
	return a.name
}

// Provider возвращает LLM провайдера агента.
func (a *Agent) Provider() llm.Provider {
	return a.provider
}

// RegisterTool регистрирует инструмент под его собственным именем.
func (a *Agent) RegisterTool(tool tools.Tool) error {
	return a.registry.Register(tool)
}

// RegisterToolAs регистрирует инструмент под другим именем.
func (a *Agent) RegisterToolAs(name string, tool tools.Tool) error {
	return a.registry.RegisterAs(name, tool)
}

// Registry возвращает реестр инструментов агента.
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// SetMaxIterations меняет лимит шагов для следующих запусков.
func (a *Agent) SetMaxIterations(n int) error {
	return a.cycle.SetMaxIterations(n)
}

// MaxIterations возвращает текущий лимит шагов.
func (a *Agent) MaxIterations() int {
	return a.cycle.MaxIterations()
}

// Run выполняет задачу и возвращает подробный результат.
//
// Rule 11: принимает context.Context для распространения отмены.
func (a *Agent) Run(ctx context.Context, task string) (chain.Output, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	return a.cycle.Run(ctx, a.conv, task)
}

// RunTask выполняет задачу и возвращает только текст финального ответа.
func (a *Agent) RunTask(ctx context.Context, task string) (string, error) {
	out, err := a.Run(ctx, task)
	if err != nil {
		return "", err
	}
	return out.Result, nil
}

// History возвращает копию накопленной истории.
func (a *Agent) History() []llm.Message {
	return a.conv.Messages()
}

// Reset очищает историю. Следующий запуск снова добавит system prompt.
func (a *Agent) Reset() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.conv.Reset()
	utils.Debug("Agent history reset", "agent", a.name)
}

// SetEmitter устанавливает emitter для отправки событий в UI.
//
// Thread-safe.
func (a *Agent) SetEmitter(emitter events.Emitter) {
	a.emitterMu.Lock()
	defer a.emitterMu.Unlock()

	a.emitter = emitter
	a.cycle.SetEmitter(emitter)
}

// Subscribe возвращает подписчика на события агента.
//
// Если emitter не установлен, создаётся ChanEmitter с буфером 100.
// Emitter, заданный через SetEmitter без Subscribe, не поддерживается.
func (a *Agent) Subscribe() (events.Subscriber, error) {
	a.emitterMu.Lock()
	if a.emitter == nil {
		ch := events.NewChanEmitter(100)
		a.emitter = ch
		a.cycle.SetEmitter(ch)
	}
	emitter := a.emitter
	a.emitterMu.Unlock()

	if ch, ok := emitter.(*events.ChanEmitter); ok {
		return ch.Subscribe(), nil
	}
	return nil, fmt.Errorf("emitter %T does not support subscriptions", emitter)
}
