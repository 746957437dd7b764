package chain

import (
	"fmt"
	"time"
)

// DefaultMaxIterations — стандартный лимит шагов с инструментами.
const DefaultMaxIterations = 10

// DefaultToolTimeout — защитный timeout выполнения одного инструмента.
const DefaultToolTimeout = 30 * time.Second

// EmptyAnswerPolicy — что делать с ответом без текста и без tool calls.
type EmptyAnswerPolicy int

const (
	// EmptyAnswerAccept — пустая строка считается финальным ответом.
	EmptyAnswerAccept EmptyAnswerPolicy = iota
	// EmptyAnswerReject — пустой ответ считается Malformed ошибкой провайдера.
	EmptyAnswerReject
)

// ParseEmptyAnswerPolicy переводит "accept" / "reject" из конфига.
func ParseEmptyAnswerPolicy(s string) (EmptyAnswerPolicy, error) {
	switch s {
	case "", "accept":
		return EmptyAnswerAccept, nil
	case "reject":
		return EmptyAnswerReject, nil
	default:
		return EmptyAnswerAccept, fmt.Errorf("unknown empty answer policy %q", s)
	}
}

// ReActCycleConfig — конфигурация ReAct цикла.
//
// Создаётся программно или из pkg/config через pkg/agent;
// сам пакет chain конфиг-файлы не читает.
type ReActCycleConfig struct {
	// SystemPrompt добавляется в начало пустой истории (пусто = без system).
	SystemPrompt string

	// MaxIterations — максимум шагов Acting за один запуск.
	MaxIterations int

	// LLMTimeout ограничивает один вызов Generate (0 = без ограничения).
	LLMTimeout time.Duration

	// RunTimeout ограничивает весь запуск (0 = только контекст вызывающего).
	RunTimeout time.Duration

	// Dispatcher — параметры выполнения инструментов.
	Dispatcher DispatcherConfig

	// EmptyAnswer — политика для пустого финального ответа.
	EmptyAnswer EmptyAnswerPolicy
}

// NewReActCycleConfig создаёт конфигурацию с дефолтными значениями.
func NewReActCycleConfig() ReActCycleConfig {
	return ReActCycleConfig{
		MaxIterations: DefaultMaxIterations,
		Dispatcher: DispatcherConfig{
			DefaultTimeout: DefaultToolTimeout,
		},
		EmptyAnswer: EmptyAnswerAccept,
	}
}

// Validate проверяет конфигурацию на валидность.
//
// Rule 7: Возвращает ошибку вместо panic.
func (c ReActCycleConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.LLMTimeout < 0 {
		return fmt.Errorf("llm_timeout must not be negative, got %v", c.LLMTimeout)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must not be negative, got %v", c.RunTimeout)
	}
	return c.Dispatcher.Validate()
}

// DispatcherConfig — параметры Dispatcher.
type DispatcherConfig struct {
	// DefaultTimeout — timeout одного инструмента (0 = без ограничения).
	DefaultTimeout time.Duration

	// ToolTimeouts переопределяет timeout для конкретных инструментов.
	ToolTimeouts map[string]time.Duration

	// MaxParallelTools ограничивает число одновременно выполняемых
	// инструментов одного шага (0 = все сразу).
	MaxParallelTools int

	// FailOnToolTimeout: таймаут инструмента завершает запуск ошибкой
	// KindProvider с llm.ErrTimeout. По умолчанию таймаут — обычная
	// ошибка инструмента, которую увидит модель.
	FailOnToolTimeout bool
}

// Validate проверяет параметры диспетчера.
func (c DispatcherConfig) Validate() error {
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("tool_timeout must not be negative, got %v", c.DefaultTimeout)
	}
	if c.MaxParallelTools < 0 {
		return fmt.Errorf("max_parallel_tools must not be negative, got %d", c.MaxParallelTools)
	}
	for name, d := range c.ToolTimeouts {
		if d < 0 {
			return fmt.Errorf("timeout for tool %s must not be negative", name)
		}
	}
	return nil
}

func (c DispatcherConfig) timeoutFor(name string) time.Duration {
	if d, ok := c.ToolTimeouts[name]; ok {
		return d
	}
	return c.DefaultTimeout
}
