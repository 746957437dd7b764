package agent

import (
	"time"

	"github.com/ilkoid/poncho-react/pkg/chain"
	"github.com/ilkoid/poncho-react/pkg/events"
	"github.com/ilkoid/poncho-react/pkg/llm"
)

// Option настраивает Agent при создании.
type Option func(*options)

type options struct {
	name       string
	cycle      chain.ReActCycleConfig
	emitter    events.Emitter
	recorder   chain.RecorderFactory
	observers  []chain.Observer
	genOptions []llm.GenerateOption
}

func defaultOptions() options {
	return options{cycle: chain.NewReActCycleConfig()}
}

// WithName задаёт имя агента (по умолчанию имя провайдера).
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSystemPrompt задаёт system prompt, который добавляется в пустую историю.
func WithSystemPrompt(prompt string) Option {
	return func(o *options) { o.cycle.SystemPrompt = prompt }
}

// WithMaxIterations ограничивает число шагов Acting за один запуск.
func WithMaxIterations(n int) Option {
	return func(o *options) { o.cycle.MaxIterations = n }
}

// WithLLMTimeout ограничивает один вызов Generate.
func WithLLMTimeout(d time.Duration) Option {
	return func(o *options) { o.cycle.LLMTimeout = d }
}

// WithRunTimeout ограничивает весь запуск.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) { o.cycle.RunTimeout = d }
}

// WithToolTimeout задаёт timeout инструмента по умолчанию.
func WithToolTimeout(d time.Duration) Option {
	return func(o *options) { o.cycle.Dispatcher.DefaultTimeout = d }
}

// WithToolTimeouts переопределяет timeout отдельных инструментов.
func WithToolTimeouts(timeouts map[string]time.Duration) Option {
	return func(o *options) { o.cycle.Dispatcher.ToolTimeouts = timeouts }
}

// WithMaxParallelTools ограничивает параллелизм внутри одного шага.
func WithMaxParallelTools(n int) Option {
	return func(o *options) { o.cycle.Dispatcher.MaxParallelTools = n }
}

// WithToolTimeoutFatal делает таймаут инструмента фатальным для запуска.
func WithToolTimeoutFatal(fatal bool) Option {
	return func(o *options) { o.cycle.Dispatcher.FailOnToolTimeout = fatal }
}

// WithEmptyAnswer задаёт политику для пустого финального ответа.
func WithEmptyAnswer(p chain.EmptyAnswerPolicy) Option {
	return func(o *options) { o.cycle.EmptyAnswer = p }
}

// WithEmitter подключает UI к событиям агента.
func WithEmitter(e events.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithDebug включает JSON трейс каждого запуска.
func WithDebug(factory chain.RecorderFactory) Option {
	return func(o *options) { o.recorder = factory }
}

// WithObserver добавляет наблюдателя за циклом.
func WithObserver(obs chain.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithGenerateOptions передаёт опции в каждый вызов провайдера.
func WithGenerateOptions(opts ...llm.GenerateOption) Option {
	return func(o *options) { o.genOptions = append(o.genOptions, opts...) }
}
