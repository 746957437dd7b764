package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ilkoid/poncho-react/pkg/events"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/state"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// ReActCycle — реализация ReAct (Reasoning + Acting) паттерна.
//
// ReActCycle выполняет цикл:
// 1. LLM анализирует историю и решает что делать (Thinking)
// 2. Если запрошены инструменты — выполняет их (Acting)
// 3. Повторяет пока не получен финальный ответ или не достигнут лимит
//
// Tool calls имеют приоритет над текстом: ответ с вызовами никогда не финальный.
//
// Зависимости неизменяемы после создания; изменяемые параметры
// (лимит итераций, наблюдатели) защищены RWMutex, поэтому несколько
// Run() над разными историями могут выполняться параллельно.
type ReActCycle struct {
	provider   llm.Provider
	registry   *tools.Registry
	dispatcher *Dispatcher

	mu          sync.RWMutex
	config      ReActCycleConfig
	name        string
	genOptions  []llm.GenerateOption
	observers   []Observer
	emitter     events.Emitter
	newRecorder RecorderFactory
}

// NewReActCycle создаёт новый ReActCycle.
//
// Rule 7: некорректная конфигурация — ошибка, а не panic.
func NewReActCycle(provider llm.Provider, registry *tools.Registry, config ReActCycleConfig) (*ReActCycle, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid react config: %w", err)
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}

	return &ReActCycle{
		provider:   provider,
		registry:   registry,
		dispatcher: NewDispatcher(registry, config.Dispatcher),
		config:     config,
		name:       llm.ProviderName(provider),
	}, nil
}

// SetName задаёт имя агента для логов и трейсов.
func (c *ReActCycle) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// SetMaxIterations меняет лимит шагов Acting.
func (c *ReActCycle) SetMaxIterations(n int) error {
	if n <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.MaxIterations = n
	return nil
}

// MaxIterations возвращает текущий лимит.
func (c *ReActCycle) MaxIterations() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.MaxIterations
}

// SetGenerateOptions задаёт опции, передаваемые в каждый Generate.
func (c *ReActCycle) SetGenerateOptions(opts ...llm.GenerateOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genOptions = append([]llm.GenerateOption(nil), opts...)
}

// AddObserver добавляет наблюдателя за выполнением.
func (c *ReActCycle) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// SetEmitter устанавливает emitter для отправки событий в UI.
func (c *ReActCycle) SetEmitter(emitter events.Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitter = emitter
}

// AttachDebug включает запись JSON трейса каждого запуска.
func (c *ReActCycle) AttachDebug(factory RecorderFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newRecorder = factory
}

// Registry возвращает реестр инструментов цикла.
func (c *ReActCycle) Registry() *tools.Registry {
	return c.registry
}

// run — runtime состояние одного запуска.
type run struct {
	cycle    *ReActCycle
	conv     *state.Conversation
	config   ReActCycleConfig
	opts     []llm.GenerateOption
	obs      observerSet
	debugObs *DebugObserver

	state State
	start time.Time
	from  int
	out   Output
}

// Run выполняет задачу над историей conv.
//
// Новые сообщения дописываются в conv; существующие не меняются.
// Ошибки выполнения возвращаются как *AgentError.
func (c *ReActCycle) Run(ctx context.Context, conv *state.Conversation, task string) (Output, error) {
	if conv == nil {
		return Output{}, fmt.Errorf("conversation is required")
	}

	c.mu.RLock()
	r := &run{
		cycle:  c,
		conv:   conv,
		config: c.config,
		opts:   append([]llm.GenerateOption(nil), c.genOptions...),
		obs:    append(observerSet(nil), c.observers...),
		state:  StateStart,
		start:  time.Now(),
	}
	name := c.name
	if c.emitter != nil {
		r.obs = append(r.obs, NewEmitterObserver(c.emitter))
	}
	if c.newRecorder != nil {
		if rec := c.newRecorder(); rec != nil {
			r.debugObs = NewDebugObserver(rec, name)
			r.obs = append(r.obs, r.debugObs)
		}
	}
	c.mu.RUnlock()

	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	utils.Info("ReAct run started", "agent", name, "max_iterations", r.config.MaxIterations)
	out, err := r.execute(ctx, task)
	if err != nil {
		utils.Warn("ReAct run failed", "agent", name, "thinking", out.Thinking, "acting", out.Acting, "error", err)
	} else {
		utils.Info("ReAct run finished", "agent", name, "thinking", out.Thinking, "acting", out.Acting, "duration", out.Duration)
	}
	return out, err
}

func (r *run) execute(ctx context.Context, task string) (Output, error) {
	r.from = r.conv.Len()
	r.obs.OnStart(ctx, task)

	// Start: system prompt (один раз на пустую историю) + задача
	var seed []llm.Message
	if r.config.SystemPrompt != "" && !r.conv.HasSystem() {
		seed = append(seed, llm.SystemMessage(r.config.SystemPrompt))
	}
	seed = append(seed, llm.UserMessage(task))
	if err := r.conv.AppendAll(seed...); err != nil {
		return r.fail(KindProvider, fmt.Errorf("failed to seed conversation: %w", err))
	}
	r.transition(ctx, StateThinking)

	var pending []llm.ToolCall
	for {
		switch r.state {
		case StateThinking:
			calls, done, err := r.think(ctx)
			if err != nil {
				return r.failWith(err)
			}
			if done {
				r.transition(ctx, StateDone)
				continue
			}
			pending = calls
			r.transition(ctx, StateActing)

		case StateActing:
			if err := r.act(ctx, pending); err != nil {
				return r.failWith(err)
			}
			pending = nil
			if r.out.Acting >= r.config.MaxIterations {
				return r.fail(KindMaxIterations, nil)
			}
			r.transition(ctx, StateThinking)

		case StateDone:
			return r.finish(nil)

		default:
			return r.fail(KindProvider, fmt.Errorf("unexpected state %s", r.state))
		}
	}
}

// think — один вызов LLM. Возвращает tool calls либо done=true.
func (r *run) think(ctx context.Context) ([]llm.ToolCall, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, r.agentError(KindCancelled, err)
	}

	r.out.Thinking++
	iteration := r.out.Thinking

	messages := r.conv.Messages()
	defs := r.cycle.registry.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	r.obs.OnThinking(ctx, iteration, LLMRequestInfo{
		Provider:      llm.ProviderName(r.cycle.provider),
		MessagesCount: len(messages),
		Tools:         names,
	})

	llmCtx := ctx
	if r.config.LLMTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, r.config.LLMTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := r.cycle.provider.Generate(llmCtx, messages, defs, r.opts...)
	duration := time.Since(start)

	if err != nil {
		err = r.classifyGenerateError(ctx, llmCtx, err)
		r.obs.OnLLMResult(ctx, iteration, res, duration, err)
		return nil, false, err
	}
	r.obs.OnLLMResult(ctx, iteration, res, duration, nil)
	r.out.Usage = r.out.Usage.Add(res.Usage)

	utils.Debug("LLM responded",
		"iteration", iteration,
		"tool_calls", len(res.ToolCalls),
		"content_len", len(res.Content),
		"duration", duration,
	)

	// Tool calls имеют приоритет над текстом.
	if res.HasToolCalls() {
		res.ToolCalls = nameToolCalls(res.ToolCalls)
		if err := r.conv.Append(res.Message()); err != nil {
			return nil, false, r.agentError(KindProvider, llm.NewProviderError(
				llm.ProviderName(r.cycle.provider), llm.ErrKindMalformed, err))
		}
		return res.ToolCalls, false, nil
	}

	if strings.TrimSpace(res.Content) == "" && r.config.EmptyAnswer == EmptyAnswerReject {
		return nil, false, r.agentError(KindProvider, llm.NewProviderError(
			llm.ProviderName(r.cycle.provider), llm.ErrKindMalformed, llm.ErrEmptyResponse))
	}

	if err := r.conv.Append(res.Message()); err != nil {
		return nil, false, r.agentError(KindProvider, llm.NewProviderError(
			llm.ProviderName(r.cycle.provider), llm.ErrKindMalformed, err))
	}
	r.out.Result = res.Content
	return nil, true, nil
}

// classifyGenerateError различает отмену вызывающим, таймаут LLM и ошибки провайдера.
func (r *run) classifyGenerateError(ctx, llmCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return r.agentError(KindCancelled, ctx.Err())
	}
	providerName := llm.ProviderName(r.cycle.provider)
	if errors.Is(llmCtx.Err(), context.DeadlineExceeded) {
		pe := llm.NewProviderError(providerName, llm.ErrKindTimeout,
			fmt.Errorf("llm call exceeded %v: %w", r.config.LLMTimeout, err))
		return r.agentError(KindProvider, pe)
	}
	return r.agentError(KindProvider, llm.WrapError(providerName, err))
}

// act выполняет все tool calls шага и дописывает результаты в порядке вызовов.
func (r *run) act(ctx context.Context, calls []llm.ToolCall) error {
	hooks := iterationHooks{obs: r.obs, iteration: r.out.Thinking}
	results, err := r.cycle.dispatcher.dispatchAll(ctx, calls, hooks)
	if err != nil {
		return r.agentError(KindCancelled, err)
	}

	msgs := make([]llm.Message, len(results))
	var timedOut *ToolResult
	for i, res := range results {
		msgs[i] = res.Message
		if res.TimedOut && timedOut == nil {
			timedOut = &results[i]
		}
	}
	if err := r.conv.AppendAll(msgs...); err != nil {
		return r.agentError(KindProvider, llm.NewProviderError(
			llm.ProviderName(r.cycle.provider), llm.ErrKindMalformed, err))
	}
	r.out.Acting++

	// результаты уже в истории, чтобы трейс был полным
	if timedOut != nil && r.config.Dispatcher.FailOnToolTimeout {
		return r.agentError(KindProvider, llm.NewProviderError(
			"tool:"+timedOut.Call.Name, llm.ErrKindTimeout, timedOut.Err))
	}
	return nil
}

func (r *run) transition(ctx context.Context, to State) {
	from := r.state
	r.state = to
	r.obs.OnStateChange(ctx, from, to)
}

func (r *run) agentError(kind AgentErrorKind, err error) *AgentError {
	return &AgentError{Kind: kind, Iteration: r.out.Thinking, Err: err}
}

func (r *run) fail(kind AgentErrorKind, err error) (Output, error) {
	return r.failWith(r.agentError(kind, err))
}

func (r *run) failWith(err error) (Output, error) {
	r.transition(context.Background(), StateFailed)
	r.out.Result = ""
	return r.finish(err)
}

func (r *run) finish(err error) (Output, error) {
	r.out.Duration = time.Since(r.start)
	r.out.Messages = r.conv.Since(r.from)
	r.obs.OnFinish(r.out, err)
	if r.debugObs != nil {
		r.out.TracePaths = r.debugObs.Finalize(r.out, err)
	}
	return r.out, err
}

// UnnamedTool подставляется вместо пустого имени tool call.
// Такой вызов не найдётся в реестре и вернётся модели как not_found.
const UnnamedTool = "<unnamed>"

func nameToolCalls(calls []llm.ToolCall) []llm.ToolCall {
	out := calls
	copied := false
	for i, c := range calls {
		if strings.TrimSpace(c.Name) != "" {
			continue
		}
		if !copied {
			out = append([]llm.ToolCall(nil), calls...)
			copied = true
		}
		utils.Warn("Tool call without name", "call_id", c.ID)
		out[i].Name = UnnamedTool
	}
	return out
}
