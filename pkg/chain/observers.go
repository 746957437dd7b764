package chain

import (
	"context"
	"time"

	"github.com/ilkoid/poncho-react/pkg/events"
	"github.com/ilkoid/poncho-react/pkg/llm"
)

// Observer — наблюдатель за выполнением цикла.
//
// Изолирует cross-cutting concerns (события UI, debug трейсы) от оркестрации.
// OnToolCall и OnToolResult вызываются из горутин инструментов, поэтому
// реализации должны быть thread-safe.
//
// Контракт жизненного цикла:
//  1. OnStart — один раз в начале
//  2. OnThinking / OnLLMResult — на каждый вызов LLM
//  3. OnToolCall / OnToolResult — на каждый tool call
//  4. OnFinish — один раз в конце (успех или ошибка)
type Observer interface {
	OnStart(ctx context.Context, task string)
	OnStateChange(ctx context.Context, from, to State)
	OnThinking(ctx context.Context, iteration int, req LLMRequestInfo)
	OnLLMResult(ctx context.Context, iteration int, res llm.GenerateResult, duration time.Duration, err error)
	OnToolCall(ctx context.Context, iteration int, call llm.ToolCall)
	OnToolResult(ctx context.Context, iteration int, res ToolResult)
	OnFinish(out Output, err error)
}

// LLMRequestInfo — краткое описание запроса к провайдеру.
type LLMRequestInfo struct {
	Provider      string
	MessagesCount int
	Tools         []string
}

// BaseObserver — пустая реализация для встраивания.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, string) {}
func (BaseObserver) OnStateChange(context.Context, State, State) {}
func (BaseObserver) OnThinking(context.Context, int, LLMRequestInfo) {}
func (BaseObserver) OnLLMResult(context.Context, int, llm.GenerateResult, time.Duration, error) {}
func (BaseObserver) OnToolCall(context.Context, int, llm.ToolCall) {}
func (BaseObserver) OnToolResult(context.Context, int, ToolResult) {}
func (BaseObserver) OnFinish(Output, error) {}

// observerSet рассылает уведомления всем наблюдателям по порядку.
type observerSet []Observer

func (s observerSet) OnStart(ctx context.Context, task string) {
	for _, o := range s {
		o.OnStart(ctx, task)
	}
}

func (s observerSet) OnStateChange(ctx context.Context, from, to State) {
	for _, o := range s {
		o.OnStateChange(ctx, from, to)
	}
}

func (s observerSet) OnThinking(ctx context.Context, iteration int, req LLMRequestInfo) {
	for _, o := range s {
		o.OnThinking(ctx, iteration, req)
	}
}

func (s observerSet) OnLLMResult(ctx context.Context, iteration int, res llm.GenerateResult, d time.Duration, err error) {
	for _, o := range s {
		o.OnLLMResult(ctx, iteration, res, d, err)
	}
}

func (s observerSet) OnToolCall(ctx context.Context, iteration int, call llm.ToolCall) {
	for _, o := range s {
		o.OnToolCall(ctx, iteration, call)
	}
}

func (s observerSet) OnToolResult(ctx context.Context, iteration int, res ToolResult) {
	for _, o := range s {
		o.OnToolResult(ctx, iteration, res)
	}
}

func (s observerSet) OnFinish(out Output, err error) {
	for _, o := range s {
		o.OnFinish(out, err)
	}
}

// iterationHooks привязывает наблюдателей к диспетчеру для одного шага Acting.
type iterationHooks struct {
	obs       Observer
	iteration int
}

func (h iterationHooks) beforeTool(ctx context.Context, call llm.ToolCall) {
	h.obs.OnToolCall(ctx, h.iteration, call)
}

func (h iterationHooks) afterTool(ctx context.Context, res ToolResult) {
	h.obs.OnToolResult(ctx, h.iteration, res)
}

// EmitterObserver — наблюдатель который отправляет события в events.Emitter.
//
// Port & Adapter: цикл не знает о конкретном UI.
type EmitterObserver struct {
	BaseObserver
	emitter events.Emitter
}

// NewEmitterObserver создаёт новый EmitterObserver.
func NewEmitterObserver(emitter events.Emitter) *EmitterObserver {
	return &EmitterObserver{emitter: emitter}
}

func (o *EmitterObserver) OnStart(ctx context.Context, task string) {
	o.emitter.Emit(ctx, events.New(events.EventThinking, events.ThinkingData{Query: task}))
}

func (o *EmitterObserver) OnThinking(ctx context.Context, iteration int, _ LLMRequestInfo) {
	if iteration == 1 {
		// первый Thinking уже объявлен в OnStart
		return
	}
	o.emitter.Emit(ctx, events.New(events.EventThinking, events.ThinkingData{Iteration: iteration}))
}

func (o *EmitterObserver) OnToolCall(ctx context.Context, _ int, call llm.ToolCall) {
	o.emitter.Emit(ctx, events.New(events.EventToolCall, events.ToolCallData{
		CallID:   call.ID,
		ToolName: call.Name,
		Args:     call.Args,
	}))
}

func (o *EmitterObserver) OnToolResult(ctx context.Context, _ int, res ToolResult) {
	o.emitter.Emit(ctx, events.New(events.EventToolResult, events.ToolResultData{
		CallID:   res.Call.ID,
		ToolName: res.Call.Name,
		Result:   res.Message.Content,
		Duration: res.Duration,
		IsError:  !res.Success(),
	}))
}

// OnFinish отправляет EventMessage + EventDone при успехе или EventError.
func (o *EmitterObserver) OnFinish(out Output, err error) {
	ctx := context.Background()

	if err != nil {
		o.emitter.Emit(ctx, events.New(events.EventError, events.ErrorData{Err: err}))
		return
	}
	o.emitter.Emit(ctx, events.New(events.EventMessage, events.MessageData{Content: out.Result}))
	o.emitter.Emit(ctx, events.New(events.EventDone, events.MessageData{Content: out.Result}))
}

var (
	_ Observer = BaseObserver{}
	_ Observer = observerSet(nil)
	_ Observer = (*EmitterObserver)(nil)
)
