package chain

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// ToolResult — результат выполнения одного tool call.
type ToolResult struct {
	Call     llm.ToolCall
	Message  llm.Message
	Duration time.Duration

	// Err — ошибка инструмента (nil при успехе). Уже отражена в Message.Content.
	Err *tools.ToolError

	// TimedOut — инструмент не уложился в свой timeout.
	TimedOut bool
}

// Success сообщает, выполнился ли инструмент без ошибки.
func (r ToolResult) Success() bool {
	return r.Err == nil
}

// Dispatcher выполняет tool calls модели через Registry.
//
// Ошибки инструментов (не найден, неверные аргументы, ошибка/паника/таймаут)
// никогда не прерывают цикл: они становятся tool-сообщениями, которые модель
// прочитает на следующей итерации. Фатальна только отмена контекста
// (и таймаут инструмента, если включён FailOnToolTimeout, это решает цикл).
type Dispatcher struct {
	registry *tools.Registry
	config   DispatcherConfig
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher(registry *tools.Registry, config DispatcherConfig) *Dispatcher {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Dispatcher{registry: registry, config: config}
}

// Dispatch выполняет один вызов и возвращает tool-сообщение.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall) llm.Message {
	return d.execute(ctx, call).Message
}

// DispatchAll выполняет вызовы параллельно и возвращает сообщения в порядке вызовов.
//
// Ошибка возвращается только при отмене ctx; частичные результаты тогда отбрасываются.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []llm.ToolCall) ([]llm.Message, error) {
	results, err := d.dispatchAll(ctx, calls, nil)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, len(results))
	for i, r := range results {
		msgs[i] = r.Message
	}
	return msgs, nil
}

// DispatchResults как DispatchAll, но с подробностями по каждому вызову.
func (d *Dispatcher) DispatchResults(ctx context.Context, calls []llm.ToolCall) ([]ToolResult, error) {
	return d.dispatchAll(ctx, calls, nil)
}

// toolHooks вызываются из горутин инструментов, реализация должна быть thread-safe.
type toolHooks interface {
	beforeTool(ctx context.Context, call llm.ToolCall)
	afterTool(ctx context.Context, res ToolResult)
}

func (d *Dispatcher) dispatchAll(ctx context.Context, calls []llm.ToolCall, hooks toolHooks) ([]ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]ToolResult, len(calls))
	if len(calls) == 0 {
		return results, nil
	}

	limit := d.config.MaxParallelTools
	if limit <= 0 || limit > len(calls) {
		limit = len(calls)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, call := range calls {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if hooks != nil {
				hooks.beforeTool(ctx, call)
			}
			res := d.execute(ctx, call)
			// Каждая горутина пишет только в свой индекс: порядок = порядок вызовов.
			results[i] = res
			if hooks != nil {
				hooks.afterTool(ctx, res)
			}
		}(i, call)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// execute выполняет один tool call.
//
// Tool Timeout Protection: инструмент выполняется в отдельной горутине,
// зависший инструмент не блокирует цикл дольше своего timeout.
func (d *Dispatcher) execute(ctx context.Context, call llm.ToolCall) ToolResult {
	start := time.Now()

	tool, err := d.registry.Get(call.Name)
	if err != nil {
		return d.fail(call, tools.NewToolError(tools.KindNotFound, call.Name,
			fmt.Errorf("tool '%s' not found", call.Name)), start)
	}

	if err := validateArguments(tool.Definition(), call.Args); err != nil {
		return d.fail(call, tools.NewToolError(tools.KindInvalidArguments, call.Name, err), start)
	}

	args := utils.CleanJsonBlock(call.Args)
	if args == "" {
		args = "{}"
	}

	toolCtx := ctx
	timeout := d.config.timeoutFor(call.Name)
	if timeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type execResult struct {
		output string
		err    error
	}
	resultChan := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.Error("Tool panicked", "tool", call.Name, "panic", r, "stack", string(debug.Stack()))
				resultChan <- execResult{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		out, execErr := tool.Execute(toolCtx, args)
		resultChan <- execResult{out, execErr}
	}()

	select {
	case <-toolCtx.Done():
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			utils.Warn("Tool execution timeout", "tool", call.Name, "timeout", timeout)
			res := d.fail(call, tools.NewToolError(tools.KindExecutionFailed, call.Name,
				fmt.Errorf("exceeded timeout of %v", timeout)), start)
			res.TimedOut = true
			return res
		}
		return d.fail(call, tools.NewToolError(tools.KindExecutionFailed, call.Name,
			fmt.Errorf("cancelled: %w", toolCtx.Err())), start)

	case res := <-resultChan:
		if res.err != nil {
			return d.fail(call, tools.NewToolError(tools.KindExecutionFailed, call.Name, res.err), start)
		}
		utils.Debug("Tool executed", "tool", call.Name, "call_id", call.ID, "duration", time.Since(start))
		return ToolResult{
			Call:     call,
			Message:  llm.ToolMessage(call, res.output),
			Duration: time.Since(start),
		}
	}
}

// validateArguments не даёт панике в проверке схемы уронить процесс:
// валидация идёт вне горутины инструмента и её recover.
func validateArguments(def tools.ToolDefinition, args string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.Error("Argument validation panicked", "tool", def.Name, "panic", r)
			err = fmt.Errorf("argument validation failed: %v", r)
		}
	}()
	return tools.ValidateArguments(def.Parameters, args)
}

func (d *Dispatcher) fail(call llm.ToolCall, te *tools.ToolError, start time.Time) ToolResult {
	utils.Debug("Tool call failed", "tool", call.Name, "kind", te.Kind.String(),
		"args", tools.FormatArgs(call.Args, 200), "error", te.Err)
	return ToolResult{
		Call:     call,
		Message:  llm.ToolMessage(call, FormatToolError(te)),
		Duration: time.Since(start),
		Err:      te,
	}
}

// FormatToolError — текст tool-сообщения об ошибке: "error: <kind>: <detail>".
func FormatToolError(te *tools.ToolError) string {
	return "error: " + te.Error()
}
