package chain

import (
	"context"
	"sync"
	"time"

	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

type step func(ctx context.Context, msgs []llm.Message) (llm.GenerateResult, error)

// scriptedProvider отвечает по заранее заданному сценарию.
// После конца сценария повторяет последний шаг.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
	seen  [][]llm.Message
	defs  [][]tools.ToolDefinition
}

func newScripted(steps ...step) *scriptedProvider {
	return &scriptedProvider{steps: steps}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, msgs []llm.Message, defs []tools.ToolDefinition, _ ...llm.GenerateOption) (llm.GenerateResult, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.seen = append(p.seen, msgs)
	p.defs = append(p.defs, defs)
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	s := p.steps[idx]
	p.mu.Unlock()

	return s(ctx, msgs)
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func reply(content string, calls ...llm.ToolCall) step {
	return func(context.Context, []llm.Message) (llm.GenerateResult, error) {
		return llm.GenerateResult{
			Content:   content,
			ToolCalls: calls,
			Usage:     llm.TokenUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		}, nil
	}
}

func fail(err error) step {
	return func(context.Context, []llm.Message) (llm.GenerateResult, error) {
		return llm.GenerateResult{}, err
	}
}

func blockUntilDone() step {
	return func(ctx context.Context, _ []llm.Message) (llm.GenerateResult, error) {
		<-ctx.Done()
		return llm.GenerateResult{}, ctx.Err()
	}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Args: args}
}

func weatherTool() tools.Tool {
	type args struct {
		City string `json:"city"`
	}
	return tools.NewTypedTool(tools.ToolDefinition{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Parameters: tools.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []any{"city"},
		},
	}, func(_ context.Context, a args) (string, error) {
		return "sunny, 30C in " + a.City, nil
	})
}

// sleepTool спит delay и возвращает свой label.
func sleepTool(name string, delay time.Duration) tools.Tool {
	return tools.NewFuncTool(tools.ToolDefinition{Name: name}, func(ctx context.Context, _ string) (string, error) {
		select {
		case <-time.After(delay):
			return name + " done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

func newRegistry(ts ...tools.Tool) *tools.Registry {
	r := tools.NewRegistry()
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}
