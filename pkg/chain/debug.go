package chain

import (
	"context"
	"time"

	"github.com/ilkoid/poncho-react/pkg/debug"
	"github.com/ilkoid/poncho-react/pkg/llm"
)

// RecorderFactory создаёт recorder на каждый запуск (nil = трейс не пишется).
type RecorderFactory func() *debug.Recorder

// DebugObserver записывает ход выполнения в debug.Recorder.
//
// Один экземпляр на один запуск.
type DebugObserver struct {
	BaseObserver
	recorder *debug.Recorder
	agent    string
}

// NewDebugObserver создаёт наблюдатель поверх recorder.
func NewDebugObserver(recorder *debug.Recorder, agent string) *DebugObserver {
	return &DebugObserver{recorder: recorder, agent: agent}
}

func (o *DebugObserver) OnStart(_ context.Context, task string) {
	o.recorder.Start(o.agent, task)
}

func (o *DebugObserver) OnThinking(_ context.Context, iteration int, req LLMRequestInfo) {
	o.recorder.StartIteration(iteration)
	o.recorder.RecordLLMRequest(debug.LLMRequest{
		Provider:      req.Provider,
		MessagesCount: req.MessagesCount,
		Tools:         req.Tools,
	})
}

func (o *DebugObserver) OnLLMResult(_ context.Context, _ int, res llm.GenerateResult, d time.Duration, err error) {
	resp := debug.LLMResponse{
		Content:          res.Content,
		Duration:         d.Milliseconds(),
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
	}
	for _, tc := range res.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, debug.ToolCallInfo{ID: tc.ID, Name: tc.Name, Args: tc.Args})
	}
	if err != nil {
		resp.Error = err.Error()
	}
	o.recorder.RecordLLMResponse(resp)
}

func (o *DebugObserver) OnToolResult(_ context.Context, _ int, res ToolResult) {
	exec := debug.ToolExecution{
		Name:     res.Call.Name,
		CallID:   res.Call.ID,
		Args:     res.Call.Args,
		Result:   res.Message.Content,
		Duration: res.Duration.Milliseconds(),
		Success:  res.Success(),
	}
	if res.Err != nil {
		exec.Error = res.Err.Error()
	}
	o.recorder.RecordToolExecution(exec)
}

// Finalize отдаёт трейс в sinks. Вызывается циклом после OnFinish.
func (o *DebugObserver) Finalize(out Output, err error) []string {
	paths, sinkErr := o.recorder.Finalize(context.Background(), out.Result, err, out.Duration)
	if sinkErr != nil && len(paths) == 0 {
		return nil
	}
	return paths
}
