package chain

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-react/pkg/debug"
	"github.com/ilkoid/poncho-react/pkg/events"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/state"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

func newCycle(t *testing.T, p llm.Provider, cfg ReActCycleConfig, reg ...*tools.Registry) *ReActCycle {
	t.Helper()
	var r *tools.Registry
	if len(reg) > 0 {
		r = reg[0]
	}
	c, err := NewReActCycle(p, r, cfg)
	require.NoError(t, err)
	return c
}

func newConv(t *testing.T, msgs ...llm.Message) *state.Conversation {
	t.Helper()
	c, err := state.NewConversation(msgs...)
	require.NoError(t, err)
	return c
}

func TestReAct_WeatherScenario(t *testing.T) {
	p := newScripted(
		reply("", call("call_1", "get_weather", `{"city":"Beijing"}`)),
		reply("It is sunny and 30C in Beijing"),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))
	conv := newConv(t)

	out, err := cycle.Run(context.Background(), conv, "What is the weather in Beijing?")
	require.NoError(t, err)

	assert.Equal(t, "It is sunny and 30C in Beijing", out.Result)
	assert.Equal(t, 2, out.Thinking)
	assert.Equal(t, 1, out.Acting)
	assert.Equal(t, 2, p.Calls())
	assert.Equal(t, llm.TokenUsage{PromptTokens: 20, CompletionTokens: 4, TotalTokens: 24}, out.Usage)

	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, llm.RoleTool, msgs[2].Role)
	assert.Equal(t, "get_weather", msgs[2].Name)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, "sunny, 30C in Beijing", msgs[2].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[3].Role)
	assert.Equal(t, msgs, out.Messages)

	// второй вызов LLM видел результат инструмента
	require.Len(t, p.seen, 2)
	assert.Len(t, p.seen[1], 3)
	require.Len(t, p.defs[0], 1)
	assert.Equal(t, "get_weather", p.defs[0][0].Name)
}

func TestReAct_UnknownToolIsNotFatal(t *testing.T) {
	p := newScripted(
		reply("", call("c1", "teleport", `{}`)),
		reply("I cannot teleport."),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))
	conv := newConv(t)

	out, err := cycle.Run(context.Background(), conv, "teleport me")
	require.NoError(t, err)
	assert.Equal(t, "I cannot teleport.", out.Result)

	toolMsg, err := conv.At(2)
	require.NoError(t, err)
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "teleport", toolMsg.Name)
	assert.Contains(t, toolMsg.Content, "error: not_found")
}

func TestReAct_UnnamedToolCallIsNotFatal(t *testing.T) {
	p := newScripted(
		reply("", call("c1", "  ", `{}`), call("c2", "get_weather", `{"city":"Oslo"}`)),
		reply("done"),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))
	conv := newConv(t)

	out, err := cycle.Run(context.Background(), conv, "x")
	require.NoError(t, err)
	assert.Equal(t, "done", out.Result)

	assistant, err := conv.At(1)
	require.NoError(t, err)
	require.Len(t, assistant.ToolCalls, 2)
	assert.Equal(t, UnnamedTool, assistant.ToolCalls[0].Name)
	assert.Equal(t, "get_weather", assistant.ToolCalls[1].Name)

	unnamed, err := conv.At(2)
	require.NoError(t, err)
	assert.Equal(t, UnnamedTool, unnamed.Name)
	assert.Equal(t, "c1", unnamed.ToolCallID)
	assert.Contains(t, unnamed.Content, "error: not_found")

	weather, err := conv.At(3)
	require.NoError(t, err)
	assert.Equal(t, "sunny, 30C in Oslo", weather.Content)
}

func TestReAct_InvalidArgumentsIsNotFatal(t *testing.T) {
	p := newScripted(
		reply("", call("c1", "get_weather", `{"town":"Paris"}`)),
		reply("done"),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))
	conv := newConv(t)

	_, err := cycle.Run(context.Background(), conv, "weather?")
	require.NoError(t, err)

	toolMsg, _ := conv.At(2)
	assert.Contains(t, toolMsg.Content, "error: invalid_arguments")
	assert.Contains(t, toolMsg.Content, `"city"`)
}

func TestReAct_ToolResultsKeepCallOrder(t *testing.T) {
	p := newScripted(
		reply("",
			call("a", "slow", `{}`),
			call("b", "medium", `{}`),
			call("c", "fast", `{}`),
		),
		reply("all done"),
	)
	reg := newRegistry(
		sleepTool("slow", 60*time.Millisecond),
		sleepTool("medium", 30*time.Millisecond),
		sleepTool("fast", 1*time.Millisecond),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), reg)
	conv := newConv(t)

	_, err := cycle.Run(context.Background(), conv, "go")
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 6)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[2].ToolCallID, msgs[3].ToolCallID, msgs[4].ToolCallID})
	assert.Equal(t, "slow done", msgs[2].Content)
	assert.Equal(t, "fast done", msgs[4].Content)
}

func TestReAct_MaxIterationsBound(t *testing.T) {
	for _, k := range []int{1, 3} {
		p := newScripted(reply("", call("x", "get_weather", `{"city":"Oslo"}`)))
		cfg := NewReActCycleConfig()
		cfg.MaxIterations = k
		cycle := newCycle(t, p, cfg, newRegistry(weatherTool()))

		out, err := cycle.Run(context.Background(), newConv(t), "loop forever")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMaxIterations))
		assert.Equal(t, k, p.Calls(), "provider must be called exactly K times")
		assert.Equal(t, k, out.Acting)
		assert.Empty(t, out.Result)

		var ae *AgentError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, KindMaxIterations, ae.Kind)
	}
}

func TestReAct_ToolCallsTakePrecedenceOverContent(t *testing.T) {
	p := newScripted(
		reply("Let me check the weather first.", call("c1", "get_weather", `{"city":"Rome"}`)),
		reply("Rome is sunny."),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))

	out, err := cycle.Run(context.Background(), newConv(t), "weather in Rome")
	require.NoError(t, err)
	assert.Equal(t, "Rome is sunny.", out.Result)
	assert.Equal(t, 1, out.Acting)
}

func TestReAct_HistoryIsAppendOnly(t *testing.T) {
	prior := []llm.Message{
		llm.SystemMessage("be brief"),
		llm.UserMessage("hello"),
		llm.AssistantMessage("hi"),
	}
	conv := newConv(t, prior...)
	p := newScripted(
		reply("", call("c1", "get_weather", `{"city":"Lima"}`)),
		reply("Lima is sunny."),
	)
	cfg := NewReActCycleConfig()
	cfg.SystemPrompt = "ignored because a system message exists"
	cycle := newCycle(t, p, cfg, newRegistry(weatherTool()))

	out, err := cycle.Run(context.Background(), conv, "weather in Lima")
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, len(prior)+4)
	assert.Equal(t, prior, msgs[:len(prior)])
	assert.Equal(t, msgs[len(prior):], out.Messages)
	assert.Equal(t, "weather in Lima", out.Messages[0].Content)
}

func TestReAct_SystemPromptSeededOnEmptyConversation(t *testing.T) {
	p := newScripted(reply("ok"))
	cfg := NewReActCycleConfig()
	cfg.SystemPrompt = "You are terse."
	cycle := newCycle(t, p, cfg)
	conv := newConv(t)

	_, err := cycle.Run(context.Background(), conv, "first")
	require.NoError(t, err)
	_, err = cycle.Run(context.Background(), conv, "second")
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	systems := 0
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
}

func TestReAct_CancelDuringThinking(t *testing.T) {
	p := newScripted(blockUntilDone())
	cycle := newCycle(t, p, NewReActCycleConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := cycle.Run(ctx, newConv(t), "hang")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.False(t, errors.Is(err, ErrProvider))
}

func TestReAct_CancelDuringActing(t *testing.T) {
	p := newScripted(reply("", call("c1", "sleepy", `{}`)))
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(sleepTool("sleepy", 5*time.Second)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := cycle.Run(ctx, newConv(t), "sleep")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestReAct_AlreadyCancelledContext(t *testing.T) {
	p := newScripted(reply("never"))
	cycle := newCycle(t, p, NewReActCycleConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cycle.Run(ctx, newConv(t), "x")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, p.Calls())
}

func TestReAct_LLMTimeoutIsProviderTimeout(t *testing.T) {
	p := newScripted(blockUntilDone())
	cfg := NewReActCycleConfig()
	cfg.LLMTimeout = 20 * time.Millisecond
	cycle := newCycle(t, p, cfg)

	_, err := cycle.Run(context.Background(), newConv(t), "slow model")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider))
	assert.True(t, errors.Is(err, llm.ErrTimeout))

	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrKindTimeout, pe.Kind)
}

func TestReAct_ToolTimeoutPolicy(t *testing.T) {
	tests := []struct {
		name  string
		fatal bool
	}{
		{"fed back to model", false},
		{"fails the run", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newScripted(
				reply("", call("c1", "slow", `{}`)),
				reply("gave up on slow tool"),
			)
			cfg := NewReActCycleConfig()
			cfg.Dispatcher.DefaultTimeout = 20 * time.Millisecond
			cfg.Dispatcher.FailOnToolTimeout = tt.fatal
			cycle := newCycle(t, p, cfg, newRegistry(sleepTool("slow", time.Second)))
			conv := newConv(t)

			out, err := cycle.Run(context.Background(), conv, "x")

			// tool-сообщение о таймауте в истории в обоих случаях
			last, lerr := conv.At(2)
			require.NoError(t, lerr)
			assert.Equal(t, llm.RoleTool, last.Role)
			assert.Contains(t, last.Content, "exceeded timeout")

			if !tt.fatal {
				require.NoError(t, err)
				assert.Equal(t, "gave up on slow tool", out.Result)
				return
			}
			assert.ErrorIs(t, err, ErrProvider)
			assert.ErrorIs(t, err, llm.ErrTimeout)
			assert.Equal(t, 1, p.Calls())
		})
	}
}

func TestReAct_ProviderErrorPreserved(t *testing.T) {
	p := newScripted(fail(&llm.ProviderError{Kind: llm.ErrKindRateLimited, Provider: "scripted", StatusCode: 429}))
	cycle := newCycle(t, p, NewReActCycleConfig())

	out, err := cycle.Run(context.Background(), newConv(t), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
	assert.Equal(t, 1, out.Thinking)

	var pe *llm.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 429, pe.StatusCode)
}

func TestReAct_EmptyAnswerPolicy(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		cycle := newCycle(t, newScripted(reply("")), NewReActCycleConfig())
		out, err := cycle.Run(context.Background(), newConv(t), "say nothing")
		require.NoError(t, err)
		assert.Equal(t, "", out.Result)
	})

	t.Run("reject", func(t *testing.T) {
		cfg := NewReActCycleConfig()
		cfg.EmptyAnswer = EmptyAnswerReject
		cycle := newCycle(t, newScripted(reply("  ")), cfg)
		conv := newConv(t)

		_, err := cycle.Run(context.Background(), conv, "say nothing")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProvider)
		assert.ErrorIs(t, err, llm.ErrMalformed)
		assert.ErrorIs(t, err, llm.ErrEmptyResponse)
		assert.Equal(t, 1, conv.Len(), "rejected answer is not appended")
	})
}

func TestReAct_SetMaxIterations(t *testing.T) {
	cycle := newCycle(t, newScripted(reply("x")), NewReActCycleConfig())
	assert.Error(t, cycle.SetMaxIterations(0))
	require.NoError(t, cycle.SetMaxIterations(2))
	assert.Equal(t, 2, cycle.MaxIterations())
}

func TestNewReActCycle_Validation(t *testing.T) {
	_, err := NewReActCycle(nil, nil, NewReActCycleConfig())
	assert.Error(t, err)

	cfg := NewReActCycleConfig()
	cfg.MaxIterations = 0
	_, err = NewReActCycle(newScripted(reply("x")), nil, cfg)
	assert.Error(t, err)
}

type stateRecorder struct {
	BaseObserver
	mu          sync.Mutex
	transitions []string
	finished    bool
}

func (s *stateRecorder) OnStateChange(_ context.Context, from, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, from.String()+"->"+to.String())
}

func (s *stateRecorder) OnFinish(Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

func TestReAct_StateTransitions(t *testing.T) {
	p := newScripted(
		reply("", call("c1", "get_weather", `{"city":"Kyiv"}`)),
		reply("done"),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))
	rec := &stateRecorder{}
	cycle.AddObserver(rec)

	_, err := cycle.Run(context.Background(), newConv(t), "x")
	require.NoError(t, err)

	assert.True(t, rec.finished)
	assert.Equal(t, []string{
		"Start->Thinking",
		"Thinking->Acting",
		"Acting->Thinking",
		"Thinking->Done",
	}, rec.transitions)
}

func TestReAct_EmitsEvents(t *testing.T) {
	p := newScripted(
		reply("", call("c1", "get_weather", `{"city":"Kyiv"}`)),
		reply("Kyiv is sunny."),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))
	emitter := events.NewChanEmitter(32)
	cycle.SetEmitter(emitter)

	_, err := cycle.Run(context.Background(), newConv(t), "weather")
	require.NoError(t, err)
	emitter.Close()

	var types []events.EventType
	for ev := range emitter.Subscribe().Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventThinking,
		events.EventToolCall,
		events.EventToolResult,
		events.EventThinking,
		events.EventMessage,
		events.EventDone,
	}, types)
}

func TestReAct_DebugTrace(t *testing.T) {
	dir := t.TempDir()
	sink, err := debug.NewFileSink(dir)
	require.NoError(t, err)

	p := newScripted(
		reply("", call("c1", "get_weather", `{"city":"Kyiv"}`)),
		reply("Kyiv is sunny."),
	)
	cycle := newCycle(t, p, NewReActCycleConfig(), newRegistry(weatherTool()))
	cycle.AttachDebug(func() *debug.Recorder {
		return debug.NewRecorder(debug.RecorderConfig{IncludeToolResults: true}, sink)
	})

	out, err := cycle.Run(context.Background(), newConv(t), "weather")
	require.NoError(t, err)
	require.Len(t, out.TracePaths, 1)

	data, err := os.ReadFile(out.TracePaths[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"get_weather"`)
	assert.Contains(t, string(data), "Kyiv is sunny.")
}
