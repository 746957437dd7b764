package chain

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

func TestDispatcher_ErrorKinds(t *testing.T) {
	reg := newRegistry(
		weatherTool(),
		tools.NewFuncTool(tools.ToolDefinition{Name: "broken"}, func(context.Context, string) (string, error) {
			return "", errors.New("disk on fire")
		}),
		tools.NewFuncTool(tools.ToolDefinition{Name: "panicky"}, func(context.Context, string) (string, error) {
			panic("boom")
		}),
		sleepTool("sleepy", time.Second),
		tools.NewFuncTool(tools.ToolDefinition{
			Name: "picky",
			Parameters: tools.JSONSchema{
				"type": "object",
				"properties": map[string]any{
					"opt": map[string]any{"type": "object", "enum": []any{map[string]any{"a": 1}}},
				},
			},
		}, func(context.Context, string) (string, error) { return "ok", nil }),
	)
	d := NewDispatcher(reg, DispatcherConfig{
		DefaultTimeout: time.Second,
		ToolTimeouts:   map[string]time.Duration{"sleepy": 20 * time.Millisecond},
	})

	tests := []struct {
		name     string
		call     llm.ToolCall
		kind     tools.ErrorKind
		contains string
	}{
		{"not found", call("1", "missing", `{}`), tools.KindNotFound, "error: not_found"},
		{"bad json", call("2", "get_weather", `{city:`), tools.KindInvalidArguments, "error: invalid_arguments"},
		{"missing field", call("3", "get_weather", `{}`), tools.KindInvalidArguments, `"city"`},
		{"wrong type", call("4", "get_weather", `{"city": 5}`), tools.KindInvalidArguments, `want "string"`},
		{"object enum mismatch", call("8", "picky", `{"opt":{"a":2}}`), tools.KindInvalidArguments, "enum:"},
		{"tool error", call("5", "broken", `{}`), tools.KindExecutionFailed, "disk on fire"},
		{"panic", call("6", "panicky", `{}`), tools.KindExecutionFailed, "panicked: boom"},
		{"timeout", call("7", "sleepy", `{}`), tools.KindExecutionFailed, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := d.DispatchResults(context.Background(), []llm.ToolCall{tt.call})
			require.NoError(t, err)
			require.Len(t, results, 1)

			res := results[0]
			require.False(t, res.Success())
			assert.Equal(t, tt.kind, res.Err.Kind)
			assert.Equal(t, llm.RoleTool, res.Message.Role)
			assert.Equal(t, tt.call.ID, res.Message.ToolCallID)
			assert.Equal(t, tt.call.Name, res.Message.Name)
			assert.True(t, strings.HasPrefix(res.Message.Content, "error: "))
			assert.Contains(t, res.Message.Content, tt.contains)
		})
	}
}

func TestDispatcher_Success(t *testing.T) {
	d := NewDispatcher(newRegistry(weatherTool()), DispatcherConfig{})

	msg := d.Dispatch(context.Background(), call("c1", "get_weather", "```json\n{\"city\":\"Paris\"}\n```"))
	assert.Equal(t, "sunny, 30C in Paris", msg.Content)
	assert.Equal(t, "c1", msg.ToolCallID)
	assert.Equal(t, "get_weather", msg.Name)
}

func TestDispatcher_CompositeEnumMatch(t *testing.T) {
	picky := tools.NewFuncTool(tools.ToolDefinition{
		Name: "picky",
		Parameters: tools.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"opt": map[string]any{"type": "object", "enum": []any{map[string]any{"a": 1}}},
			},
		},
	}, func(context.Context, string) (string, error) { return "ok", nil })
	d := NewDispatcher(newRegistry(picky), DispatcherConfig{})

	msgs, err := d.DispatchAll(context.Background(), []llm.ToolCall{
		call("c1", "picky", `{"opt":{"a":1}}`),
		call("c2", "picky", `{"opt":[1]}`),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "ok", msgs[0].Content)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "error: invalid_arguments"), msgs[1].Content)
}

func TestDispatcher_EmptyCalls(t *testing.T) {
	d := NewDispatcher(nil, DispatcherConfig{})
	msgs, err := d.DispatchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDispatcher_RunsConcurrently(t *testing.T) {
	reg := newRegistry(sleepTool("a", 80*time.Millisecond), sleepTool("b", 80*time.Millisecond), sleepTool("c", 80*time.Millisecond))
	d := NewDispatcher(reg, DispatcherConfig{})

	start := time.Now()
	msgs, err := d.DispatchAll(context.Background(), []llm.ToolCall{
		call("1", "a", ""), call("2", "b", ""), call("3", "c", ""),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, "a done", msgs[0].Content)
	assert.Equal(t, "c done", msgs[2].Content)
}

func TestDispatcher_MaxParallelTools(t *testing.T) {
	var active, peak int32
	counting := tools.NewFuncTool(tools.ToolDefinition{Name: "count"}, func(context.Context, string) (string, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return "ok", nil
	})
	d := NewDispatcher(newRegistry(counting), DispatcherConfig{MaxParallelTools: 2})

	calls := make([]llm.ToolCall, 6)
	for i := range calls {
		calls[i] = call(string(rune('a'+i)), "count", "{}")
	}
	msgs, err := d.DispatchAll(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	for i, m := range msgs {
		assert.Equal(t, calls[i].ID, m.ToolCallID)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDispatcher_CancelledContext(t *testing.T) {
	d := NewDispatcher(newRegistry(sleepTool("sleepy", time.Second)), DispatcherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := d.DispatchAll(ctx, []llm.ToolCall{call("1", "sleepy", "{}")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcherConfig_Validate(t *testing.T) {
	assert.NoError(t, DispatcherConfig{}.Validate())
	assert.Error(t, DispatcherConfig{DefaultTimeout: -1}.Validate())
	assert.Error(t, DispatcherConfig{MaxParallelTools: -1}.Validate())
	assert.Error(t, DispatcherConfig{ToolTimeouts: map[string]time.Duration{"x": -time.Second}}.Validate())
}
