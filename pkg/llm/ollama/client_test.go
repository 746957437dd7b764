package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

type capturedRequest struct {
	Messages []struct {
		Role       string `json:"role"`
		Content    any    `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	Tools      []map[string]any `json:"tools"`
	ToolChoice any              `json:"tool_choice"`
}

func newTestClient(t *testing.T, mode string, body string, got *capturedRequest) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(config.ModelDef{
		Provider:  "ollama",
		ModelName: "llama3.2",
		BaseURL:   srv.URL + "/v1/",
		ToolMode:  mode,
	})
	require.NoError(t, err)
	return c
}

func completion(content string, extra string) string {
	msg := map[string]any{"role": "assistant", "content": content}
	data, _ := json.Marshal(msg)
	if extra != "" {
		data = []byte(strings.TrimSuffix(string(data), "}") + "," + extra + "}")
	}
	return fmt.Sprintf(`{"id":"x","object":"chat.completion","created":1,"model":"llama3.2","choices":[{"index":0,"finish_reason":"stop","message":%s}]}`, data)
}

func weatherDef() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "get_weather",
		Description: "Current weather",
		Parameters: tools.JSONSchema{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
		},
	}
}

func TestNewClient_ToolMode(t *testing.T) {
	c, err := NewClient(config.ModelDef{})
	require.NoError(t, err)
	assert.Equal(t, ToolModeNative, c.Mode())
	assert.Equal(t, "ollama", c.Name())

	_, err = NewClient(config.ModelDef{ToolMode: "telepathy"})
	assert.Error(t, err)
}

func TestGenerate_NativeToolCalls(t *testing.T) {
	var got capturedRequest
	body := completion("", `"tool_calls":[{"id":"call_9","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Beijing\"}"}}]`)
	c := newTestClient(t, "native", body, &got)

	res, err := c.Generate(context.Background(), []llm.Message{llm.UserMessage("weather?")}, []tools.ToolDefinition{weatherDef()})
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, llm.ToolCall{ID: "call_9", Name: "get_weather", Args: `{"city":"Beijing"}`}, res.ToolCalls[0])
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "auto", got.ToolChoice)
	// usage не пришёл, значит оценка через tiktoken
	assert.Greater(t, res.Usage.PromptTokens, 0)
}

func TestGenerate_PromptMode(t *testing.T) {
	var got capturedRequest
	reply := "Sure.\n```json\n{\"tool_calls\":[{\"name\":\"get_weather\",\"args\":{\"city\":\"Beijing\"}},{\"args\":{}}]}\n```"
	c := newTestClient(t, "prompt", completion(reply, `"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}`), &got)

	history := []llm.Message{
		llm.SystemMessage("be brief"),
		llm.UserMessage("weather?"),
		llm.AssistantMessage("", llm.ToolCall{ID: "c0", Name: "get_weather", Args: `{"city":"Oslo"}`}),
		llm.ToolMessage(llm.ToolCall{ID: "c0", Name: "get_weather"}, "rain"),
	}
	res, err := c.Generate(context.Background(), history, []tools.ToolDefinition{weatherDef()})
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 1, "entries without a name are skipped")
	assert.Equal(t, "get_weather", res.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"Beijing"}`, res.ToolCalls[0].Args)
	assert.True(t, strings.HasPrefix(res.ToolCalls[0].ID, "call_"))
	assert.Equal(t, llm.TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, res.Usage)

	// tools не уходят нативно, описаны в system
	assert.Empty(t, got.Tools)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "be brief")
	assert.Contains(t, got.Messages[0].Content, "get_weather")
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Contains(t, got.Messages[2].Content, `"tool_calls"`)
	assert.Equal(t, "user", got.Messages[3].Role)
	assert.Equal(t, "Tool get_weather (call c0) returned: rain", got.Messages[3].Content)
}

func TestGenerate_NoneModeRejectsTools(t *testing.T) {
	c := newTestClient(t, "none", completion("hi", ""), nil)

	_, err := c.Generate(context.Background(), []llm.Message{llm.UserMessage("hi")}, []tools.ToolDefinition{weatherDef()})
	assert.ErrorIs(t, err, llm.ErrToolsNotSupported)

	res, err := c.Generate(context.Background(), []llm.Message{llm.UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Content)
}

func TestGenerate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"busy","type":"rate"}}`)
	}))
	defer srv.Close()

	c, err := NewClient(config.ModelDef{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), []llm.Message{llm.UserMessage("hi")}, nil)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestParseToolCalls(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		names []string
	}{
		{"plain json", `{"tool_calls":[{"name":"a","args":{"x":1}}]}`, []string{"a"}},
		{"surrounded by prose", `I will call: {"tool_calls":[{"name":"a"},{"name":"b","args":{}}]} now`, []string{"a", "b"}},
		{"no json", "The answer is 42.", nil},
		{"other json", `{"answer": 42}`, nil},
		{"broken json", `{"tool_calls":[{"name":`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := ParseToolCalls(tt.text)
			var names []string
			for _, c := range calls {
				names = append(names, c.Name)
				assert.NotEmpty(t, c.ID)
				assert.NotEmpty(t, c.Args)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestPromptHistory_NoSystem(t *testing.T) {
	out := promptHistory([]llm.Message{llm.UserMessage("hi")}, []tools.ToolDefinition{weatherDef()})
	require.Len(t, out, 2)
	assert.Equal(t, llm.RoleSystem, out[0].Role)
	assert.Contains(t, out[0].Content, `{"tool_calls"`)

	plain := promptHistory([]llm.Message{llm.UserMessage("hi")}, nil)
	assert.Len(t, plain, 1)
}
