// Package anthropic реализует адаптер для Anthropic Messages API.
//
// Работает поверх net/http: system сообщения поднимаются в поле system,
// tool calls кодируются блоками tool_use, результаты — блоками tool_result
// в user-ходе.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

const providerName = "anthropic"

// Client реализует llm.StreamingProvider для Anthropic.
type Client struct {
	http     *http.Client
	baseURL  string
	headers  map[string]string
	limiter  *rate.Limiter
	defaults llm.GenerateOptions
}

// NewClient создаёт клиент по описанию модели из config.yaml.
func NewClient(modelDef config.ModelDef) (*Client, error) {
	apiKey := strings.TrimSpace(modelDef.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if strings.TrimSpace(modelDef.ModelName) == "" {
		return nil, errors.New("anthropic model name is required")
	}

	timeout := modelDef.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	maxTokens := modelDef.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: sanitizeBaseURL(modelDef.BaseURL),
		headers: map[string]string{
			"X-API-Key":         apiKey,
			"Anthropic-Version": anthropicVersion,
			"Content-Type":      "application/json",
			"User-Agent":        userAgent,
		},
		limiter: llm.NewLimiter(modelDef.RateLimit, modelDef.Burst),
		defaults: llm.GenerateOptions{
			Model:       modelDef.ModelName,
			Temperature: modelDef.Temperature,
			MaxTokens:   maxTokens,
		},
	}, nil
}

// Name возвращает "anthropic".
func (c *Client) Name() string {
	return providerName
}

// Generate выполняет один запрос к Messages API.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, defs []tools.ToolDefinition, opts ...llm.GenerateOption) (llm.GenerateResult, error) {
	start := time.Now()
	options := llm.ApplyOptions(c.defaults, opts...)
	payload := c.buildPayload(messages, defs, options, false)

	utils.Debug("LLM request started",
		"provider", providerName,
		"model", payload.Model,
		"messages_count", len(payload.Messages),
		"tools_count", len(payload.Tools))

	resp, err := c.doRequest(ctx, payload)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	defer resp.Body.Close()

	var msgResp messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return llm.GenerateResult{}, llm.NewProviderError(providerName, llm.ErrKindMalformed,
			fmt.Errorf("decode anthropic response: %w", err))
	}

	result := convertResponse(msgResp)
	utils.Info("LLM response received",
		"provider", providerName,
		"model", payload.Model,
		"tool_calls_count", len(result.ToolCalls),
		"content_length", len(result.Content),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// Stream отдаёт текст через SSE (stream=true).
func (c *Client) Stream(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		options := llm.ApplyOptions(c.defaults, opts...)
		payload := c.buildPayload(messages, nil, options, true)

		resp, err := c.doRequest(ctx, payload)
		if err != nil {
			yield(llm.StreamChunk{}, err)
			return
		}
		defer resp.Body.Close()

		var full strings.Builder
		stopped := errors.New("stopped")
		streamErr := consumeSSE(ctx, resp.Body, func(_ string, data string) error {
			var env streamEnvelope
			if err := json.Unmarshal([]byte(data), &env); err != nil {
				return llm.NewProviderError(providerName, llm.ErrKindMalformed,
					fmt.Errorf("decode anthropic stream envelope: %w", err))
			}
			switch env.Type {
			case "content_block_delta":
				var delta contentBlockDelta
				if err := json.Unmarshal([]byte(data), &delta); err != nil {
					return llm.NewProviderError(providerName, llm.ErrKindMalformed, err)
				}
				if delta.Delta.Text == "" {
					return nil
				}
				full.WriteString(delta.Delta.Text)
				if !yield(llm.StreamChunk{Delta: delta.Delta.Text, Content: full.String()}, nil) {
					return stopped
				}
			case "error":
				var se streamError
				_ = json.Unmarshal([]byte(data), &se)
				return llm.NewProviderError(providerName, llm.ErrKindUnknown,
					APIError{Type: se.Error.Type, Message: se.Error.Message})
			}
			return nil
		})

		switch {
		case errors.Is(streamErr, stopped):
			return
		case streamErr != nil:
			yield(llm.StreamChunk{Content: full.String()}, llm.WrapError(providerName, streamErr))
		default:
			yield(llm.StreamChunk{Content: full.String(), Done: true}, nil)
		}
	}
}

func (c *Client) buildPayload(messages []llm.Message, defs []tools.ToolDefinition, options llm.GenerateOptions, stream bool) messageRequest {
	system, chat := toAnthropicMessages(messages)

	payload := messageRequest{
		Model:     options.Model,
		Messages:  chat,
		System:    system,
		MaxTokens: options.MaxTokens,
		Stream:    stream,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = defaultMaxTokens
	}
	if options.Temperature > 0 {
		t := options.Temperature
		payload.Temperature = &t
	}
	for _, def := range defs {
		schema := map[string]any(def.Parameters)
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		payload.Tools = append(payload.Tools, toolParam{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return payload
}

// doRequest отправляет запрос и возвращает ответ только со статусом 2xx.
func (c *Client) doRequest(ctx context.Context, payload messageRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, llm.NewProviderError(providerName, llm.ErrKindMalformed,
			fmt.Errorf("encode anthropic request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, &buf)
	if err != nil {
		return nil, llm.NewProviderError(providerName, llm.ErrKindUnknown, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	if err := llm.WaitLimiter(ctx, c.limiter, providerName); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, llm.WrapError(providerName, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		apiErr := readAPIError(resp)
		utils.Error("LLM API request failed", "provider", providerName, "status", resp.StatusCode, "error", apiErr)
		return nil, &llm.ProviderError{
			Kind:       llm.ClassifyStatus(resp.StatusCode),
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        apiErr,
		}
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic api status %d: %w", resp.StatusCode, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return APIError{StatusCode: resp.StatusCode, Type: er.Error.Type, Message: er.Error.Message}
	}
	return APIError{StatusCode: resp.StatusCode, Message: string(body)}
}

func convertResponse(resp messageResponse) llm.GenerateResult {
	var text strings.Builder
	var calls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			calls = append(calls, llm.ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	return llm.GenerateResult{
		Content:   text.String(),
		ToolCalls: calls,
		Model:     resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// toAnthropicMessages поднимает system/developer в отдельное поле и
// склеивает соседние ходы одной роли (API требует чередования).
func toAnthropicMessages(messages []llm.Message) (string, []messageParam) {
	var systemParts []string
	out := make([]messageParam, 0, len(messages))

	appendTurn := func(role string, blocks ...contentBlock) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, messageParam{Role: role, Content: blocks})
	}

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			if msg.Content != "" {
				systemParts = append(systemParts, msg.Content)
			}

		case llm.RoleTool:
			appendTurn("user", contentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			})

		case llm.RoleAssistant:
			blocks := make([]contentBlock, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: toolInput(call.Args),
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, contentBlock{Type: "text", Text: ""})
			}
			appendTurn("assistant", blocks...)

		default:
			appendTurn("user", contentBlock{Type: "text", Text: msg.Content})
		}
	}

	if len(out) == 0 {
		out = append(out, messageParam{Role: "user", Content: []contentBlock{{Type: "text", Text: ""}}})
	}
	return strings.Join(systemParts, "\n\n"), out
}

// toolInput приводит аргументы к JSON объекту для блока tool_use.
func toolInput(args string) json.RawMessage {
	if obj, ok := utils.ExtractJSONObject(args); ok {
		return json.RawMessage(obj)
	}
	return json.RawMessage("{}")
}

func sanitizeBaseURL(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return defaultBaseURL
	}
	return trimmed
}

var _ llm.StreamingProvider = (*Client)(nil)
