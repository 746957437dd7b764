// Package ollama реализует адаптер для локального Ollama через его
// OpenAI-совместимый endpoint (/v1/chat/completions).
//
// Режимы инструментов (tool_mode в config.yaml):
//   - native — tools передаются в запросе, модель возвращает tool_calls
//   - prompt — tools описываются в system сообщении, вызовы извлекаются
//     из текста ответа вида {"tool_calls":[{"name":..,"args":{..}}]}
//   - none   — модель без инструментов, запрос с tools отклоняется
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/llm/tokens"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

const (
	providerName   = "ollama"
	defaultBaseURL = "http://localhost:11434/v1/"
	defaultModel   = "llama3.2"
)

// ToolMode — способ передачи инструментов модели.
type ToolMode string

const (
	ToolModeNative ToolMode = "native"
	ToolModePrompt ToolMode = "prompt"
	ToolModeNone   ToolMode = "none"
)

// Client реализует llm.StreamingProvider для Ollama.
type Client struct {
	api      openai.Client
	mode     ToolMode
	limiter  *rate.Limiter
	defaults llm.GenerateOptions
}

// NewClient создаёт клиент по описанию модели.
func NewClient(modelDef config.ModelDef) (*Client, error) {
	mode := ToolMode(modelDef.ToolMode)
	switch mode {
	case "":
		mode = ToolModeNative
	case ToolModeNative, ToolModePrompt, ToolModeNone:
	default:
		return nil, fmt.Errorf("unknown tool_mode %q", modelDef.ToolMode)
	}

	baseURL := modelDef.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := modelDef.APIKey
	if apiKey == "" {
		// Ollama ключ игнорирует, но SDK шлёт заголовок
		apiKey = "ollama"
	}
	model := modelDef.ModelName
	if model == "" {
		model = defaultModel
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		// ровно один запрос на Generate
		option.WithMaxRetries(0),
	}
	if modelDef.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: modelDef.Timeout}))
	}

	return &Client{
		api:     openai.NewClient(opts...),
		mode:    mode,
		limiter: llm.NewLimiter(modelDef.RateLimit, modelDef.Burst),
		defaults: llm.GenerateOptions{
			Model:             model,
			Temperature:       modelDef.Temperature,
			MaxTokens:         modelDef.MaxTokens,
			ParallelToolCalls: modelDef.ParallelToolCalls,
		},
	}, nil
}

// Name возвращает "ollama".
func (c *Client) Name() string {
	return providerName
}

// Mode возвращает режим инструментов.
func (c *Client) Mode() ToolMode {
	return c.mode
}

// Generate выполняет один запрос к Ollama.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, defs []tools.ToolDefinition, opts ...llm.GenerateOption) (llm.GenerateResult, error) {
	if len(defs) > 0 && c.mode == ToolModeNone {
		return llm.GenerateResult{}, llm.NewProviderError(providerName, llm.ErrKindToolsNotSupported,
			fmt.Errorf("model is configured with tool_mode=none but %d tools were passed", len(defs)))
	}

	start := time.Now()
	options := llm.ApplyOptions(c.defaults, opts...)

	history := messages
	if c.mode == ToolModePrompt {
		history = promptHistory(messages, defs)
	}
	params := c.buildParams(history, options)
	if c.mode == ToolModeNative && len(defs) > 0 {
		params.Tools = convertTools(defs)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
		if options.ParallelToolCalls != nil {
			params.ParallelToolCalls = openai.Bool(*options.ParallelToolCalls)
		}
	}

	utils.Debug("LLM request started",
		"provider", providerName,
		"model", options.Model,
		"tool_mode", string(c.mode),
		"messages_count", len(history),
		"tools_count", len(defs))

	if err := llm.WaitLimiter(ctx, c.limiter, providerName); err != nil {
		return llm.GenerateResult{}, err
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		utils.Error("LLM API request failed", "provider", providerName, "error", err)
		return llm.GenerateResult{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return llm.GenerateResult{}, llm.NewProviderError(providerName, llm.ErrKindMalformed, llm.ErrEmptyResponse)
	}

	msg := resp.Choices[0].Message
	result := llm.GenerateResult{Content: msg.Content, Model: resp.Model}

	switch c.mode {
	case ToolModeNative:
		for _, tc := range msg.ToolCalls {
			if tc.Type != "function" {
				continue
			}
			id := tc.ID
			if id == "" {
				id = newCallID()
			}
			result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
				ID:   id,
				Name: tc.Function.Name,
				Args: tc.Function.Arguments,
			})
		}
	case ToolModePrompt:
		if len(defs) > 0 {
			result.ToolCalls = ParseToolCalls(msg.Content)
		}
	}

	if resp.Usage.TotalTokens > 0 {
		result.Usage = llm.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	} else {
		result.Usage = tokens.Estimate(history, result.Content, result.ToolCalls)
	}

	utils.Info("LLM response received",
		"provider", providerName,
		"model", options.Model,
		"tool_calls_count", len(result.ToolCalls),
		"content_length", len(result.Content),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// Stream отдаёт текст ответа порциями. Tools не передаются.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		options := llm.ApplyOptions(c.defaults, opts...)
		history := messages
		if c.mode == ToolModePrompt {
			history = promptHistory(messages, nil)
		}

		if err := llm.WaitLimiter(ctx, c.limiter, providerName); err != nil {
			yield(llm.StreamChunk{}, err)
			return
		}

		stream := c.api.Chat.Completions.NewStreaming(ctx, c.buildParams(history, options))
		defer stream.Close()

		var content strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			content.WriteString(delta)
			if !yield(llm.StreamChunk{Delta: delta, Content: content.String()}, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(llm.StreamChunk{Content: content.String()}, classifyError(err))
			return
		}
		yield(llm.StreamChunk{Content: content.String(), Done: true}, nil)
	}
}

func (c *Client) buildParams(messages []llm.Message, options llm.GenerateOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(options.Model),
		Messages: convertMessages(messages),
	}
	if options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(options.MaxTokens))
	}
	if options.Temperature > 0 {
		params.Temperature = openai.Float(options.Temperature)
	}
	if options.Format == "json_object" {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{
			Kind:       llm.ClassifyStatus(apiErr.StatusCode),
			Provider:   providerName,
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return llm.WrapError(providerName, err)
}

func convertMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case llm.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case llm.RoleAssistant:
			asst := &openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Args,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: asst})
		}
	}
	return out
}

func convertTools(defs []tools.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, len(defs))
	for i, d := range defs {
		params := map[string]any(d.Parameters)
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        d.Name,
					Description: openai.String(d.Description),
					Parameters:  shared.FunctionParameters(params),
				},
			},
		}
	}
	return out
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// promptCall — элемент tool_calls в текстовом протоколе.
type promptCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type promptEnvelope struct {
	ToolCalls []promptCall `json:"tool_calls"`
}

// ParseToolCalls извлекает {"tool_calls":[...]} из текста модели.
//
// Терпим к markdown и тексту вокруг JSON. Элементы без name пропускаются,
// отсутствующие args становятся {}. Каждому вызову выдаётся новый id.
func ParseToolCalls(text string) []llm.ToolCall {
	obj, ok := utils.ExtractJSONObject(text)
	if !ok {
		return nil
	}
	var env promptEnvelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		return nil
	}

	var calls []llm.ToolCall
	for _, pc := range env.ToolCalls {
		name := strings.TrimSpace(pc.Name)
		if name == "" {
			continue
		}
		args := strings.TrimSpace(string(pc.Args))
		if args == "" || args == "null" {
			args = "{}"
		}
		calls = append(calls, llm.ToolCall{ID: newCallID(), Name: name, Args: args})
	}
	return calls
}

// promptHistory переписывает историю для моделей без нативных tools:
// описание инструментов уходит в system, вызовы и результаты становятся текстом.
func promptHistory(messages []llm.Message, defs []tools.ToolDefinition) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	instructions := toolInstructions(defs)

	injected := instructions == ""
	for _, m := range messages {
		switch {
		case m.Role == llm.RoleSystem && !injected:
			m.Content = strings.TrimSpace(m.Content + "\n\n" + instructions)
			injected = true
			out = append(out, m)
		case m.Role == llm.RoleTool:
			out = append(out, llm.UserMessage(fmt.Sprintf("Tool %s (call %s) returned: %s", m.Name, m.ToolCallID, m.Content)))
		case m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0:
			content := m.Content
			if strings.TrimSpace(content) == "" {
				content = renderToolCalls(m.ToolCalls)
			}
			out = append(out, llm.AssistantMessage(content))
		default:
			out = append(out, m.Clone())
		}
	}
	if !injected {
		out = append([]llm.Message{llm.SystemMessage(instructions)}, out...)
	}
	return out
}

func toolInstructions(defs []tools.ToolDefinition) string {
	if len(defs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("You can call the following tools:\n")
	for _, d := range defs {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
		if d.Parameters != nil {
			if schema, err := json.Marshal(d.Parameters); err == nil {
				fmt.Fprintf(&sb, "  parameters: %s\n", schema)
			}
		}
	}
	sb.WriteString("\nTo call tools reply with ONLY a JSON object of the form ")
	sb.WriteString(`{"tool_calls":[{"name":"<tool>","args":{...}}]}`)
	sb.WriteString(". Tool results will be sent back to you. When you know the final answer reply with plain text.")
	return sb.String()
}

func renderToolCalls(calls []llm.ToolCall) string {
	env := promptEnvelope{ToolCalls: make([]promptCall, len(calls))}
	for i, tc := range calls {
		args := json.RawMessage("{}")
		if obj, ok := utils.ExtractJSONObject(tc.Args); ok {
			args = json.RawMessage(obj)
		}
		env.ToolCalls[i] = promptCall{Name: tc.Name, Args: args}
	}
	data, _ := json.Marshal(env)
	return string(data)
}

var _ llm.StreamingProvider = (*Client)(nil)
