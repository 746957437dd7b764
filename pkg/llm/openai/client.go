// Package openai реализует адаптер LLM провайдера для OpenAI-совместимых API.
//
// Поддерживает Function Calling (tools) и потоковую генерацию.
// Соблюдает правило 4 манифеста: работает только через интерфейс llm.Provider.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// Client реализует llm.StreamingProvider для OpenAI-совместимых API
// (OpenAI, Zai, DeepSeek и т.д. через BaseURL).
type Client struct {
	api      *openai.Client
	name     string
	model    string
	limiter  *rate.Limiter
	defaults llm.GenerateOptions
}

// NewClient создает OpenAI клиент на основе конфигурации модели.
//
// Правило 2: Все настройки из конфигурации, никакого хардкода.
func NewClient(modelDef config.ModelDef) *Client {
	cfg := openai.DefaultConfig(modelDef.APIKey)
	// Поддержка custom BaseURL для non-OpenAI провайдеров
	if modelDef.BaseURL != "" {
		cfg.BaseURL = modelDef.BaseURL
	}
	if modelDef.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: modelDef.Timeout}
	}

	name := modelDef.Provider
	if name == "" {
		name = "openai"
	}

	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		name:    name,
		model:   modelDef.ModelName,
		limiter: llm.NewLimiter(modelDef.RateLimit, modelDef.Burst),
		defaults: llm.GenerateOptions{
			Model:             modelDef.ModelName,
			Temperature:       modelDef.Temperature,
			MaxTokens:         modelDef.MaxTokens,
			ParallelToolCalls: modelDef.ParallelToolCalls,
		},
	}
}

// Name возвращает имя провайдера для логов и ошибок.
func (c *Client) Name() string {
	return c.name
}

// Generate выполняет один запрос к API и возвращает нормализованный ответ.
//
// Алгоритм:
//  1. Конвертирует внутренние сообщения в формат OpenAI SDK
//  2. Если переданы tools — добавляет их в запрос (tool_choice=auto)
//  3. Вызывает API (ровно один запрос, без ретраев)
//  4. Конвертирует ответ обратно, включая ToolCalls и usage
//
// Правило 7: Все ошибки возвращаются как *llm.ProviderError, никаких panic.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, defs []tools.ToolDefinition, opts ...llm.GenerateOption) (llm.GenerateResult, error) {
	startTime := time.Now()
	options := llm.ApplyOptions(c.defaults, opts...)

	utils.Debug("LLM request started",
		"provider", c.name,
		"model", options.Model,
		"messages_count", len(messages),
		"tools_count", len(defs))

	req := c.buildRequest(messages, defs, options)

	if err := llm.WaitLimiter(ctx, c.limiter, c.name); err != nil {
		return llm.GenerateResult{}, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		utils.Error("LLM API request failed",
			"provider", c.name,
			"error", err,
			"model", options.Model,
			"duration_ms", time.Since(startTime).Milliseconds())
		return llm.GenerateResult{}, c.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return llm.GenerateResult{}, llm.NewProviderError(c.name, llm.ErrKindMalformed, llm.ErrEmptyResponse)
	}

	result := mapFromOpenAI(resp.Choices[0].Message)
	result.Model = resp.Model
	result.Usage = llm.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	utils.Info("LLM response received",
		"provider", c.name,
		"model", options.Model,
		"tool_calls_count", len(result.ToolCalls),
		"content_length", len(result.Content),
		"duration_ms", time.Since(startTime).Milliseconds())

	return result, nil
}

// Stream отдаёт текст ответа порциями через CreateChatCompletionStream.
//
// Tools в потоковый запрос не передаются: стриминг используется только
// для простого чата, ReAct цикл работает через Generate.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		options := llm.ApplyOptions(c.defaults, opts...)
		req := c.buildRequest(messages, nil, options)
		req.Stream = true

		if err := llm.WaitLimiter(ctx, c.limiter, c.name); err != nil {
			yield(llm.StreamChunk{}, err)
			return
		}

		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield(llm.StreamChunk{}, c.classifyError(err))
			return
		}
		defer stream.Close()

		var content string
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				yield(llm.StreamChunk{Content: content, Done: true}, nil)
				return
			}
			if err != nil {
				yield(llm.StreamChunk{Content: content}, c.classifyError(err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			content += delta
			if !yield(llm.StreamChunk{Delta: delta, Content: content}, nil) {
				return
			}
		}
	}
}

func (c *Client) buildRequest(messages []llm.Message, defs []tools.ToolDefinition, options llm.GenerateOptions) openai.ChatCompletionRequest {
	openaiMsgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		openaiMsgs[i] = mapToOpenAI(m)
	}

	req := openai.ChatCompletionRequest{
		Model:       options.Model,
		Messages:    openaiMsgs,
		MaxTokens:   options.MaxTokens,
		Temperature: float32(options.Temperature),
	}
	if options.Format == "json_object" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	if len(defs) > 0 {
		req.Tools = convertToolsToOpenAI(defs)
		// LLM сама решает когда вызывать tools
		req.ToolChoice = "auto"
		if options.ParallelToolCalls != nil {
			req.ParallelToolCalls = *options.ParallelToolCalls
		}
	}
	return req
}

// classifyError переводит ошибки SDK в *llm.ProviderError.
func (c *Client) classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{
			Kind:       llm.ClassifyStatus(apiErr.HTTPStatusCode),
			Provider:   c.name,
			StatusCode: apiErr.HTTPStatusCode,
			Err:        fmt.Errorf("%s", apiErr.Message),
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.ProviderError{
			Kind:       llm.ClassifyStatus(reqErr.HTTPStatusCode),
			Provider:   c.name,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return llm.WrapError(c.name, err)
}

// mapToOpenAI конвертирует внутреннее сообщение в формат SDK.
func mapToOpenAI(m llm.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:    string(m.Role),
		Content: m.Content,
	}

	switch m.Role {
	case llm.RoleDeveloper:
		// большинство совместимых API не знают developer
		msg.Role = openai.ChatMessageRoleSystem
	case llm.RoleTool:
		msg.ToolCallID = m.ToolCallID
		msg.Name = m.Name
	case llm.RoleAssistant:
		if len(m.ToolCalls) > 0 {
			msg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				msg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Args,
					},
				}
			}
		}
	}
	return msg
}

// mapFromOpenAI извлекает текст и ToolCalls из ответа модели.
func mapFromOpenAI(choice openai.ChatCompletionMessage) llm.GenerateResult {
	result := llm.GenerateResult{Content: choice.Content}
	if len(choice.ToolCalls) > 0 {
		result.ToolCalls = make([]llm.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			result.ToolCalls[i] = llm.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: tc.Function.Arguments,
			}
		}
	}
	return result
}

// convertToolsToOpenAI конвертирует определения инструментов в формат
// OpenAI Function Calling.
//
// Parameters уже является JSON Schema объектом, он передаётся в SDK напрямую.
func convertToolsToOpenAI(defs []tools.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(defs))
	for i, def := range defs {
		params := def.Parameters
		if params == nil {
			params = tools.JSONSchema{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  map[string]any(params),
			},
		}
	}
	return result
}

var _ llm.StreamingProvider = (*Client)(nil)
