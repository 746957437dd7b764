// Базовые типы - определяем универсальный язык общения с моделями.
package llm

import (
	"fmt"
	"strings"
)

// Role — роль автора сообщения в диалоге.
type Role string

// Константы ролей. Каждой роли соответствует ровно один смысл,
// роль никогда не выводится из содержимого сообщения.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"

	// RoleDeveloper — инструкции разработчика (OpenAI-совместимая роль).
	// Адаптеры без такой роли отправляют её как system.
	RoleDeveloper Role = "developer"
)

// Valid сообщает, является ли роль известной.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleDeveloper:
		return true
	default:
		return false
	}
}

// ToolCall — provider-agnostic запрос модели на вызов инструмента.
//
// ID может быть пустым у провайдеров без параллельных вызовов.
// Args — сырой JSON, валидируется позже диспетчером.
type ToolCall struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Args string `json:"arguments"`
}

// Message — одно сообщение (один ход) диалога.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Name — имя инструмента для RoleTool.
	Name string `json:"name,omitempty"`

	// ToolCallID связывает результат инструмента с исходным вызовом.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls присутствуют только у assistant сообщений.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// SystemMessage создаёт system сообщение.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// DeveloperMessage создаёт developer сообщение.
func DeveloperMessage(content string) Message {
	return Message{Role: RoleDeveloper, Content: content}
}

// UserMessage создаёт user сообщение.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage создаёт assistant сообщение с опциональными tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	msg := Message{Role: RoleAssistant, Content: content}
	if len(calls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return msg
}

// ToolMessage создаёт результат инструмента, отвечающий на call.
func ToolMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       call.Name,
		ToolCallID: call.ID,
	}
}

// Validate проверяет инварианты сообщения.
//
// Rule 7: возвращает ошибку вместо panic.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown message role %q", m.Role)
	}
	if m.Role == RoleTool && strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("tool message must carry the tool name (call id %q)", m.ToolCallID)
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return fmt.Errorf("only assistant messages may carry tool calls, got role %q", m.Role)
	}
	for i, tc := range m.ToolCalls {
		if strings.TrimSpace(tc.Name) == "" {
			return fmt.Errorf("tool call #%d has empty name", i)
		}
	}
	return nil
}

// Clone возвращает глубокую копию сообщения.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return m
}

// CloneMessages копирует историю, чтобы вызывающий не мог изменить оригинал.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// TokenUsage — расход токенов одного или нескольких вызовов.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add суммирует расход (используется циклом для накопления).
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// IsZero сообщает что провайдер не вернул статистику.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// GenerateResult — нормализованный ответ провайдера.
//
// Ответ без tool calls считается кандидатом на финальный ответ.
type GenerateResult struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage

	// Model — фактическая модель, ответившая на запрос (если известна).
	Model string
}

// HasToolCalls сообщает, запросила ли модель инструменты.
func (r GenerateResult) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Message превращает результат в assistant сообщение для истории.
func (r GenerateResult) Message() Message {
	return AssistantMessage(r.Content, r.ToolCalls...)
}
