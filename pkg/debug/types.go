// Package debug предоставляет инструменты для записи и анализа выполнения AI-агента.
//
// Пакет сохраняет детальные трейсы выполнения в JSON формате для последующего
// анализа, отладки и оптимизации работы агента.
package debug

import "time"

// DebugLog представляет полный трейс одного запуска агента.
//
// Содержит всю информацию о выполнении:
// LLM вызовы, выполнения инструментов, временные метрики, ошибки.
type DebugLog struct {
	// RunID — уникальный идентификатор запуска (используется в имени файла)
	RunID string `json:"run_id"`

	// Agent — имя агента
	Agent string `json:"agent,omitempty"`

	// Timestamp — время начала выполнения
	Timestamp time.Time `json:"timestamp"`

	// UserQuery — исходная задача
	UserQuery string `json:"user_query"`

	// Duration — общая длительность выполнения в миллисекундах
	Duration int64 `json:"duration_ms"`

	// Iterations — список итераций ReAct цикла
	Iterations []Iteration `json:"iterations"`

	// Summary — агрегированная статистика выполнения
	Summary Summary `json:"summary"`

	// FinalResult — финальный ответ агента
	FinalResult string `json:"final_result,omitempty"`

	// Error — ошибка если выполнение завершилось неудачно
	Error string `json:"error,omitempty"`
}

// Iteration — одна пара Thinking (+ Acting) ReAct цикла.
type Iteration struct {
	// Number — номер итерации (начиная с 1)
	Number int `json:"iteration"`

	// Duration — длительность итерации в миллисекундах
	Duration int64 `json:"duration_ms"`

	LLMRequest  LLMRequest  `json:"llm_request"`
	LLMResponse LLMResponse `json:"llm_response"`

	// ToolsExecuted — инструменты, выполненные на этой итерации (в порядке вызовов)
	ToolsExecuted []ToolExecution `json:"tools_executed,omitempty"`

	// IsFinal — true если это финальная итерация (без tool calls)
	IsFinal bool `json:"is_final,omitempty"`
}

// LLMRequest содержит информацию о запросе к LLM.
type LLMRequest struct {
	// Provider — имя адаптера
	Provider string `json:"provider,omitempty"`

	// MessagesCount — количество сообщений в запросе
	MessagesCount int `json:"messages_count"`

	// Tools — имена доступных инструментов
	Tools []string `json:"tools,omitempty"`
}

// LLMResponse содержит ответ от LLM.
type LLMResponse struct {
	Content   string         `json:"content,omitempty"`
	ToolCalls []ToolCallInfo `json:"tool_calls,omitempty"`

	// Duration — длительность генерации в миллисекундах
	Duration int64 `json:"duration_ms"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`

	Error string `json:"error,omitempty"`
}

// ToolCallInfo описывает вызов инструмента от LLM.
type ToolCallInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolExecution описывает выполнение одного инструмента.
type ToolExecution struct {
	Name string `json:"name"`

	// CallID связывает выполнение с ToolCallInfo.
	CallID string `json:"call_id,omitempty"`

	// Args — аргументы (пусто если IncludeToolArgs=false)
	Args string `json:"args,omitempty"`

	// Result — результат (может быть обрезан по MaxResultSize)
	Result string `json:"result,omitempty"`

	// ResultTruncated — true если результат был обрезан
	ResultTruncated bool `json:"result_truncated,omitempty"`

	// Duration — длительность выполнения в миллисекундах
	Duration int64 `json:"duration_ms"`

	Success bool `json:"success"`

	// Error — вид ошибки (not_found, invalid_arguments, execution_failed) и детали
	Error string `json:"error,omitempty"`
}

// Summary содержит агрегированную статистику выполнения.
type Summary struct {
	TotalLLMCalls      int   `json:"total_llm_calls"`
	TotalToolsExecuted int   `json:"total_tools_executed"`
	TotalLLMDuration   int64 `json:"total_llm_duration_ms"`
	TotalToolDuration  int64 `json:"total_tool_duration_ms"`
	TotalTokens        int   `json:"total_tokens,omitempty"`

	// Errors — список всех ошибок выполнения
	Errors []string `json:"errors,omitempty"`

	// VisitedTools — отсортированный список уникальных вызванных инструментов
	VisitedTools []string `json:"visited_tools,omitempty"`
}
