// Package events предоставляет Port для подписки на события ReAct агента.
//
// Позволяет подключать любые UI (CLI, Web) без изменения логики цикла.
//
//	emitter := events.NewChanEmitter(64)
//	ag, _ := agent.New(provider, registry, agent.WithEmitter(emitter))
//
//	for event := range emitter.Subscribe().Events() {
//	    switch data := event.Data.(type) {
//	    case events.ToolCallData:
//	        fmt.Println("calling", data.ToolName)
//	    case events.MessageData:
//	        fmt.Println(data.Content)
//	    }
//	}
//
// Все реализации Emitter должны быть thread-safe: события о результатах
// инструментов одного шага отправляются из разных горутин.
package events

import (
	"context"
	"time"
)

// EventType представляет тип события от агента.
type EventType string

const (
	// EventThinking отправляется перед каждым вызовом LLM.
	EventThinking EventType = "thinking"

	// EventStreamChunk — порция потокового ответа (только в streaming режиме).
	EventStreamChunk EventType = "stream_chunk"

	// EventToolCall отправляется когда модель запросила инструмент.
	EventToolCall EventType = "tool_call"

	// EventToolResult отправляется когда инструмент вернул результат или ошибку.
	EventToolResult EventType = "tool_result"

	// EventMessage отправляется с текстом финального ответа.
	EventMessage EventType = "message"

	// EventError отправляется при фатальной ошибке запуска.
	EventError EventType = "error"

	// EventDone отправляется когда агент завершил работу.
	EventDone EventType = "done"
)

// EventData — sealed interface для данных события.
//
// Только типы из пакета events могут реализовать этот интерфейс.
type EventData interface {
	eventData()
}

// ThinkingData содержит данные для EventThinking.
type ThinkingData struct {
	Iteration int
	Query     string
}

func (ThinkingData) eventData() {}

// StreamChunkData содержит данные для EventStreamChunk.
type StreamChunkData struct {
	// Chunk — инкрементальные данные (delta)
	Chunk string

	// Accumulated — накопленный текст на данный момент
	Accumulated string
}

func (StreamChunkData) eventData() {}

// ToolCallData содержит данные о вызове инструмента.
type ToolCallData struct {
	CallID   string
	ToolName string
	Args     string
}

func (ToolCallData) eventData() {}

// ToolResultData содержит результат выполнения инструмента.
type ToolResultData struct {
	CallID   string
	ToolName string
	Result   string
	Duration time.Duration

	// IsError — результат является сообщением об ошибке инструмента.
	IsError bool
}

func (ToolResultData) eventData() {}

// MessageData содержит данные для EventMessage и EventDone.
type MessageData struct {
	Content string
}

func (MessageData) eventData() {}

// ErrorData содержит данные для EventError.
type ErrorData struct {
	Err error
}

func (ErrorData) eventData() {}

// Event представляет событие от агента.
type Event struct {
	Type      EventType
	Data      EventData
	Timestamp time.Time
}

// New создаёт событие с текущим временем.
func New(t EventType, data EventData) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// Emitter — это Port для отправки событий.
//
// Если context отменён, Emit должен вернуться без блокировки.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Subscriber позволяет читать события из канала.
type Subscriber interface {
	// Events возвращает read-only канал событий.
	// Канал закрывается при закрытии эмиттера.
	Events() <-chan Event

	Close()
}
