// Package chain реализует ReAct (Reasoning + Acting) цикл агента.
//
// ReActCycle — конечный автомат:
//
//	Start → Thinking → {Acting, Done, Failed}
//	Acting → Thinking
//
// Thinking вызывает llm.Provider, Acting выполняет инструменты через Dispatcher.
// Ход диалога последовательный; параллелизм есть только внутри одного Acting.
//
// Правила из dev_manifest.md:
//   - Rule 1: Работает с Tool interface ("Raw In, String Out")
//   - Rule 3: Tools вызываются через Registry
//   - Rule 4: LLM вызывается через llm.Provider
//   - Rule 7: Все ошибки возвращаются, нет panic
package chain

import (
	"fmt"
	"time"

	"github.com/ilkoid/poncho-react/pkg/llm"
)

// State — состояние цикла.
type State int

const (
	StateStart State = iota
	StateThinking
	StateActing
	StateDone
	StateFailed
)

// String возвращает строковое представление State (для логов).
func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateThinking:
		return "Thinking"
	case StateActing:
		return "Acting"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Output — результат одного запуска цикла.
type Output struct {
	// Result — финальный ответ (content последнего assistant сообщения).
	Result string

	// Thinking — количество вызовов LLM.
	Thinking int

	// Acting — количество выполненных шагов инструментов.
	Acting int

	// Usage — суммарный расход токенов за запуск.
	Usage llm.TokenUsage

	// Duration — общее время выполнения.
	Duration time.Duration

	// Messages — сообщения, добавленные в историю за этот запуск.
	Messages []llm.Message

	// TracePaths — куда сохранён debug трейс (если включён).
	TracePaths []string
}
