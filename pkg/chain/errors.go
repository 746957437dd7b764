package chain

import (
	"errors"
	"fmt"
)

// AgentErrorKind — причина аварийного завершения цикла.
type AgentErrorKind int

const (
	// KindMaxIterations — достигнут лимит шагов с инструментами.
	KindMaxIterations AgentErrorKind = iota + 1
	// KindCancelled — контекст вызывающего отменён.
	KindCancelled
	// KindProvider — провайдер вернул ошибку (таймаут LLM тоже здесь).
	KindProvider
)

func (k AgentErrorKind) String() string {
	switch k {
	case KindMaxIterations:
		return "max_iterations_reached"
	case KindCancelled:
		return "cancelled"
	case KindProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Сентинелы для errors.Is.
var (
	ErrMaxIterations = errors.New("max iterations reached")
	ErrCancelled     = errors.New("run cancelled")
	ErrProvider      = errors.New("provider failed")
)

// AgentError — единственный тип ошибки, который возвращает ReActCycle.Run.
//
// Для KindProvider Err содержит *llm.ProviderError, доступный через errors.As.
type AgentError struct {
	Kind      AgentErrorKind
	Iteration int
	Err       error
}

func (e *AgentError) Error() string {
	switch e.Kind {
	case KindMaxIterations:
		return fmt.Sprintf("agent: max iterations reached (%d)", e.Iteration)
	case KindCancelled:
		if e.Err != nil {
			return fmt.Sprintf("agent: cancelled at iteration %d: %v", e.Iteration, e.Err)
		}
		return fmt.Sprintf("agent: cancelled at iteration %d", e.Iteration)
	default:
		return fmt.Sprintf("agent: %s error at iteration %d: %v", e.Kind, e.Iteration, e.Err)
	}
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// Is матчит сентинел по Kind.
func (e *AgentError) Is(target error) bool {
	switch e.Kind {
	case KindMaxIterations:
		return target == ErrMaxIterations
	case KindCancelled:
		return target == ErrCancelled
	case KindProvider:
		return target == ErrProvider
	}
	return false
}
