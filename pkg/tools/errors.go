package tools

import (
	"errors"
	"fmt"
)

// ErrorKind — категория ошибки вызова инструмента.
type ErrorKind int

const (
	// KindNotFound — модель вызвала незарегистрированный инструмент.
	KindNotFound ErrorKind = iota + 1
	// KindInvalidArguments — аргументы не прошли валидацию по схеме.
	KindInvalidArguments
	// KindExecutionFailed — инструмент вернул ошибку, паниковал или превысил таймаут.
	KindExecutionFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArguments:
		return "invalid_arguments"
	case KindExecutionFailed:
		return "execution_failed"
	default:
		return "unknown"
	}
}

// Сентинелы для errors.Is.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrExecutionFailed  = errors.New("tool execution failed")
)

// ToolError — ошибка вызова инструмента.
//
// Никогда не прерывает цикл: диспетчер превращает её в tool-сообщение,
// которое модель увидит на следующей итерации.
type ToolError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Tool)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is матчит сентинел по Kind.
func (e *ToolError) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrToolNotFound
	case KindInvalidArguments:
		return target == ErrInvalidArguments
	case KindExecutionFailed:
		return target == ErrExecutionFailed
	}
	return false
}

// NewToolError создаёт ToolError.
func NewToolError(kind ErrorKind, tool string, err error) *ToolError {
	return &ToolError{Kind: kind, Tool: tool, Err: err}
}

// AsToolError извлекает *ToolError из цепочки.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
