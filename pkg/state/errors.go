package state

import (
	"errors"
	"fmt"
)

// ErrEmptyConversation возвращается при чтении последнего сообщения пустой истории.
var ErrEmptyConversation = errors.New("conversation is empty")

// ErrOutOfRange возвращается при обращении по несуществующему индексу.
var ErrOutOfRange = errors.New("index out of range")

// ErrInvalidMessage возвращается когда сообщение нарушает инварианты модели.
var ErrInvalidMessage = errors.New("invalid message")

// InvalidMessageError — ошибка с контекстом позиции сообщения.
//
// Поддерживает errors.Is() с ErrInvalidMessage.
type InvalidMessageError struct {
	Index int
	Err   error
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("invalid message at %d: %v", e.Index, e.Err)
}

func (e *InvalidMessageError) Unwrap() error {
	return e.Err
}

// Is проверяет что ошибка является ErrInvalidMessage.
func (e *InvalidMessageError) Is(target error) bool {
	return target == ErrInvalidMessage
}
