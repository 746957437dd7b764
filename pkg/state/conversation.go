// Package state предоставляет thread-safe память агента — хронологию диалога.
//
// Conversation — упорядоченная, только-дописываемая последовательность сообщений.
// Цикл агента никогда не редактирует и не удаляет уже добавленные сообщения;
// единственный способ укоротить историю — явный Reset() со стороны владельца.
//
// Package state следует правилам из dev_manifest.md:
//   - Rule 5: Thread-safe доступ через sync.RWMutex, никаких глобальных переменных
//   - Rule 7: Все ошибки возвращаются, никаких panic
package state

import (
	"fmt"
	"sync"

	"github.com/ilkoid/poncho-react/pkg/llm"
)

// Conversation — история диалога.
//
// Сообщения копируются при добавлении и при чтении,
// поэтому вызывающий код не может изменить историю снаружи.
type Conversation struct {
	mu       sync.RWMutex
	messages []llm.Message
}

// NewConversation создаёт историю, опционально заполненную начальными сообщениями.
func NewConversation(initial ...llm.Message) (*Conversation, error) {
	c := &Conversation{messages: make([]llm.Message, 0, len(initial))}
	for _, msg := range initial {
		if err := c.Append(msg); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append валидирует сообщение и дописывает его в конец.
func (c *Conversation) Append(msg llm.Message) error {
	if err := msg.Validate(); err != nil {
		return &InvalidMessageError{Index: c.Len(), Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg.Clone())
	return nil
}

// AppendAll дописывает сообщения атомарно: либо все, либо ни одного.
func (c *Conversation) AppendAll(msgs ...llm.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return &InvalidMessageError{Index: len(c.messages) + i, Err: err}
		}
	}
	for _, msg := range msgs {
		c.messages = append(c.messages, msg.Clone())
	}
	return nil
}

// Messages возвращает копию истории.
func (c *Conversation) Messages() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return llm.CloneMessages(c.messages)
}

// Len возвращает количество сообщений.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last возвращает последнее сообщение.
func (c *Conversation) Last() (llm.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return llm.Message{}, ErrEmptyConversation
	}
	return c.messages[len(c.messages)-1].Clone(), nil
}

// At возвращает сообщение по индексу.
func (c *Conversation) At(i int) (llm.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i < 0 || i >= len(c.messages) {
		return llm.Message{}, fmt.Errorf("%w: index %d of %d", ErrOutOfRange, i, len(c.messages))
	}
	return c.messages[i].Clone(), nil
}

// Since возвращает копию сообщений начиная с индекса from.
//
// Используется циклом, чтобы вернуть только сообщения текущего запуска.
func (c *Conversation) Since(from int) []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if from >= len(c.messages) {
		return []llm.Message{}
	}
	return llm.CloneMessages(c.messages[from:])
}

// HasSystem сообщает, есть ли в истории system-сообщение.
func (c *Conversation) HasSystem() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.messages {
		if m.Role == llm.RoleSystem {
			return true
		}
	}
	return false
}

// Reset очищает историю.
//
// Не вызывается циклом агента: только владельцем (Agent.Reset).
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]llm.Message, 0)
}
