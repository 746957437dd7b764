package events

import (
	"context"
	"sync"
)

// ChanEmitter — реализация Emitter через буферизованный канал.
//
// Thread-safe.
type ChanEmitter struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewChanEmitter создаёт ChanEmitter.
//
// При buffer = 0 канал небуферизованный и Emit блокируется до чтения.
func NewChanEmitter(buffer int) *ChanEmitter {
	return &ChanEmitter{
		ch: make(chan Event, buffer),
	}
}

// Emit отправляет событие в канал.
//
// Read-lock удерживается на время отправки, чтобы Close не закрыл канал
// посреди send. Отменённый контекст прерывает ожидание.
func (e *ChanEmitter) Emit(ctx context.Context, event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.ch <- event:
	case <-ctx.Done():
	}
}

// Subscribe возвращает Subscriber для чтения событий.
//
// Все подписчики читают из одного канала (конкурентные потребители).
func (e *ChanEmitter) Subscribe() Subscriber {
	return &chanSubscriber{ch: e.ch}
}

// Close закрывает канал. Повторный вызов безопасен.
func (e *ChanEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

type chanSubscriber struct {
	ch <-chan Event
}

func (s *chanSubscriber) Events() <-chan Event {
	return s.ch
}

// Close no-op: канал общий, закрывается через ChanEmitter.Close().
func (s *chanSubscriber) Close() {}

// EmitterFunc адаптирует функцию к Emitter.
type EmitterFunc func(ctx context.Context, event Event)

func (f EmitterFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// MultiEmitter рассылает событие всем вложенным эмиттерам по порядку.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

var (
	_ Emitter    = (*ChanEmitter)(nil)
	_ Emitter    = EmitterFunc(nil)
	_ Emitter    = MultiEmitter(nil)
	_ Subscriber = (*chanSubscriber)(nil)
)
