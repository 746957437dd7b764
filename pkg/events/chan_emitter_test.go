package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanEmitter_DeliversInOrder(t *testing.T) {
	e := NewChanEmitter(4)
	ctx := context.Background()

	e.Emit(ctx, New(EventThinking, ThinkingData{Iteration: 1}))
	e.Emit(ctx, New(EventDone, MessageData{Content: "ok"}))
	e.Close()

	var got []EventType
	for ev := range e.Subscribe().Events() {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []EventType{EventThinking, EventDone}, got)
}

func TestChanEmitter_EmitAfterCloseIsNoop(t *testing.T) {
	e := NewChanEmitter(1)
	e.Close()
	e.Close()
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), New(EventDone, MessageData{}))
	})
}

func TestChanEmitter_CancelledContextDoesNotBlock(t *testing.T) {
	e := NewChanEmitter(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		e.Emit(ctx, New(EventThinking, ThinkingData{}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on cancelled context")
	}
}

func TestMultiEmitter(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	record := func(name string) Emitter {
		return EmitterFunc(func(_ context.Context, ev Event) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+string(ev.Type))
		})
	}

	m := MultiEmitter{record("a"), nil, record("b")}
	m.Emit(context.Background(), New(EventError, ErrorData{}))

	require.Len(t, seen, 2)
	assert.Equal(t, []string{"a:error", "b:error"}, seen)
}
