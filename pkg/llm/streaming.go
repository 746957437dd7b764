package llm

import (
	"context"
	"iter"
	"strings"
)

// StreamingProvider — опциональная возможность провайдера отдавать ответ порциями.
//
// Отдельный интерфейс от Provider: ReAct цикл никогда от него не зависит,
// стриминг — побочный канал для UI.
//
// Последовательность ленивая, конечная и не перезапускаемая: повторный
// range по тому же значению вернёт ошибку от провайдера или пустой поток.
// Запрос уходит при первой итерации, прерывание range закрывает соединение.
type StreamingProvider interface {
	Provider

	Stream(ctx context.Context, messages []Message, opts ...GenerateOption) iter.Seq2[StreamChunk, error]
}

// StreamChunk — одна порция потокового ответа.
type StreamChunk struct {
	// Delta — инкремент текста.
	Delta string

	// Content — накопленный текст на данный момент.
	Content string

	// Done — последний чанк потока.
	Done bool
}

// CollectStream дочитывает поток до конца и возвращает полный текст.
//
// callback (если не nil) вызывается для каждого чанка.
func CollectStream(seq iter.Seq2[StreamChunk, error], callback func(StreamChunk)) (string, error) {
	var sb strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk.Delta)
		if callback != nil {
			callback(chunk)
		}
	}
	return sb.String(), nil
}
