package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// NewLimiter создаёт клиентский rate limiter.
//
// perMinute — запросов в минуту (0 = без ограничения, возвращает nil).
// Лимитер только задерживает запрос и никогда его не повторяет.
func NewLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	// запросов/минуту → rate.Limit в запросах/секунду
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// WaitLimiter ждёт разрешения лимитера. nil limiter пропускает сразу.
//
// Если ожидание прервано контекстом, возвращается ошибка контекста как
// есть: цикл сам решит, отмена это или таймаут LLM вызова.
func WaitLimiter(ctx context.Context, limiter *rate.Limiter, provider string) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Wait отказывает сразу, если дедлайн наступит раньше слота
		return NewProviderError(provider, ErrKindRateLimited, fmt.Errorf("client rate limit: %w", err))
	}
	return nil
}
