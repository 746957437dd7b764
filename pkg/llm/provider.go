// Интерфейс Провайдера через который работает всё приложение.

package llm

import (
	"context"

	"github.com/ilkoid/poncho-react/pkg/tools"
)

// Provider — контракт для любого AI-сервиса (OpenAI, Anthropic, Ollama и т.д.).
//
// Generate переводит историю и определения инструментов в формат вендора,
// выполняет ровно один исходящий запрос и нормализует ответ в GenerateResult.
//
// Контракт:
//   - каждая роль детерминированно переводится в роль вендора; если у вендора
//     нет tool роли, имя инструмента и id вызова кодируются в допустимые поля;
//   - каждое определение инструмента переводится в формат вендора; если
//     инструменты не поддерживаются, возвращается ErrToolsNotSupported;
//   - никаких внутренних retry: политика повторов принадлежит вызывающему;
//   - ошибки возвращаются как *ProviderError.
type Provider interface {
	Generate(ctx context.Context, messages []Message, defs []tools.ToolDefinition, opts ...GenerateOption) (GenerateResult, error)
}

// Named — опциональный интерфейс для логирования и трейсов.
type Named interface {
	Name() string
}

// ProviderName возвращает имя провайдера или "unknown".
func ProviderName(p Provider) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "unknown"
}
