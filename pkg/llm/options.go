// Package llm описывает нормализованную модель диалога и контракт провайдера.
//
// Функциональные опции позволяют переопределять параметры генерации
// в runtime поверх значений из config.yaml.
package llm

// GenerateOptions — параметры одного вызова Generate/Stream.
type GenerateOptions struct {
	// Model переопределяет модель из конфигурации (пусто = дефолт адаптера).
	Model string

	// Temperature: 0 означает "не передавать", используется дефолт вендора.
	Temperature float64

	// MaxTokens ограничивает длину ответа (0 = без ограничения).
	MaxTokens int

	// Format задаёт формат ответа ("json_object" для structured output).
	Format string

	// ParallelToolCalls разрешает модели несколько вызовов за ход.
	// nil = дефолт модели.
	ParallelToolCalls *bool
}

// GenerateOption — функциональная опция для GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithModel задаёт модель для генерации.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithTemperature задаёт температуру.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithMaxTokens задаёт лимит токенов ответа.
func WithMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = tokens
	}
}

// WithFormat задаёт формат ответа.
func WithFormat(format string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Format = format
	}
}

// WithParallelToolCalls разрешает или запрещает параллельные tool calls.
func WithParallelToolCalls(enabled bool) GenerateOption {
	return func(o *GenerateOptions) {
		o.ParallelToolCalls = &enabled
	}
}

// ApplyOptions накладывает опции поверх дефолтов адаптера.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	result := defaults
	for _, opt := range opts {
		if opt != nil {
			opt(&result)
		}
	}
	return result
}
