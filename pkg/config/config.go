package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Дефолтные значения, применяемые в Load после парсинга.
const (
	DefaultMaxIterations = 10
	DefaultLLMTimeout    = 60 * time.Second
	DefaultToolTimeout   = 30 * time.Second
	DefaultLogsDir       = "./debug_logs"
)

// AppConfig — корневая структура конфигурации.
// Она зеркалит структуру config.yaml.
type AppConfig struct {
	Models ModelsConfig          `yaml:"models"`
	Agent  AgentConfig           `yaml:"agent"`
	Tools  map[string]ToolConfig `yaml:"tools"`
	Debug  DebugConfig           `yaml:"debug"`
	Log    LogConfig             `yaml:"log"`

	// Storage — бакет для инструментов list_s3_files / read_s3_object.
	Storage S3Config `yaml:"storage"`
}

// ModelsConfig — настройки AI моделей.
type ModelsConfig struct {
	DefaultChat string              `yaml:"default_chat"` // Алиас модели по умолчанию
	Definitions map[string]ModelDef `yaml:"definitions"`  // Словарь определений моделей
}

// ModelDef — параметры конкретной модели.
type ModelDef struct {
	Provider    string        `yaml:"provider"`   // "openai", "zai", "deepseek", "anthropic", "ollama"
	ModelName   string        `yaml:"model_name"` // Реальное имя в API
	APIKey      string        `yaml:"api_key"`    // Поддерживает ${VAR}
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"` // Go умеет парсить строки вида "60s", "1m"

	// RateLimit — запросов в минуту (0 = без ограничения), Burst — всплеск.
	RateLimit int `yaml:"rate_limit"`
	Burst     int `yaml:"burst"`

	// ToolMode для провайдеров без нативных tools: native | prompt | none.
	ToolMode string `yaml:"tool_mode"`

	// ParallelToolCalls: nil = дефолт модели.
	ParallelToolCalls *bool `yaml:"parallel_tool_calls"`
}

// AgentConfig — параметры цикла агента.
type AgentConfig struct {
	Name             string        `yaml:"name"`
	SystemPrompt     string        `yaml:"system_prompt"`
	SystemPromptFile string        `yaml:"system_prompt_file"` // YAML шаблон, приоритетнее system_prompt
	MaxIterations    int           `yaml:"max_iterations"`
	LLMTimeout       time.Duration `yaml:"llm_timeout"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"` // 0 = ограничен только контекстом вызывающего
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	ToolTimeoutFatal bool          `yaml:"tool_timeout_fatal"` // таймаут инструмента завершает запуск
	EmptyAnswer      string        `yaml:"empty_answer"` // accept | reject
}

// ToolConfig — настройки инструмента.
type ToolConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
	Alias   string        `yaml:"alias"` // Имя, под которым модель увидит инструмент

	// Description переопределяет описание инструмента для модели.
	Description string `yaml:"description"`
}

// ExposedName возвращает имя, под которым инструмент зарегистрирован.
func (tc ToolConfig) ExposedName(name string) string {
	if tc.Alias != "" {
		return tc.Alias
	}
	return name
}

// DebugConfig — запись JSON трейсов выполнения.
type DebugConfig struct {
	Enabled            bool     `yaml:"enabled"`
	LogsDir            string   `yaml:"logs_dir"`
	IncludeToolArgs    bool     `yaml:"include_tool_args"`
	IncludeToolResults bool     `yaml:"include_tool_results"`
	MaxResultSize      int      `yaml:"max_result_size"`
	S3                 S3Config `yaml:"s3"`
}

// S3Config — настройки S3-совместимого хранилища (трейсы или инструменты).
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"` // Поддерживает ${VAR}
	SecretKey string `yaml:"secret_key"` // Поддерживает ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// LogConfig — настройки логгера.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	File  bool   `yaml:"file"`  // писать в файл вместо stderr
	Dir   string `yaml:"dir"`
}

// Load читает YAML файл, подставляет ENV переменные и возвращает готовую структуру.
func Load(path string) (*AppConfig, error) {
	// 1. Проверяем существование файла
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at: %s", path)
	}

	// 2. Читаем файл целиком
	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(rawBytes)
}

// Parse разбирает YAML из памяти: env → yaml → defaults → validate.
func Parse(data []byte) (*AppConfig, error) {
	// os.ExpandEnv заменяет ${VAR} или $VAR на значение из системы.
	contentWithEnv := os.ExpandEnv(string(data))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(contentWithEnv), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = "assistant"
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}
	if c.Agent.LLMTimeout == 0 {
		c.Agent.LLMTimeout = DefaultLLMTimeout
	}
	if c.Agent.ToolTimeout == 0 {
		c.Agent.ToolTimeout = DefaultToolTimeout
	}
	if c.Agent.EmptyAnswer == "" {
		c.Agent.EmptyAnswer = "accept"
	}
	if c.Debug.LogsDir == "" {
		c.Debug.LogsDir = DefaultLogsDir
	}
	if c.Debug.S3.Prefix == "" {
		c.Debug.S3.Prefix = "traces/"
	}
	for name, def := range c.Models.Definitions {
		if def.ToolMode == "" {
			def.ToolMode = "native"
		}
		c.Models.Definitions[name] = def
	}
}

// validate проверяет обязательные поля.
func (c *AppConfig) validate() error {
	if len(c.Models.Definitions) == 0 {
		return fmt.Errorf("models.definitions must contain at least one model")
	}
	if c.Models.DefaultChat == "" {
		return fmt.Errorf("models.default_chat is required")
	}
	if _, ok := c.Models.Definitions[c.Models.DefaultChat]; !ok {
		return fmt.Errorf("default_chat model '%s' is not defined in definitions", c.Models.DefaultChat)
	}
	for name, def := range c.Models.Definitions {
		if def.Provider == "" {
			return fmt.Errorf("model '%s': provider is required", name)
		}
		if def.ModelName == "" {
			return fmt.Errorf("model '%s': model_name is required", name)
		}
		switch def.ToolMode {
		case "native", "prompt", "none":
		default:
			return fmt.Errorf("model '%s': unknown tool_mode %q", name, def.ToolMode)
		}
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxParallelTools < 0 {
		return fmt.Errorf("agent.max_parallel_tools must not be negative")
	}
	switch c.Agent.EmptyAnswer {
	case "accept", "reject":
	default:
		return fmt.Errorf("agent.empty_answer must be accept or reject, got %q", c.Agent.EmptyAnswer)
	}
	if err := c.Debug.S3.validate("debug.s3"); err != nil {
		return err
	}
	return c.Storage.validate("storage")
}

func (s S3Config) validate(section string) error {
	if !s.Enabled {
		return nil
	}
	if s.Bucket == "" {
		return fmt.Errorf("%s.bucket is required", section)
	}
	if s.Endpoint == "" {
		return fmt.Errorf("%s.endpoint is required", section)
	}
	return nil
}

// GetChatModel возвращает конфигурацию модели по умолчанию или по имени.
func (c *AppConfig) GetChatModel(name string) (ModelDef, bool) {
	if name == "" {
		name = c.Models.DefaultChat
	}
	m, ok := c.Models.Definitions[name]
	return m, ok
}

// ToolEnabled сообщает, включён ли инструмент (отсутствие в конфиге = включён).
func (c *AppConfig) ToolEnabled(name string) bool {
	tc, ok := c.Tools[name]
	return !ok || tc.Enabled
}

// ToolTimeouts возвращает переопределения таймаутов по инструментам.
// Ключ — имя, которое видит модель (alias если задан).
func (c *AppConfig) ToolTimeouts() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for name, tc := range c.Tools {
		if tc.Timeout > 0 {
			out[tc.ExposedName(name)] = tc.Timeout
		}
	}
	return out
}
