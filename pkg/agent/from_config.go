package agent

import (
	"fmt"
	"time"

	"github.com/ilkoid/poncho-react/pkg/chain"
	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/debug"
	"github.com/ilkoid/poncho-react/pkg/models"
	"github.com/ilkoid/poncho-react/pkg/prompt"
	"github.com/ilkoid/poncho-react/pkg/s3storage"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/tools/std"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// NewFromConfig собирает агента из загруженного config.yaml.
//
// Порядок инициализации:
//  1. реестр моделей, выбор modelName (пусто = models.default_chat);
//  2. стандартные инструменты с учётом enabled/alias (и S3, если задан storage);
//  3. параметры цикла из секции agent (system_prompt_file рендерится здесь);
//  4. debug recorder (файл и опционально S3).
//
// Дополнительные opts применяются после конфига и имеют приоритет.
//
// Rule 2: конфигурация через YAML с ENV поддержкой.
// Rule 3: tools регистрируются через Registry.
func NewFromConfig(cfg *config.AppConfig, modelName string, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	modelRegistry, err := models.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	model, err := modelRegistry.Resolve(modelName)
	if err != nil {
		return nil, err
	}
	if model.Fallback {
		utils.Warn("Model not found, using default", "requested", modelName, "model", model.Name)
	}
	provider := model.Provider

	registry := tools.NewRegistry()
	if err := std.RegisterAll(registry, cfg); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if cfg.Storage.Enabled {
		client, err := s3storage.New(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := std.RegisterStorageTools(registry, cfg, client); err != nil {
			return nil, fmt.Errorf("failed to register storage tools: %w", err)
		}
	}

	policy, err := chain.ParseEmptyAnswerPolicy(cfg.Agent.EmptyAnswer)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithName(cfg.Agent.Name),
		WithSystemPrompt(cfg.Agent.SystemPrompt),
		WithMaxIterations(cfg.Agent.MaxIterations),
		WithLLMTimeout(cfg.Agent.LLMTimeout),
		WithRunTimeout(cfg.Agent.RunTimeout),
		WithToolTimeout(cfg.Agent.ToolTimeout),
		WithToolTimeouts(cfg.ToolTimeouts()),
		WithMaxParallelTools(cfg.Agent.MaxParallelTools),
		WithToolTimeoutFatal(cfg.Agent.ToolTimeoutFatal),
		WithEmptyAnswer(policy),
	}

	if cfg.Agent.SystemPromptFile != "" {
		promptOpts, err := loadSystemPrompt(cfg, registry)
		if err != nil {
			return nil, err
		}
		base = append(base, promptOpts...)
	}

	if cfg.Debug.Enabled {
		factory, err := NewRecorderFactory(cfg.Debug)
		if err != nil {
			return nil, err
		}
		base = append(base, WithDebug(factory))
	}

	utils.Info("Agent configured", "agent", cfg.Agent.Name, "model", model.Name, "tools", registry.Names())
	return New(provider, registry, append(base, opts...)...)
}

// loadSystemPrompt рендерит agent.system_prompt_file с уже зарегистрированными
// инструментами. Параметры генерации из файла применяются к каждому вызову.
func loadSystemPrompt(cfg *config.AppConfig, registry *tools.Registry) ([]Option, error) {
	pf, err := prompt.Load(cfg.Agent.SystemPromptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load system prompt: %w", err)
	}
	text, err := pf.Render(prompt.Data{
		AgentName: cfg.Agent.Name,
		Date:      time.Now().Format(time.DateOnly),
		Tools:     registry.Definitions(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	utils.Debug("System prompt loaded", "file", cfg.Agent.SystemPromptFile, "length", len(text))

	return []Option{
		WithSystemPrompt(text),
		WithGenerateOptions(pf.Config.GenerateOptions()...),
	}, nil
}

// NewRecorderFactory создаёт фабрику debug recorder'ов по секции debug.
//
// Трейс пишется в logs_dir; при debug.s3.enabled дополнительно в бакет.
func NewRecorderFactory(cfg config.DebugConfig) (chain.RecorderFactory, error) {
	fileSink, err := debug.NewFileSink(cfg.LogsDir)
	if err != nil {
		return nil, err
	}
	sinks := []debug.Sink{fileSink}

	if cfg.S3.Enabled {
		client, err := s3storage.New(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client for traces: %w", err)
		}
		sinks = append(sinks, debug.NewS3Sink(client, cfg.S3.Prefix))
		utils.Info("Debug traces mirrored to S3", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}

	recCfg := debug.RecorderConfig{
		IncludeToolArgs:    cfg.IncludeToolArgs,
		IncludeToolResults: cfg.IncludeToolResults,
		MaxResultSize:      cfg.MaxResultSize,
	}
	return func() *debug.Recorder {
		return debug.NewRecorder(recCfg, sinks...)
	}, nil
}
