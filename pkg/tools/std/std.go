package std

import (
	"fmt"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/tools"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

type toolBuilder struct {
	name  string
	build func(config.ToolConfig) tools.Tool
}

// RegisterAll регистрирует стандартные инструменты, включённые в config.yaml.
//
// Инструмент, отсутствующий в секции tools, считается включённым.
// Alias из конфига задаёт имя, под которым его увидит модель.
func RegisterAll(registry *tools.Registry, cfg *config.AppConfig) error {
	if cfg == nil {
		cfg = &config.AppConfig{}
	}

	return register(registry, cfg, []toolBuilder{
		{CurrentTimeToolName, func(tc config.ToolConfig) tools.Tool { return NewCurrentTimeTool(tc) }},
		{CalculateToolName, func(tc config.ToolConfig) tools.Tool { return NewCalculateTool(tc) }},
	})
}

func register(registry *tools.Registry, cfg *config.AppConfig, builders []toolBuilder) error {
	for _, b := range builders {
		if !cfg.ToolEnabled(b.name) {
			utils.Debug("Tool disabled in config", "tool", b.name)
			continue
		}
		tc := cfg.Tools[b.name]
		exposed := tc.ExposedName(b.name)
		if err := registry.RegisterAs(exposed, b.build(tc)); err != nil {
			return fmt.Errorf("failed to register %s: %w", b.name, err)
		}
		utils.Debug("Tool registered", "tool", b.name, "as", exposed)
	}
	return nil
}
