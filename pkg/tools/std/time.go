// Package std предоставляет стандартные инструменты для AI агента.
package std

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

// CurrentTimeToolName — имя инструмента по умолчанию.
const CurrentTimeToolName = "get_current_time"

// CurrentTimeTool возвращает текущее время в заданной временной зоне.
type CurrentTimeTool struct {
	description string
	now         func() time.Time
}

// NewCurrentTimeTool создаёт инструмент. Описание берётся из config.yaml,
// если задано.
func NewCurrentTimeTool(toolCfg config.ToolConfig) *CurrentTimeTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = "Returns the current date and time. Optionally takes an IANA timezone such as Europe/Moscow."
	}
	return &CurrentTimeTool{description: desc, now: time.Now}
}

// Definition возвращает определение инструмента для function calling.
func (t *CurrentTimeTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        CurrentTimeToolName,
		Description: t.description,
		Parameters: tools.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, UTC by default",
				},
			},
			"additionalProperties": false,
		},
	}
}

// Execute выполняет инструмент согласно контракту "Raw In, String Out".
func (t *CurrentTimeTool) Execute(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	loc := time.UTC
	if args.Timezone != "" {
		l, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", args.Timezone)
		}
		loc = l
	}

	now := t.now().In(loc)
	return fmt.Sprintf("%s (%s, %s)", now.Format(time.RFC3339), now.Weekday(), loc.String()), nil
}

var _ tools.Tool = (*CurrentTimeTool)(nil)
