package std

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"

	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/tools"
)

// CalculateToolName — имя инструмента по умолчанию.
const CalculateToolName = "calculate"

// ErrDivisionByZero — деление на ноль в выражении.
var ErrDivisionByZero = errors.New("division by zero")

// CalculateTool вычисляет арифметические выражения.
//
// Поддерживает + - * / %, скобки, унарный минус, ^ как степень
// и функции sqrt, abs, pow, min, max, round, floor, ceil.
type CalculateTool struct {
	description string
}

// NewCalculateTool создаёт калькулятор.
func NewCalculateTool(toolCfg config.ToolConfig) *CalculateTool {
	desc := toolCfg.Description
	if desc == "" {
		desc = "Evaluates an arithmetic expression, e.g. (2 + 3) * 4 or sqrt(16) ^ 2."
	}
	return &CalculateTool{description: desc}
}

// Definition возвращает определение инструмента для function calling.
func (t *CalculateTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        CalculateToolName,
		Description: t.description,
		Parameters: tools.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic expression to evaluate",
				},
			},
			"required":             []any{"expression"},
			"additionalProperties": false,
		},
	}
}

// Execute вычисляет выражение и возвращает число строкой.
func (t *CalculateTool) Execute(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	v, err := Evaluate(args.Expression)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

// calcEnv — единственные имена, доступные выражению.
var calcEnv = map[string]any{
	"pi": math.Pi,
	"e":  math.E,
}

// Evaluate вычисляет арифметическое выражение через expr.
//
// Встроенные функции expr отключены: модель видит только арифметику,
// pi, e и функции из calcFunctions. Операторы / и % заменяются вызовами
// div/mod, чтобы деление на ноль было ошибкой, а не Inf.
func Evaluate(input string) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, errors.New("empty expression")
	}

	opts := []expr.Option{
		expr.Env(calcEnv),
		expr.AsFloat64(),
		expr.DisableAllBuiltins(),
		expr.Patch(checkedDivision{}),
	}
	for name, fn := range calcFunctions {
		opts = append(opts, expr.Function(name, fn))
	}

	program, err := expr.Compile(input, opts...)
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	out, err := expr.Run(program, calcEnv)
	if err != nil {
		return 0, err
	}

	v, ok := out.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expression %q is not a finite number", input)
	}
	return v, nil
}

// checkedDivision переписывает a / b и a % b в div(a, b) и mod(a, b).
type checkedDivision struct{}

func (checkedDivision) Visit(node *ast.Node) {
	bin, ok := (*node).(*ast.BinaryNode)
	if !ok {
		return
	}
	var fn string
	switch bin.Operator {
	case "/":
		fn = "div"
	case "%":
		fn = "mod"
	default:
		return
	}
	ast.Patch(node, &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: fn},
		Arguments: []ast.Node{bin.Left, bin.Right},
	})
}

type calcFunc = func(params ...any) (any, error)

var calcFunctions = map[string]calcFunc{
	"div": binary("div", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}),
	"mod": binary("mod", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Mod(a, b), nil
	}),
	"sqrt": unary("sqrt", func(x float64) (float64, error) {
		if x < 0 {
			return 0, errors.New("sqrt of negative number")
		}
		return math.Sqrt(x), nil
	}),
	"abs":   unary("abs", plain(math.Abs)),
	"round": unary("round", plain(math.Round)),
	"floor": unary("floor", plain(math.Floor)),
	"ceil":  unary("ceil", plain(math.Ceil)),
	"pow":   binary("pow", plain2(math.Pow)),
	"min":   binary("min", plain2(math.Min)),
	"max":   binary("max", plain2(math.Max)),
}

func plain(f func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) { return f(x), nil }
}

func plain2(f func(float64, float64) float64) func(float64, float64) (float64, error) {
	return func(a, b float64) (float64, error) { return f(a, b), nil }
}

func unary(name string, f func(float64) (float64, error)) calcFunc {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(params))
		}
		x, err := toFloat(name, params[0])
		if err != nil {
			return nil, err
		}
		return f(x)
	}
}

func binary(name string, f func(float64, float64) (float64, error)) calcFunc {
	return func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("%s expects 2 arguments, got %d", name, len(params))
		}
		a, err := toFloat(name, params[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(name, params[1])
		if err != nil {
			return nil, err
		}
		return f(a, b)
	}
}

func toFloat(name string, v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("%s: argument %v is not a number", name, v)
}

var _ tools.Tool = (*CalculateTool)(nil)
