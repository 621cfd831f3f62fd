package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"

	"agentforge/chat-api/internal/domain/tool"
)

const maxExpressionLen = 512

// CalculatorArgs are the arguments of the calculator tool.
type CalculatorArgs struct {
	Expression string `json:"expression" jsonschema:"description=Arithmetic expression such as (2+3)*4 or sqrt(16)" validate:"notblank"`
}

// CalculatorResult is returned to the model.
type CalculatorResult struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

var mathEnv = map[string]any{
	"pi":    math.Pi,
	"e":     math.E,
	"sqrt":  math.Sqrt,
	"pow":   math.Pow,
	"log":   math.Log,
	"log10": math.Log10,
	"exp":   math.Exp,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
}

// Calculator evaluates math expressions.
type Calculator struct{}

// Definition implements tool.Tool.
func (Calculator) Definition() tool.Definition {
	return tool.Definition{
		Name:        "calculator",
		Description: "Evaluate a mathematical expression and return the numeric result.",
		Parameters:  tool.SchemaFor(CalculatorArgs{}),
	}
}

// Execute implements tool.Tool.
func (Calculator) Execute(_ context.Context, _ tool.Env, raw json.RawMessage) (any, error) {
	args, err := decodeArgs[CalculatorArgs](raw)
	if err != nil {
		return nil, err
	}
	result, err := Evaluate(args.Expression)
	if err != nil {
		return nil, err
	}
	return CalculatorResult{Expression: strings.TrimSpace(args.Expression), Result: result}, nil
}

// Evaluate computes a numeric expression.
func Evaluate(expression string) (float64, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return 0, errors.New("expression is required")
	}
	if len(expression) > maxExpressionLen {
		return 0, fmt.Errorf("expression longer than %d characters", maxExpressionLen)
	}

	program, err := expr.Compile(expression, expr.Env(mathEnv))
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	out, err := expr.Run(program, mathEnv)
	if err != nil {
		return 0, fmt.Errorf("evaluate expression: %w", err)
	}

	var f float64
	switch v := out.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, fmt.Errorf("expression did not produce a number (got %T)", out)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("expression result is not a finite number")
	}
	return f, nil
}
