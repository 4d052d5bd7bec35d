package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/dsl"
	"github.com/aretw0/strand/pkg/registry"
	"github.com/aretw0/strand/pkg/schema"
)

var errDivideByZero = errors.New("division by zero")

// operators maps the words the agent planner understands to calculator tools.
var operators = map[string]string{
	"plus": "add", "+": "add",
	"minus": "subtract", "-": "subtract",
	"times": "multiply", "*": "multiply", "x": "multiply",
	"over": "divide", "/": "divide",
}

func number(args map[string]any, key string) (float64, error) {
	switch n := args[key].(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("argument %q must be a number, got %T", key, args[key])
}

func binary(op func(a, b float64) (float64, error)) registry.ToolFunction {
	return func(_ context.Context, args map[string]any) (any, error) {
		a, err := number(args, "a")
		if err != nil {
			return nil, err
		}
		b, err := number(args, "b")
		if err != nil {
			return nil, err
		}
		return op(a, b)
	}
}

// calculatorTools registers the arithmetic tools every agent graph has.
func calculatorTools() *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register("add", binary(func(a, b float64) (float64, error) { return a + b, nil }))
	reg.Register("subtract", binary(func(a, b float64) (float64, error) { return a - b, nil }))
	reg.Register("multiply", binary(func(a, b float64) (float64, error) { return a * b, nil }))
	reg.Register("divide", binary(func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errDivideByZero
		}
		return a / b, nil
	}))
	return reg
}

// plan is what the scripted planner reads out of the request.
type plan struct {
	start float64
	ops   []string
	args  []float64
	// tool is set for "run <tool> key=value..." requests.
	tool     string
	toolArgs map[string]any
}

// parsePlan understands "<n> (<op> <n>)..." evaluated left to right, or
// "run <tool> key=value..." for a single call to a configured tool.
func parsePlan(input string) (plan, error) {
	fields := strings.Fields(strings.ToLower(input))
	if len(fields) == 0 {
		return plan{}, errors.New("empty request")
	}
	if fields[0] == "run" {
		if len(fields) < 2 {
			return plan{}, errors.New("run needs a tool name")
		}
		p := plan{tool: fields[1], toolArgs: map[string]any{}}
		for _, kv := range strings.Fields(input)[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return plan{}, fmt.Errorf("argument %q is not key=value", kv)
			}
			p.toolArgs[k] = v
		}
		return p, nil
	}

	start, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return plan{}, fmt.Errorf("expected a number, got %q", fields[0])
	}
	p := plan{start: start}
	rest := fields[1:]
	if len(rest)%2 != 0 {
		return plan{}, fmt.Errorf("dangling operator %q", rest[len(rest)-1])
	}
	for i := 0; i < len(rest); i += 2 {
		op, ok := operators[rest[i]]
		if !ok {
			return plan{}, fmt.Errorf("unknown operator %q", rest[i])
		}
		n, err := strconv.ParseFloat(rest[i+1], 64)
		if err != nil {
			return plan{}, fmt.Errorf("expected a number, got %q", rest[i+1])
		}
		p.ops = append(p.ops, op)
		p.args = append(p.args, n)
	}
	return p, nil
}

func formatNumber(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// nextCall decides the next tool call from the results gathered so far. It
// returns the final answer when no call is left.
func (p plan) nextCall(results []registry.ToolResult) (*registry.ToolCall, string) {
	done := len(results)
	if done > 0 && results[done-1].Error != "" {
		return nil, "I could not finish: " + results[done-1].Error
	}
	id := fmt.Sprintf("call_%d", done)

	if p.tool != "" {
		if done == 0 {
			return &registry.ToolCall{ID: id, Name: p.tool, Args: p.toolArgs}, ""
		}
		return nil, formatNumber(results[0].Output)
	}

	current := any(p.start)
	if done > 0 {
		current = results[done-1].Output
	}
	if done >= len(p.ops) {
		return nil, "The answer is " + formatNumber(current) + "."
	}
	return &registry.ToolCall{ID: id, Name: p.ops[done], Args: map[string]any{"a": current, "b": p.args[done]}}, ""
}

func agentDemo(_ Model, tools *registry.Registry) *dsl.Builder {
	reg := calculatorTools()
	if tools != nil {
		for _, name := range tools.Names() {
			reg.Register(name, func(ctx context.Context, args map[string]any) (any, error) {
				return tools.Execute(ctx, name, args)
			})
		}
	}

	b := dsl.New(schema.MustNew(
		schema.Replace("input").Of(schema.String()),
		schema.Replace("tool_calls").Of(schema.Slice(schema.Map())),
		schema.Append("tool_results").Of(schema.Slice(schema.Map())),
		schema.Replace("answer").Of(schema.String()),
	))

	b.AddFunc("llm_call", func(_ context.Context, s domain.State) (domain.Update, error) {
		p, err := parsePlan(str(s, "input"))
		if err != nil {
			return domain.Update{"answer": "I did not understand: " + err.Error()}, nil
		}
		results, err := registry.DecodeResults(s["tool_results"])
		if err != nil {
			return nil, err
		}
		call, answer := p.nextCall(results)
		if call == nil {
			return domain.Update{"answer": answer}, nil
		}
		return domain.Update{"tool_calls": []any{call.Map()}}, nil
	}).Entry().Writes("tool_calls", "answer").Branch(func(_ context.Context, s domain.State) ([]string, error) {
		if calls, _ := s["tool_calls"].([]any); len(calls) > 0 {
			return []string{"tools"}, nil
		}
		return []string{"done"}, nil
	}, map[string]string{"tools": "tool_node", "done": domain.End})

	b.Add("tool_node", reg.Node("tool_calls", "tool_results")).
		Writes("tool_calls", "tool_results").Go("llm_call")

	return b
}
