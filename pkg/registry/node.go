package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/strand/pkg/domain"
)

// ToolCall is a request to run one tool, typically produced by a model node.
type ToolCall struct {
	ID   string         `json:"id" mapstructure:"id"`
	Name string         `json:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" mapstructure:"args"`
}

// ToolResult is the outcome of a ToolCall. Tool failures are reported in Error
// so the model can react to them.
type ToolResult struct {
	ID     string `json:"id" mapstructure:"id"`
	Name   string `json:"name" mapstructure:"name"`
	Output any    `json:"output,omitempty" mapstructure:"output"`
	Error  string `json:"error,omitempty" mapstructure:"error"`
}

// Map returns the result in the shape it has after a checkpoint round trip.
func (r ToolResult) Map() map[string]any {
	m := map[string]any{"id": r.ID, "name": r.Name}
	if r.Output != nil {
		m["output"] = r.Output
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// Map returns the call in the shape it has after a checkpoint round trip.
func (c ToolCall) Map() map[string]any {
	m := map[string]any{"id": c.ID, "name": c.Name}
	if c.Args != nil {
		m["args"] = c.Args
	}
	return m
}

// DecodeCalls reads tool calls from a state value. It accepts []ToolCall and the
// []any of maps a JSON store hands back.
func DecodeCalls(v any) ([]ToolCall, error) {
	switch calls := v.(type) {
	case nil:
		return nil, nil
	case []ToolCall:
		return calls, nil
	}
	var out []ToolCall
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, fmt.Errorf("invalid tool calls: %w", err)
	}
	return out, nil
}

// DecodeResults is DecodeCalls for results.
func DecodeResults(v any) ([]ToolResult, error) {
	if v == nil {
		return nil, nil
	}
	var out []ToolResult
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, fmt.Errorf("invalid tool results: %w", err)
	}
	return out, nil
}

// ExecuteAll runs calls in order. A tool error is recorded on its result;
// only context cancellation aborts the batch.
func (r *Registry) ExecuteAll(ctx context.Context, calls []ToolCall) ([]ToolResult, error) {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := ToolResult{ID: call.ID, Name: call.Name}
		out, err := r.Execute(ctx, call.Name, call.Args)
		switch {
		case err == nil:
			res.Output = out
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return nil, err
			}
			res.Error = err.Error()
		default:
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// Node returns a graph node that executes the calls held in callsField, appends
// their results to resultsField and clears callsField. The node must be allowed
// to write both fields.
func (r *Registry) Node(callsField, resultsField string) domain.Handler {
	return domain.HandlerFunc(func(ctx context.Context, state domain.State) (domain.Update, error) {
		calls, err := DecodeCalls(state[callsField])
		if err != nil {
			return nil, err
		}
		results, err := r.ExecuteAll(ctx, calls)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(results))
		for i, res := range results {
			out[i] = res.Map()
		}
		return domain.Update{resultsField: out, callsField: []any{}}, nil
	})
}
