package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// State is the full shared state of a graph run, keyed by schema field name.
// Nodes receive a private copy; mutating it has no effect on the run.
type State map[string]any

// Update is the partial state produced by one node invocation.
// Every key must be a field declared in the graph's schema.
type Update map[string]any

// Clone returns a shallow copy of the state. Nested values are shared.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Overlay returns a copy of the state with the given values layered on top.
// It is used to build the view of a fan-out task from its payload.
func (s State) Overlay(values map[string]any) State {
	out := s.Clone()
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Decode copies the state into a typed struct using mapstructure.
// Struct fields are matched by the `mapstructure` tag or by name.
func (s State) Decode(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build state decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	return nil
}

// Keys returns the field names present in the update.
func (u Update) Keys() []string {
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a shallow copy of the update.
func (u Update) Clone() Update {
	if u == nil {
		return nil
	}
	out := make(Update, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}
