// Package channels buffers the partial updates of one superstep and commits them
// through the reducer declared for each field.
package channels

import (
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/schema"
)

type contribution struct {
	node  string
	value any
}

// Set holds the per-field write buffers of a single superstep.
// It is not safe for concurrent use: writes are applied in task order by the scheduler.
type Set struct {
	schema *schema.StateSchema
	step   int
	base   domain.State
	writes map[string][]contribution
}

// New opens the buffers for a superstep over the pre-superstep state.
func New(s *schema.StateSchema, step int, base domain.State) *Set {
	return &Set{
		schema: s,
		step:   step,
		base:   base,
		writes: make(map[string][]contribution),
	}
}

// Write buffers one contribution. Writing an undeclared field is a configuration error.
func (c *Set) Write(node, field string, value any) error {
	if !c.schema.Has(field) {
		return &domain.ConfigurationError{Node: node, Field: field, Reason: "write to a field not declared in the schema"}
	}
	c.writes[field] = append(c.writes[field], contribution{node: node, value: value})
	return nil
}

// Apply buffers every field of an update, in schema declaration order.
// Nothing is buffered if any field is undeclared or outside the node's write set.
func (c *Set) Apply(node *domain.Node, u domain.Update) error {
	for field := range u {
		if !c.schema.Has(field) {
			return &domain.ConfigurationError{Node: node.ID, Field: field, Reason: "write to a field not declared in the schema"}
		}
		if len(node.Writes) > 0 && !contains(node.Writes, field) {
			return &domain.ConfigurationError{Node: node.ID, Field: field, Reason: "write to a field outside the node's declared writes"}
		}
	}
	for _, field := range c.schema.Names() {
		if v, ok := u[field]; ok {
			c.writes[field] = append(c.writes[field], contribution{node: node.ID, value: v})
		}
	}
	return nil
}

// Touched reports whether any contribution was buffered.
func (c *Set) Touched() bool {
	return len(c.writes) > 0
}

// Commit reduces every touched field and returns the new state with the names of the
// fields whose buffers were not empty. Untouched fields keep their previous value.
// The base state is never modified.
func (c *Set) Commit() (domain.State, []string, error) {
	next := c.base.Clone()
	var changed []string

	for _, field := range c.schema.Names() {
		buf, ok := c.writes[field]
		if !ok {
			continue
		}
		values := make([]any, len(buf))
		nodes := make([]string, 0, len(buf))
		for i, w := range buf {
			values[i] = w.value
			if !contains(nodes, w.node) {
				nodes = append(nodes, w.node)
			}
		}

		reduced, err := c.schema.Reduce(field, c.base[field], values)
		if err != nil {
			return nil, nil, &domain.ReducerError{Field: field, Nodes: nodes, Step: c.step, Cause: err}
		}
		next[field] = reduced
		changed = append(changed, field)
	}

	c.writes = make(map[string][]contribution)
	return next, changed, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
