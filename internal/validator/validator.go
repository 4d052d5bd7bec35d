package validator

import (
	"errors"
	"fmt"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/schema"
)

// Validate checks a frozen graph for broken links, unreachable nodes, nodes that
// can never finish and node write declarations outside the schema.
// It returns every problem found, in a deterministic order.
func Validate(g *domain.Graph) []*domain.ConfigurationError {
	var errs []*domain.ConfigurationError
	fail := func(node, field, format string, args ...any) {
		errs = append(errs, &domain.ConfigurationError{Node: node, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	// 1. Dangling references
	check := func(from string, to []string) {
		if from == domain.End {
			fail(from, "", "END cannot have outgoing transitions")
		} else if !g.HasNode(from) {
			fail(from, "", "transition source is not a registered node")
		}
		for _, t := range to {
			if t == domain.Start {
				fail(from, "", "transition to START is not allowed")
			} else if !g.HasNode(t) {
				fail(t, "", "missing node referenced from %q", from)
			}
		}
	}
	for _, e := range g.Edges() {
		check(e.From, []string{e.To})
	}
	for _, b := range g.Branches() {
		if len(b.Targets) == 0 {
			fail(b.From, "", "conditional edge has an empty label map")
		}
		check(b.From, b.Destinations())
	}
	for _, f := range g.FanOuts() {
		check(f.From, f.Targets)
	}

	// 2. Writes must be declared fields
	s := g.Schema()
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		for _, err := range schema.ValidationErrors(schema.ValidateFields(s, n.Writes...)) {
			var ve *schema.ValidationError
			if errors.As(err, &ve) {
				fail(id, ve.Key, "node declares a write to an undeclared field")
			}
		}
	}

	if len(g.Outgoing(domain.Start).Successors()) == 0 {
		fail(domain.Start, "", "graph has no entry point")
		return errs
	}

	// 3. Reachability from START (BFS over every transition kind)
	reached := map[string]bool{domain.Start: true}
	queue := []string{domain.Start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.Outgoing(current).Successors() {
			if !reached[next] && g.HasNode(next) {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, id := range g.NodeIDs() {
		if !reached[id] {
			fail(id, "", "node is unreachable from START")
		}
	}

	// 4. END must be reachable from every node (reverse BFS)
	reverse := make(map[string][]string)
	for _, id := range append([]string{domain.Start}, g.NodeIDs()...) {
		for _, next := range g.Outgoing(id).Successors() {
			reverse[next] = append(reverse[next], id)
		}
	}
	finishes := map[string]bool{domain.End: true}
	queue = []string{domain.End}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, prev := range reverse[current] {
			if !finishes[prev] {
				finishes[prev] = true
				queue = append(queue, prev)
			}
		}
	}
	for _, id := range g.NodeIDs() {
		if reached[id] && !finishes[id] {
			fail(id, "", "END is not reachable from node")
		}
	}

	return errs
}
