/*
Package dsl provides a builder for programmatically constructing Strand graphs.

Nodes are registered against a state schema and wired with static edges, conditional
branches and dynamic fan-outs. Compile validates the definition and freezes it into a
domain.Graph that many runs can share.

Example usage:

	package main

	import (
		"context"

		"github.com/aretw0/strand/pkg/domain"
		"github.com/aretw0/strand/pkg/dsl"
		"github.com/aretw0/strand/pkg/schema"
	)

	func main() {
		b := dsl.New(schema.MustNew(schema.Replace("x")))

		b.AddFunc("a", func(ctx context.Context, s domain.State) (domain.Update, error) {
			return domain.Update{"x": 1}, nil
		}).Entry().Go("b")

		b.AddFunc("b", func(ctx context.Context, s domain.State) (domain.Update, error) {
			return domain.Update{"x": s["x"].(int) + 1}, nil
		}).Terminal()

		graph, err := b.Compile()
		// ... pass graph to strand.Compile(...)
	}
*/
package dsl
