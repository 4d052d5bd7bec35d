/*
Package strand is a superstep graph execution engine for building agent pipelines
and automation workflows out of ordinary Go functions.

A graph is a set of named nodes that read a shared state and return partial updates.
Nodes that are triggered together run in parallel within a superstep; their updates are
merged through per-field reducers declared in a schema, and a checkpoint is written after
every superstep so that any thread can be inspected, resumed or forked later.

# Concept

  - Schema: declares the state fields and how concurrent writes merge (replace, append, custom).
  - Builder: registers nodes, static edges, conditional edges and fan-outs (pkg/dsl).
  - Runnable: the compiled graph bound to a checkpoint store.
  - Thread: an independent line of execution identified by a thread id.

# Usage

	s := schema.MustNew(schema.Replace("x").Of(schema.Int()))
	b := dsl.New(s)
	b.AddFunc("a", func(ctx context.Context, st domain.State) (domain.Update, error) {
		return domain.Update{"x": 1}, nil
	}).Entry().Go("b")
	b.AddFunc("b", func(ctx context.Context, st domain.State) (domain.Update, error) {
		return domain.Update{"x": st["x"].(int) + 1}, nil
	}).Terminal()

	graph, err := strand.Compile(b)
	if err != nil {
		log.Fatal(err)
	}
	state, err := graph.Invoke(ctx, domain.Update{"x": 0}, "thread-1")

# Streaming

Stream yields events as the run progresses. Modes select what is observed: per-node
deltas, full snapshots, tokens and progress pushed by nodes through stream.FromContext,
and node trace records.

	for ev, err := range graph.Stream(ctx, input, "thread-1", domain.StreamTokens) {
		...
	}

# Persistence

Checkpoints are kept in memory by default. Use WithStore with the file or Redis adapters
for durable threads, optionally wrapped by the encryption and PII middleware in
pkg/persistence/middleware.
*/
package strand
