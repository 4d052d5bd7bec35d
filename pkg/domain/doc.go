/*
Package domain contains the core domain models of the Strand engine.

It defines the compiled graph, the shared state, checkpoints, stream events and
the typed errors every other package speaks. This package is kept pure and free
of I/O or persistence concerns.

# Key Entities

  - Graph: An immutable set of nodes, static edges, conditional branches and fan-outs.
  - State / Update: The shared state of a run and the partial writes nodes return.
  - Checkpoint: A durable snapshot of state plus the pending frontier of tasks.
  - StreamEvent: One tagged item observed while a run is in progress.
*/
package domain
