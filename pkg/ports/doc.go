/*
Package ports defines the driven ports (interfaces) for the Strand engine.

These interfaces decouple the scheduler from external implementations, allowing
the engine to work with various storage backends and lock providers.

# Key Interfaces

  - CheckpointStore: Appends and retrieves checkpoints keyed by thread id.
  - DistributedLocker: Serializes runs of the same thread across processes.

RunCheckpointStoreContract is a reusable test suite every CheckpointStore adapter
is expected to pass.
*/
package ports
