package ports

import (
	"context"
	"iter"

	"github.com/aretw0/strand/pkg/domain"
)

// CheckpointStore defines the interface for persisting checkpoints.
// Checkpoints are append-only per thread; this is what enables resume, replay and forks.
type CheckpointStore interface {
	// Put appends a checkpoint to its thread.
	// Returns domain.ErrStepConflict if its step does not exceed the thread's latest step.
	Put(ctx context.Context, cp *domain.Checkpoint) error

	// Latest returns the newest checkpoint of a thread.
	// Returns domain.ErrThreadNotFound if the thread has no checkpoints.
	Latest(ctx context.Context, threadID string) (*domain.Checkpoint, error)

	// Get returns a checkpoint by id.
	// Returns domain.ErrCheckpointNotFound if it does not exist in the thread.
	Get(ctx context.Context, threadID, checkpointID string) (*domain.Checkpoint, error)

	// History yields the checkpoints of a thread newest-first.
	// The sequence is lazy and can be iterated more than once. An unknown thread yields nothing.
	History(ctx context.Context, threadID string) iter.Seq2[*domain.Checkpoint, error]

	// List returns the ids of every thread with at least one checkpoint.
	List(ctx context.Context) ([]string, error)

	// Delete removes every checkpoint of a thread. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error
}
