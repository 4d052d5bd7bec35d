package memory

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/aretw0/strand/pkg/domain"
)

type thread struct {
	checkpoints []*domain.Checkpoint
	byID        map[string]int
}

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use. Values are preserved without serialization.
type Store struct {
	data map[string]*thread
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*thread),
	}
}

// Put appends a copy of the checkpoint to its thread.
func (s *Store) Put(ctx context.Context, cp *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[cp.ThreadID]
	if !ok {
		t = &thread{byID: make(map[string]int)}
		s.data[cp.ThreadID] = t
	}
	if n := len(t.checkpoints); n > 0 && t.checkpoints[n-1].Step >= cp.Step {
		return domain.ErrStepConflict
	}

	t.byID[cp.ID] = len(t.checkpoints)
	t.checkpoints = append(t.checkpoints, clone(cp))
	return nil
}

// Latest returns a copy of the newest checkpoint of a thread.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[threadID]
	if !ok || len(t.checkpoints) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return clone(t.checkpoints[len(t.checkpoints)-1]), nil
}

// Get returns a copy of a checkpoint by id.
func (s *Store) Get(ctx context.Context, threadID, checkpointID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[threadID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	i, ok := t.byID[checkpointID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return clone(t.checkpoints[i]), nil
}

// History yields the checkpoints of a thread newest-first.
// Each iteration reads a snapshot of the thread taken when it starts.
func (s *Store) History(ctx context.Context, threadID string) iter.Seq2[*domain.Checkpoint, error] {
	return func(yield func(*domain.Checkpoint, error) bool) {
		s.mu.RLock()
		var list []*domain.Checkpoint
		if t, ok := s.data[threadID]; ok {
			list = append(list, t.checkpoints...)
		}
		s.mu.RUnlock()

		for i := len(list) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(clone(list[i]), nil) {
				return
			}
		}
	}
}

// List returns all thread ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, threadID)
	return nil
}

// clone copies the maps and slices of a checkpoint so callers cannot mutate stored data.
// Field values themselves are shared.
func clone(cp *domain.Checkpoint) *domain.Checkpoint {
	out := *cp
	out.State = cp.State.Clone()
	out.Next = append([]string(nil), cp.Next...)
	if cp.Tasks != nil {
		out.Tasks = make([]domain.Task, len(cp.Tasks))
		for i, t := range cp.Tasks {
			out.Tasks[i] = domain.Task{ID: t.ID, Node: t.Node, Arg: t.Arg.Clone()}
		}
	}
	if cp.Metadata.Writes != nil {
		out.Metadata.Writes = make([]domain.Write, len(cp.Metadata.Writes))
		for i, w := range cp.Metadata.Writes {
			out.Metadata.Writes[i] = domain.Write{Node: w.Node, TaskID: w.TaskID, Update: w.Update.Clone()}
		}
	}
	return &out
}
