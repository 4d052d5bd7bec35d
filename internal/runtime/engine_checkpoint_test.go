package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/internal/runtime"
	"github.com/aretw0/strand/internal/testutils"
	"github.com/aretw0/strand/pkg/adapters/memory"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/ports"
)

func TestEngine_InterruptBeforeAndResume(t *testing.T) {
	ctx := context.Background()
	e := runtime.NewEngine(testutils.Sequential(t), runtime.WithInterruptBefore("b"))

	res, err := e.Run(ctx, runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)
	assert.Equal(t, []string{"b"}, res.Next)
	assert.Equal(t, 1, res.State["x"])

	res, err = e.Run(ctx, runtime.Request{ThreadID: "t"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.State["x"])

	// Same history as an uninterrupted run.
	plain := runtime.NewEngine(testutils.Sequential(t))
	_, err = plain.Run(ctx, runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	require.NoError(t, err)

	got, want := history(t, e, "t"), history(t, plain, "t")
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Step, got[i].Step)
		assert.Equal(t, want[i].State, got[i].State)
		assert.Equal(t, want[i].Next, got[i].Next)
	}
}

func TestEngine_InterruptAfter(t *testing.T) {
	ctx := context.Background()
	e := runtime.NewEngine(testutils.Sequential(t), runtime.WithInterruptAfter("a", "b"))

	res, err := e.Run(ctx, runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)
	assert.Equal(t, 0, res.Step)

	// b is last: nothing left to suspend before, so the run completes.
	res, err = e.Run(ctx, runtime.Request{ThreadID: "t"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.State["x"])
}

func TestEngine_ForkFromHistory(t *testing.T) {
	ctx := context.Background()
	e := runtime.NewEngine(testutils.Sequential(t))
	_, err := e.Run(ctx, runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	require.NoError(t, err)

	cps := history(t, e, "t")
	afterA := cps[1]
	require.Equal(t, []string{"b"}, afterA.Next)

	res, err := e.Run(ctx, runtime.Request{ThreadID: "t", CheckpointID: afterA.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.State["x"])
	assert.Equal(t, 2, res.Step, "forks append after the newest step")

	cps = history(t, e, "t")
	require.Len(t, cps, 4)
	assert.Equal(t, afterA.ID, cps[0].ParentID)
	assert.Equal(t, afterA.ID, cps[0].Metadata.ForkedFrom)
	assert.Equal(t, "2:b:0", cps[0].Metadata.Writes[0].TaskID)
}

func TestEngine_ForkWithInput(t *testing.T) {
	ctx := context.Background()
	e := runtime.NewEngine(testutils.Sequential(t))
	_, err := e.Run(ctx, runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	require.NoError(t, err)
	first := history(t, e, "t")[2]

	res, err := e.Run(ctx, runtime.Request{ThreadID: "t", CheckpointID: first.ID, Input: domain.Update{"x": 7}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.State["x"])

	cps := history(t, e, "t")
	require.Len(t, cps, 6)
	assert.Equal(t, first.ID, cps[2].Metadata.ForkedFrom)
	assert.Equal(t, domain.SourceInput, cps[2].Metadata.Source)
	assert.Empty(t, cps[1].Metadata.ForkedFrom)
}

func TestEngine_ForkUnknownCheckpoint(t *testing.T) {
	e := runtime.NewEngine(testutils.Sequential(t))
	_, err := e.Run(context.Background(), runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	require.NoError(t, err)

	_, err = e.Run(context.Background(), runtime.Request{ThreadID: "t", CheckpointID: "nope"})
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestEngine_UpdateState(t *testing.T) {
	ctx := context.Background()
	e := runtime.NewEngine(testutils.Sequential(t), runtime.WithInterruptBefore("b"))

	_, err := e.UpdateState(ctx, "missing", domain.Update{"x": 1}, "")
	require.ErrorIs(t, err, domain.ErrThreadNotFound)

	_, err = e.Run(ctx, runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	require.NoError(t, err)

	t.Run("Keeps Frontier", func(t *testing.T) {
		cp, err := e.UpdateState(ctx, "t", domain.Update{"x": 40}, "")
		require.NoError(t, err)
		assert.Equal(t, domain.SourceUpdate, cp.Metadata.Source)
		assert.Equal(t, 1, cp.Step)
		assert.Equal(t, []string{"b"}, cp.Next)
		assert.Equal(t, "2:b:0", cp.Tasks[0].ID)

		res, err := e.Run(ctx, runtime.Request{ThreadID: "t"})
		require.NoError(t, err)
		assert.Equal(t, 41, res.State["x"])
	})

	t.Run("As Node", func(t *testing.T) {
		cp, err := e.UpdateState(ctx, "t", domain.Update{"x": 100}, "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, cp.Next)
		assert.Equal(t, "a", cp.Metadata.Writes[0].Node)
	})

	t.Run("Unknown Node", func(t *testing.T) {
		_, err := e.UpdateState(ctx, "t", domain.Update{"x": 1}, "ghost")
		var cfg *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfg)
	})

	t.Run("Undeclared Field", func(t *testing.T) {
		_, err := e.UpdateState(ctx, "t", domain.Update{"nope": 1}, "")
		var cfg *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfg)
	})

	t.Run("Wrong Type", func(t *testing.T) {
		_, err := e.UpdateState(ctx, "t", domain.Update{"x": "forty"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid state update")
	})
}

// failingStore rejects checkpoints from a given step on.
type failingStore struct {
	ports.CheckpointStore
	fromStep int
}

func (s *failingStore) Put(ctx context.Context, cp *domain.Checkpoint) error {
	if cp.Step >= s.fromStep {
		return errors.New("disk full")
	}
	return s.CheckpointStore.Put(ctx, cp)
}

func TestEngine_PersistenceFailure(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*domain.CheckpointEvent
	)
	store := &failingStore{CheckpointStore: memory.NewStore(), fromStep: 1}
	e := runtime.NewEngine(testutils.Sequential(t),
		runtime.WithStore(store),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnCheckpoint: func(_ context.Context, ev *domain.CheckpointEvent) {
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			},
		}))

	res, err := e.Run(context.Background(), runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Step)
	assert.Equal(t, 0, res.Step)
	assert.Equal(t, 1, res.State["x"], "uncommitted superstep is not visible")

	require.Len(t, events, 3)
	assert.NoError(t, events[1].Err)
	assert.Error(t, events[2].Err)

	latest, err := e.GetState(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, 0, latest.Step)
}

func TestEngine_SerializesRunsOfOneThread(t *testing.T) {
	e := runtime.NewEngine(testutils.Sequential(t))
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Run(context.Background(), runtime.Request{ThreadID: "shared", Input: domain.Update{"x": 0}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cps := history(t, e, "shared")
	require.Len(t, cps, 15)
	for i, cp := range cps {
		assert.Equal(t, 13-i, cp.Step)
	}
}
