package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/pkg/domain"
)

func contractCheckpoint(threadID string, step int, parentID string) *domain.Checkpoint {
	source := domain.SourceLoop
	if step == domain.InitialStep {
		source = domain.SourceInput
	}
	return &domain.Checkpoint{
		ID:       fmt.Sprintf("%s-cp%d", threadID, step+1),
		ThreadID: threadID,
		Step:     step,
		State:    domain.State{"topic": "contracts", "step": fmt.Sprint(step)},
		Next:     []string{"worker"},
		Tasks: []domain.Task{
			{ID: domain.TaskID(step+1, "worker", 0), Node: "worker", Arg: domain.Update{"item": "a"}},
			{ID: domain.TaskID(step+1, "worker", 1), Node: "worker", Arg: domain.Update{"item": "b"}},
		},
		Metadata: domain.Metadata{
			Step:   step,
			Source: source,
			Writes: []domain.Write{{Node: "planner", TaskID: domain.TaskID(step, "planner", 0), Update: domain.Update{"topic": "contracts"}}},
		},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, step+1, 0, time.UTC),
		ParentID:  parentID,
	}
}

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-thread-" + time.Now().Format("20060102150405.000000")

	t.Run("Latest Non-Existent", func(t *testing.T) {
		_, err := store.Latest(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Put and Latest", func(t *testing.T) {
		parent := ""
		for step := domain.InitialStep; step <= 1; step++ {
			cp := contractCheckpoint(threadID, step, parent)
			require.NoError(t, store.Put(ctx, cp), "Put step %d", step)
			parent = cp.ID
		}

		latest, err := store.Latest(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, 1, latest.Step)
		assert.Equal(t, threadID+"-cp1", latest.ParentID)
		assert.Equal(t, "contracts", latest.State["topic"])
		assert.Equal(t, []string{"worker"}, latest.Next)
		require.Len(t, latest.Tasks, 2)
		assert.Equal(t, "b", latest.Tasks[1].Arg["item"])
		assert.Equal(t, domain.SourceLoop, latest.Metadata.Source)
		require.Len(t, latest.Metadata.Writes, 1)
		assert.Equal(t, "planner", latest.Metadata.Writes[0].Node)
		assert.True(t, latest.CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC)))
	})

	t.Run("Step Conflict", func(t *testing.T) {
		err := store.Put(ctx, contractCheckpoint(threadID, 1, ""))
		assert.ErrorIs(t, err, domain.ErrStepConflict, "same step must be rejected")

		err = store.Put(ctx, contractCheckpoint(threadID, 0, ""))
		assert.ErrorIs(t, err, domain.ErrStepConflict, "older step must be rejected")

		latest, err := store.Latest(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, 1, latest.Step, "rejected puts must not change the thread")
	})

	t.Run("Get", func(t *testing.T) {
		cp, err := store.Get(ctx, threadID, threadID+"-cp1")
		require.NoError(t, err)
		assert.Equal(t, 0, cp.Step)

		_, err = store.Get(ctx, threadID, "missing")
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

		_, err = store.Get(ctx, "non-existent-"+threadID, "missing")
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("History Newest First", func(t *testing.T) {
		collect := func() []int {
			var steps []int
			for cp, err := range store.History(ctx, threadID) {
				require.NoError(t, err)
				steps = append(steps, cp.Step)
			}
			return steps
		}

		assert.Equal(t, []int{1, 0, -1}, collect())
		assert.Equal(t, []int{1, 0, -1}, collect(), "history must be restartable")

		count := 0
		for range store.History(ctx, threadID) {
			count++
			break
		}
		assert.Equal(t, 1, count, "history must stop when the consumer breaks")

		for cp, err := range store.History(ctx, "non-existent-"+threadID) {
			t.Fatalf("unexpected item for unknown thread: %v %v", cp, err)
		}
	})

	t.Run("List", func(t *testing.T) {
		other := threadID + "-other"
		require.NoError(t, store.Put(ctx, contractCheckpoint(other, domain.InitialStep, "")))
		defer func() { _ = store.Delete(ctx, other) }()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, threadID)
		assert.Contains(t, threads, other)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, threadID))

		_, err := store.Latest(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound, "Latest after Delete should return ErrThreadNotFound")

		require.NoError(t, store.Put(ctx, contractCheckpoint(threadID, domain.InitialStep, "")), "a deleted thread starts over")
		require.NoError(t, store.Delete(ctx, threadID))
		assert.NoError(t, store.Delete(ctx, "non-existent-"+threadID))
	})
}
