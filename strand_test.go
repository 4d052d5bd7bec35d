package strand_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand"
	"github.com/aretw0/strand/internal/testutils"
	"github.com/aretw0/strand/pkg/adapters/file"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/dsl"
	"github.com/aretw0/strand/pkg/schema"
)

func TestCompile_ReportsConfigurationErrors(t *testing.T) {
	b := dsl.New(schema.MustNew(schema.Replace("x")))
	b.AddFunc("a", func(ctx context.Context, s domain.State) (domain.Update, error) { return nil, nil }).Entry().Go("missing")

	_, err := strand.Compile(b)
	var cerr *domain.CompileError
	require.ErrorAs(t, err, &cerr)

	var cfg *domain.ConfigurationError
	assert.True(t, errors.As(err, &cfg))

	_, err = strand.Compile(nil)
	assert.Error(t, err)
}

func TestRunnable_Lifecycle(t *testing.T) {
	ctx := context.Background()
	graph, err := strand.Compile(strand.FromGraph(testutils.Sequential(t)),
		strand.WithName("seq"),
		strand.WithInterruptBefore("b"),
	)
	require.NoError(t, err)

	res, err := graph.Run(ctx, domain.Update{"x": 0}, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)

	state, err := graph.Resume(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, state["x"])

	cp, err := graph.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, cp.Done())

	var steps []int
	for cp, err := range graph.GetStateHistory(ctx, "t1") {
		require.NoError(t, err)
		steps = append(steps, cp.Step)
	}
	assert.Equal(t, []int{1, 0, -1}, steps)

	_, err = graph.UpdateState(ctx, "t1", domain.Update{"x": 9}, "")
	require.NoError(t, err)

	threads, err := graph.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, threads)

	require.NoError(t, graph.DeleteThread(ctx, "t1"))
	_, err = graph.GetState(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestRunnable_ResumeAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := strand.Compile(strand.FromGraph(testutils.Loop(t, 3)),
		strand.WithStore(file.New(dir)),
		strand.WithInterruptAfter("evaluator"),
	)
	require.NoError(t, err)

	res, err := first.Run(ctx, domain.Update{}, "durable")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)

	// A new engine over the same directory picks up the frontier.
	second, err := strand.Compile(strand.FromGraph(testutils.Loop(t, 3)),
		strand.WithStore(file.New(dir)),
	)
	require.NoError(t, err)

	state, err := second.Invoke(ctx, nil, "durable")
	require.NoError(t, err)
	assert.Equal(t, "accept", state["verdict"])
	assert.Len(t, state["drafts"], 3)

	uninterrupted, err := second.Invoke(ctx, domain.Update{}, "reference")
	require.NoError(t, err)
	assert.Equal(t, uninterrupted, state)
}

func TestRunnable_ForkFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	graph, err := strand.Compile(strand.FromGraph(testutils.Loop(t, 2)))
	require.NoError(t, err)

	_, err = graph.Invoke(ctx, domain.Update{}, "t")
	require.NoError(t, err)

	var first *domain.Checkpoint
	for cp, err := range graph.GetStateHistory(ctx, "t") {
		require.NoError(t, err)
		if cp.Step == 0 {
			first = cp
		}
	}
	require.NotNil(t, first)

	res, err := graph.Run(ctx, nil, "t", strand.FromCheckpoint(first.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	uninterrupted, err := graph.Invoke(ctx, domain.Update{}, "reference")
	require.NoError(t, err)
	assert.Equal(t, uninterrupted, res.State)

	latest, err := graph.GetState(ctx, "t")
	require.NoError(t, err)
	assert.Greater(t, latest.Step, 3)
}

func TestRunnable_InvokeFailure(t *testing.T) {
	graph, err := strand.Compile(strand.FromGraph(testutils.Loop(t, 100)), strand.WithMaxSteps(3))
	require.NoError(t, err)

	_, err = graph.Invoke(context.Background(), domain.Update{}, "t")
	assert.ErrorIs(t, err, domain.ErrRecursionLimit)
}

func TestRunnable_StreamDefaultsToSnapshots(t *testing.T) {
	graph, err := strand.Compile(strand.FromGraph(testutils.Sequential(t)))
	require.NoError(t, err)

	var modes []domain.StreamMode
	for ev, err := range graph.Stream(context.Background(), domain.Update{"x": 0}, "t") {
		require.NoError(t, err)
		modes = append(modes, ev.Mode)
	}
	assert.Equal(t, []domain.StreamMode{domain.StreamSnapshots, domain.StreamSnapshots, domain.StreamSnapshots}, modes)
}
