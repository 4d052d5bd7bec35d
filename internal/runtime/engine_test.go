package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/internal/runtime"
	"github.com/aretw0/strand/internal/testutils"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/dsl"
	"github.com/aretw0/strand/pkg/schema"
)

func history(t *testing.T, e *runtime.Engine, thread string) []*domain.Checkpoint {
	t.Helper()
	var out []*domain.Checkpoint
	for cp, err := range e.GetStateHistory(context.Background(), thread) {
		require.NoError(t, err)
		out = append(out, cp)
	}
	return out
}

func sequentialIDs() runtime.EngineOption {
	var n atomic.Int64
	return runtime.WithIDGenerator(func() string {
		return fmt.Sprintf("cp-%d", n.Add(1))
	})
}

func TestEngine_Sequential(t *testing.T) {
	e := runtime.NewEngine(testutils.Sequential(t))

	res, err := e.Run(context.Background(), runtime.Request{ThreadID: "t1", Input: domain.Update{"x": 0}})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.State["x"])
	assert.Equal(t, 1, res.Step)
	assert.Empty(t, res.Next)

	cps := history(t, e, "t1")
	require.Len(t, cps, 3)
	steps := []int{cps[0].Step, cps[1].Step, cps[2].Step}
	assert.Equal(t, []int{1, 0, -1}, steps, "steps are contiguous from the input checkpoint")

	assert.Equal(t, domain.SourceInput, cps[2].Metadata.Source)
	assert.Equal(t, []string{"a"}, cps[2].Next)
	assert.Equal(t, domain.SourceLoop, cps[1].Metadata.Source)
	assert.Equal(t, cps[2].ID, cps[1].ParentID)
	assert.Equal(t, cps[1].ID, cps[0].ParentID)
	require.Len(t, cps[1].Metadata.Writes, 1)
	assert.Equal(t, "a", cps[1].Metadata.Writes[0].Node)
	assert.Equal(t, "0:a:0", cps[1].Metadata.Writes[0].TaskID)
}

func TestEngine_SecondInputContinuesThread(t *testing.T) {
	e := runtime.NewEngine(testutils.Sequential(t))
	ctx := context.Background()

	_, err := e.Run(ctx, runtime.Request{ThreadID: "t1", Input: domain.Update{"x": 0}})
	require.NoError(t, err)
	res, err := e.Run(ctx, runtime.Request{ThreadID: "t1", Input: domain.Update{"x": 5}})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Step)
	assert.Len(t, history(t, e, "t1"), 6)
}

func TestEngine_FanOutFanIn(t *testing.T) {
	g := testutils.Compile(t, testutils.FanOutBuilder(nil))
	e := runtime.NewEngine(g)

	res, err := e.Run(context.Background(), runtime.Request{ThreadID: "fan", Input: domain.Update{"items": []any{1, 2, 3}}})
	require.NoError(t, err)

	assert.Equal(t, []any{10, 20, 30}, res.State["results"])
	assert.Equal(t, 3, res.State["seen"])

	cps := history(t, e, "fan")
	// input, plan, workers, collect
	require.Len(t, cps, 4)
	planned := cps[2]
	require.Len(t, planned.Tasks, 3)
	for i, task := range planned.Tasks {
		assert.Equal(t, "worker", task.Node)
		assert.Equal(t, domain.TaskID(1, "worker", i), task.ID)
		assert.Equal(t, i+1, task.Arg["item"])
	}
	assert.Equal(t, []string{"worker"}, planned.Next)
	assert.Len(t, cps[1].Metadata.Writes, 3)
	assert.Equal(t, []string{"collect"}, cps[1].Next, "collect is scheduled once for many workers")
}

func TestEngine_ConcurrencyDoesNotChangeResult(t *testing.T) {
	// Later items finish first.
	worker := func(ctx context.Context, s domain.State) (domain.Update, error) {
		item := testutils.AsInt(s["item"])
		time.Sleep(time.Duration(4-item) * 5 * time.Millisecond)
		return domain.Update{"results": item * 10}, nil
	}

	var states []domain.State
	for _, limit := range []int{1, 0, 2} {
		e := runtime.NewEngine(testutils.Compile(t, testutils.FanOutBuilder(worker)), runtime.WithConcurrency(limit))
		res, err := e.Run(context.Background(), runtime.Request{ThreadID: "c", Input: domain.Update{"items": []any{1, 2, 3}}})
		require.NoError(t, err)
		states = append(states, res.State)
	}
	assert.Equal(t, states[0], states[1])
	assert.Equal(t, states[0], states[2])
	assert.Equal(t, []any{10, 20, 30}, states[0]["results"])
}

func TestEngine_ConditionalLoop(t *testing.T) {
	e := runtime.NewEngine(testutils.Loop(t, 3))

	res, err := e.Run(context.Background(), runtime.Request{ThreadID: "loop", Input: domain.Update{}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, "accept", res.State["verdict"])
	assert.Equal(t, []any{"draft-1", "draft-2", "draft-3"}, res.State["drafts"])
	assert.Equal(t, 5, res.Step)
}

func TestEngine_RecursionLimit(t *testing.T) {
	e := runtime.NewEngine(testutils.Loop(t, 100), runtime.WithMaxSteps(4))

	res, err := e.Run(context.Background(), runtime.Request{ThreadID: "loop", Input: domain.Update{}})
	require.ErrorIs(t, err, domain.ErrRecursionLimit)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 3, res.Step)
	assert.Equal(t, []string{"generator"}, res.Next)

	// The committed prefix is resumable with a fresh budget.
	latest, err := e.GetState(context.Background(), "loop")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Step)
}

func TestEngine_ReplayIsDeterministic(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	run := func() []*domain.Checkpoint {
		e := runtime.NewEngine(testutils.Compile(t, testutils.FanOutBuilder(nil)),
			runtime.WithClock(clock), sequentialIDs())
		_, err := e.Run(context.Background(), runtime.Request{ThreadID: "r", Input: domain.Update{"items": []any{3, 1, 2}}})
		require.NoError(t, err)
		return history(t, e, "r")
	}
	assert.Equal(t, run(), run())
}

func TestEngine_NilInput(t *testing.T) {
	e := runtime.NewEngine(testutils.Sequential(t))
	ctx := context.Background()

	_, err := e.Run(ctx, runtime.Request{ThreadID: "missing"})
	require.ErrorIs(t, err, domain.ErrNothingToResume)

	_, err = e.Run(ctx, runtime.Request{ThreadID: "t1", Input: domain.Update{"x": 0}})
	require.NoError(t, err)
	res, err := e.Run(ctx, runtime.Request{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Step)
	assert.Len(t, history(t, e, "t1"), 3, "a finished thread is not extended")
}

func TestEngine_RouteLabelMissing(t *testing.T) {
	b := dsl.New(schema.MustNew(schema.Replace("x")))
	b.AddFunc("a", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return nil, nil
	}).Entry().Branch(func(ctx context.Context, s domain.State) ([]string, error) {
		return []string{"maybe"}, nil
	}, map[string]string{"yes": domain.End})

	e := runtime.NewEngine(testutils.Compile(t, b))
	_, err := e.Run(context.Background(), runtime.Request{ThreadID: "t", Input: domain.Update{}})

	var cfg *domain.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "a", cfg.Node)
	assert.Contains(t, cfg.Reason, "maybe")
}

func TestEngine_UndeclaredWriteAtRuntime(t *testing.T) {
	b := dsl.New(schema.MustNew(schema.Replace("x")))
	b.AddFunc("a", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return domain.Update{"y": 1}, nil
	}).Entry().Terminal()

	e := runtime.NewEngine(testutils.Compile(t, b))
	_, err := e.Run(context.Background(), runtime.Request{ThreadID: "t", Input: domain.Update{}})

	var cfg *domain.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "y", cfg.Field)
}

func TestEngine_ReducerError(t *testing.T) {
	b := dsl.New(schema.MustNew(schema.Replace("x").Of(schema.Int())))
	b.AddFunc("a", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return domain.Update{"x": "not a number"}, nil
	}).Entry().Terminal()

	e := runtime.NewEngine(testutils.Compile(t, b))
	res, err := e.Run(context.Background(), runtime.Request{ThreadID: "t", Input: domain.Update{"x": 1}})

	var rerr *domain.ReducerError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "x", rerr.Field)
	assert.Equal(t, []string{"a"}, rerr.Nodes)
	assert.Equal(t, 1, res.State["x"], "failed superstep is not committed")
}

func TestEngine_NodeFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		handler domain.HandlerFunc
		opts    []dsl.NodeOption
		check   func(t *testing.T, err error)
	}{
		{
			name: "Error",
			handler: func(ctx context.Context, s domain.State) (domain.Update, error) {
				return nil, boom
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) },
		},
		{
			name: "Panic",
			handler: func(ctx context.Context, s domain.State) (domain.Update, error) {
				panic("kaboom")
			},
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), "panic: kaboom") },
		},
		{
			name: "Timeout ignoring context",
			handler: func(ctx context.Context, s domain.State) (domain.Update, error) {
				time.Sleep(time.Second)
				return domain.Update{"x": 1}, nil
			},
			opts:  []dsl.NodeOption{dsl.WithTimeout(20 * time.Millisecond)},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, context.DeadlineExceeded) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := dsl.New(schema.MustNew(schema.Replace("x")))
			b.Add("bad", tt.handler, tt.opts...).Entry().Terminal()
			e := runtime.NewEngine(testutils.Compile(t, b))

			start := time.Now()
			res, err := e.Run(context.Background(), runtime.Request{ThreadID: "t", Input: domain.Update{"x": 0}})
			require.Error(t, err)
			assert.Less(t, time.Since(start), 500*time.Millisecond)

			var nerr *domain.NodeExecutionError
			require.ErrorAs(t, err, &nerr)
			assert.Equal(t, "bad", nerr.Node)
			assert.Equal(t, 0, nerr.Step)
			tt.check(t, err)

			assert.Equal(t, domain.StatusFailed, res.Status)
			assert.Equal(t, -1, res.Step)
			assert.Equal(t, []string{"bad"}, res.Next)
		})
	}
}

func TestEngine_Cancellation(t *testing.T) {
	started := make(chan struct{})
	b := dsl.New(schema.MustNew(schema.Replace("x")))
	b.AddFunc("wait", func(ctx context.Context, s domain.State) (domain.Update, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}).Entry().Terminal()
	e := runtime.NewEngine(testutils.Compile(t, b))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res, err := e.Run(ctx, runtime.Request{ThreadID: "t", Input: domain.Update{}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StatusFailed, res.Status)

	latest, err := e.GetState(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, -1, latest.Step)
}

func TestEngine_ThreadIDRequired(t *testing.T) {
	e := runtime.NewEngine(testutils.Sequential(t))
	_, err := e.Run(context.Background(), runtime.Request{Input: domain.Update{}})
	assert.Error(t, err)
}
