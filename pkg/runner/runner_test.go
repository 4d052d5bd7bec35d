package runner_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand"
	"github.com/aretw0/strand/internal/testutils"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/runner"
)

func compile(t *testing.T, g *domain.Graph, opts ...strand.Option) *strand.Runnable {
	t.Helper()
	r, err := strand.Compile(strand.FromGraph(g), opts...)
	require.NoError(t, err)
	return r
}

func TestRunner_Completes(t *testing.T) {
	var out bytes.Buffer
	r := runner.NewRunner(runner.WithHandler(runner.NewTextHandler(strings.NewReader(""), &out)))

	res, err := r.Run(context.Background(), compile(t, testutils.Sequential(t)), "t", domain.Update{"x": 0})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.State["x"])

	assert.Contains(t, out.String(), "[0] a: x=1")
	assert.Contains(t, out.String(), "[1] b: x=2")
	assert.Contains(t, out.String(), "Final state")
}

func TestRunner_ConfirmationResumes(t *testing.T) {
	var out bytes.Buffer
	h := runner.NewTextHandler(strings.NewReader("y\n"), &out)
	r := runner.NewRunner(runner.WithHandler(h))

	graph := compile(t, testutils.Sequential(t), strand.WithInterruptBefore("b"))
	res, err := r.Run(context.Background(), graph, "t", domain.Update{"x": 0})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Contains(t, out.String(), "Continue? [y/N]")
}

func TestRunner_ConfirmationDenied(t *testing.T) {
	h := runner.NewTextHandler(strings.NewReader("no\n"), &bytes.Buffer{})
	r := runner.NewRunner(runner.WithHandler(h))

	graph := compile(t, testutils.Sequential(t), strand.WithInterruptBefore("b"))
	res, err := r.Run(context.Background(), graph, "t", domain.Update{"x": 0})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)
	assert.Equal(t, []string{"b"}, res.Next)
}

func TestRunner_EOFLeavesSuspended(t *testing.T) {
	h := runner.NewTextHandler(strings.NewReader(""), &bytes.Buffer{})
	r := runner.NewRunner(runner.WithHandler(h))

	graph := compile(t, testutils.Sequential(t), strand.WithInterruptBefore("b"))
	res, err := r.Run(context.Background(), graph, "t", domain.Update{"x": 0})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)
}

func TestRunner_HeadlessJSON(t *testing.T) {
	var out bytes.Buffer
	r := runner.NewRunner(
		runner.WithHandler(runner.NewJSONHandler(strings.NewReader(""), &out)),
		runner.WithHeadless(true),
		runner.WithModes(domain.StreamSnapshots),
	)

	graph := compile(t, testutils.Loop(t, 3), strand.WithInterruptAfter("evaluator"))
	res, err := r.Run(context.Background(), graph, "t", domain.Update{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	results := 0
	for _, l := range lines {
		if strings.Contains(l, `"type":"result"`) {
			results++
		}
	}
	assert.Equal(t, 3, results, "two suspensions and the completion")
}

func TestRunner_Failure(t *testing.T) {
	var out bytes.Buffer
	r := runner.NewRunner(runner.WithHandler(runner.NewTextHandler(strings.NewReader(""), &out)))

	graph := compile(t, testutils.Loop(t, 100), strand.WithMaxSteps(2))
	res, err := r.Run(context.Background(), graph, "t", domain.Update{})
	require.ErrorIs(t, err, domain.ErrRecursionLimit)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 1, res.Step)
	assert.Contains(t, out.String(), "[System] failed at step 1")
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	res := &domain.RunResult{ThreadID: "t", Next: []string{"b"}}

	ok, err := runner.AutoApprove()(ctx, res)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = runner.DenyAll()(ctx, res)
	require.NoError(t, err)
	assert.False(t, ok)

	limited := runner.MaxResumes(2, runner.AutoApprove())
	for _, want := range []bool{true, true, false} {
		ok, err := limited(ctx, res)
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
}
