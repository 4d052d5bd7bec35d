package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/stream"
)

// execute runs every task of a superstep against a read-only view of state.
// Tasks run in parallel up to the concurrency limit; results are returned in task
// order so that merging does not depend on completion order.
func (e *Engine) execute(ctx context.Context, r *run, step int, state domain.State, tasks []domain.Task) ([]domain.Update, error) {
	results := make([]domain.Update, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, task := range tasks {
		g.Go(func() error {
			u, err := e.invoke(gctx, r, step, task, state)
			if err != nil {
				return err
			}
			results[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// invoke runs one task under its node timeout, with panics turned into errors.
func (e *Engine) invoke(ctx context.Context, r *run, step int, task domain.Task, state domain.State) (domain.Update, error) {
	node, ok := e.graph.Node(task.Node)
	if !ok {
		return nil, &domain.ConfigurationError{Node: task.Node, Reason: "scheduled node is not registered"}
	}

	var view domain.State
	if len(task.Arg) > 0 {
		view = state.Overlay(task.Arg)
	} else {
		view = state.Clone()
	}

	timeout := node.Timeout
	if timeout == 0 {
		timeout = e.nodeTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	w := stream.NewTaskWriter(func(mode domain.StreamMode, payload any) {
		r.emit(mode, step, task, payload)
	})
	defer w.Close()
	ctx = stream.WithWriter(ctx, w)

	start := e.now()
	ev := &domain.NodeEvent{ThreadID: r.threadID, Step: step, Node: task.Node, TaskID: task.ID}
	if e.hooks.OnNodeStart != nil {
		e.hooks.OnNodeStart(ctx, ev)
	}
	if r.hub.wants(domain.StreamTrace) {
		// The handler owns view, so the record gets its own copy.
		r.emit(domain.StreamTrace, step, task, domain.TraceEvent{
			Kind: domain.TraceNodeStart, Step: step, Node: task.Node, TaskID: task.ID, Time: start, Input: view.Clone(),
		})
	}
	e.logger.Debug("node started", domain.KeyThreadID, r.threadID, domain.KeyStep, step, domain.KeyNode, task.Node, domain.KeyTaskID, task.ID)

	update, err := call(ctx, node.Handler, view)
	if err != nil {
		if timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = fmt.Errorf("node timed out after %s: %w", timeout, err)
		}
		err = &domain.NodeExecutionError{Node: task.Node, TaskID: task.ID, Step: step, Cause: err}
	}

	end := e.now()
	ev = &domain.NodeEvent{ThreadID: r.threadID, Step: step, Node: task.Node, TaskID: task.ID, Duration: end.Sub(start), Err: err}
	if e.hooks.OnNodeEnd != nil {
		e.hooks.OnNodeEnd(ctx, ev)
	}

	trace := domain.TraceEvent{Kind: domain.TraceNodeEnd, Step: step, Node: task.Node, TaskID: task.ID, Time: end, Duration: end.Sub(start), Output: update}
	if err != nil {
		trace.Kind = domain.TraceNodeError
		trace.Output = nil
		trace.Err = err.Error()
		e.logger.Debug("node failed", domain.KeyThreadID, r.threadID, domain.KeyStep, step, domain.KeyNode, task.Node, "err", err)
	}
	r.emit(domain.StreamTrace, step, task, trace)

	if err != nil {
		return nil, err
	}
	return update, nil
}

// call runs the handler in its own goroutine so that a body ignoring ctx cannot
// hold the superstep past its deadline.
func call(ctx context.Context, h domain.Handler, view domain.State) (domain.Update, error) {
	type outcome struct {
		update domain.Update
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("panic: %v\n%s", rec, debug.Stack())}
			}
		}()
		u, err := h.Run(ctx, view)
		done <- outcome{update: u, err: err}
	}()

	select {
	case out := <-done:
		return out.update, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// elapsed is a small helper for hook durations.
func (e *Engine) elapsed(since time.Time) time.Duration {
	return e.now().Sub(since)
}
