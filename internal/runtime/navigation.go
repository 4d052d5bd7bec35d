package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/strand/pkg/domain"
)

// route computes the next frontier from the nodes that ran in a superstep.
// Each distinct source is evaluated once, in order of first appearance, against
// the post-merge state. Plain successors are de-duplicated and ordered by
// registration; fan-out tasks follow in production order. END is dropped.
func (e *Engine) route(ctx context.Context, step int, state domain.State, sources []string) ([]domain.Task, error) {
	plain := make(map[string]bool)
	var sends []domain.Send

	for _, src := range sources {
		out := e.graph.Outgoing(src)
		if out == nil {
			continue
		}

		for _, to := range out.Edges {
			plain[to] = true
		}

		for _, b := range out.Branches {
			labels, err := callRoute(ctx, b.Route, state.Clone())
			if err != nil {
				return nil, &domain.NodeExecutionError{Node: src, Step: step, Cause: fmt.Errorf("route: %w", err)}
			}
			for _, label := range labels {
				to, ok := b.Targets[label]
				if !ok {
					return nil, &domain.ConfigurationError{Node: src, Reason: fmt.Sprintf("route returned label %q which is not in the label map", label)}
				}
				plain[to] = true
			}
		}

		for _, f := range out.FanOuts {
			produced, err := callFanOut(ctx, f.Producer, state.Clone())
			if err != nil {
				return nil, &domain.NodeExecutionError{Node: src, Step: step, Cause: fmt.Errorf("fan-out: %w", err)}
			}
			for _, s := range produced {
				if !contains(f.Targets, s.Node) || s.Node == domain.End {
					return nil, &domain.ConfigurationError{Node: src, Reason: fmt.Sprintf("fan-out produced a task for undeclared target %q", s.Node)}
				}
				sends = append(sends, s)
			}
		}
	}

	return e.frontier(step+1, plain, sends), nil
}

// frontier builds the task list of a superstep from its triggers.
func (e *Engine) frontier(step int, plain map[string]bool, sends []domain.Send) []domain.Task {
	delete(plain, domain.End)
	delete(plain, domain.Start)

	nodes := make([]string, 0, len(plain))
	for n := range plain {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return e.graph.Rank(nodes[i]) < e.graph.Rank(nodes[j])
	})

	tasks := make([]domain.Task, 0, len(nodes)+len(sends))
	for _, n := range nodes {
		tasks = append(tasks, domain.Task{ID: domain.TaskID(step, n, len(tasks)), Node: n})
	}
	for _, s := range sends {
		tasks = append(tasks, domain.Task{ID: domain.TaskID(step, s.Node, len(tasks)), Node: s.Node, Arg: s.Arg.Clone()})
	}
	return tasks
}

// renumber re-issues task ids for a frontier carried over to a new checkpoint.
func renumber(step int, tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		out[i] = domain.Task{ID: domain.TaskID(step, t.Node, i), Node: t.Node, Arg: t.Arg.Clone()}
	}
	return out
}

func callRoute(ctx context.Context, fn domain.RouteFunc, state domain.State) (labels []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, state)
}

func callFanOut(ctx context.Context, fn domain.FanOutFunc, state domain.State) (sends []domain.Send, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, state)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
