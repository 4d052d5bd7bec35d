package runtime

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/aretw0/strand/internal/channels"
	"github.com/aretw0/strand/pkg/domain"
)

// Request describes one invocation of the graph.
type Request struct {
	ThreadID string
	// Input is merged into the thread's state through the reducers before the
	// entry transitions are evaluated. A nil Input continues the pending frontier.
	Input domain.Update
	// CheckpointID selects the baseline. Empty means the thread's latest checkpoint;
	// an older checkpoint forks the thread from that point.
	CheckpointID string
	// Modes selects the stream events to emit. Ignored by Run.
	Modes []domain.StreamMode
}

// run holds the mutable bookkeeping of one invocation.
type run struct {
	e        *Engine
	threadID string
	hub      *hub
	logger   *slog.Logger
	status   domain.RunStatus

	state    domain.State
	tasks    []domain.Task
	step     int
	parentID string
	fork     string
}

func (r *run) emit(mode domain.StreamMode, step int, task domain.Task, payload any) {
	if !r.hub.wants(mode) {
		return
	}
	r.hub.publish(domain.StreamEvent{
		Mode:    mode,
		Step:    step,
		Node:    task.Node,
		TaskID:  task.ID,
		Payload: payload,
		Time:    r.e.now(),
	})
}

func (r *run) transition(status domain.RunStatus, attrs ...any) {
	r.status = status
	args := append([]any{domain.KeyThreadID, r.threadID, domain.KeyStep, r.step, "status", status}, attrs...)
	if status == domain.StatusFailed {
		r.logger.Error("run status changed", args...)
		return
	}
	r.logger.Info("run status changed", args...)
}

func (r *run) result(err error) *domain.RunResult {
	return &domain.RunResult{
		ThreadID:     r.threadID,
		Status:       r.status,
		State:        r.state.Clone(),
		Step:         r.step,
		CheckpointID: r.parentID,
		Next:         domain.NextNodes(r.tasks),
		Err:          err,
	}
}

// Run executes the graph for a thread until it completes, fails or suspends.
// A failed run returns both the result and the error.
func (e *Engine) Run(ctx context.Context, req Request) (*domain.RunResult, error) {
	return e.run(ctx, req, nil)
}

// Stream executes the graph and yields its events as they happen.
// A failed run yields a final (zero event, error) pair after the last event.
// Stopping the iteration cancels the run.
func (e *Engine) Stream(ctx context.Context, req Request) iter.Seq2[domain.StreamEvent, error] {
	return func(yield func(domain.StreamEvent, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		h := newHub(req.Modes)
		done := make(chan error, 1)
		go func() {
			_, err := e.run(ctx, req, h)
			h.close()
			done <- err
		}()

		for {
			ev, ok := h.next()
			if !ok {
				break
			}
			if !yield(ev, nil) {
				cancel()
				<-done
				return
			}
		}

		if err := <-done; err != nil {
			yield(domain.StreamEvent{}, err)
		}
	}
}

func (e *Engine) run(ctx context.Context, req Request, h *hub) (*domain.RunResult, error) {
	if req.ThreadID == "" {
		return nil, errors.New("thread id is required")
	}

	r := &run{
		e:        e,
		threadID: req.ThreadID,
		hub:      h,
		logger:   e.logger.With(domain.KeyThreadID, req.ThreadID),
		status:   domain.StatusInitialized,
	}

	var (
		result *domain.RunResult
		runErr error
	)
	err := e.sessions.WithLock(ctx, req.ThreadID, func(ctx context.Context) error {
		resumed, err := e.prepare(ctx, r, req)
		if err != nil {
			r.transition(domain.StatusFailed, "err", err)
			result, runErr = r.result(err), err
			return nil
		}
		result, runErr = e.loop(ctx, r, resumed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, runErr
}

// prepare loads the baseline and, for a new input, writes the input checkpoint.
// It reports whether the run continues a stored frontier.
func (e *Engine) prepare(ctx context.Context, r *run, req Request) (bool, error) {
	latest, err := e.store.Latest(ctx, r.threadID)
	if err != nil && !errors.Is(err, domain.ErrThreadNotFound) {
		return false, fmt.Errorf("failed to load thread: %w", err)
	}

	base := latest
	if req.CheckpointID != "" {
		base, err = e.store.Get(ctx, r.threadID, req.CheckpointID)
		if err != nil {
			return false, fmt.Errorf("failed to load checkpoint %q: %w", req.CheckpointID, err)
		}
		if latest == nil || base.ID != latest.ID {
			r.fork = base.ID
		}
	}

	r.step = domain.InitialStep - 1
	r.state = domain.State{}
	if latest != nil {
		r.step = latest.Step
	}
	if base != nil {
		r.state = base.State.Clone()
		r.parentID = base.ID
	}

	if req.Input == nil {
		if base == nil {
			return false, fmt.Errorf("thread %q: %w", r.threadID, domain.ErrNothingToResume)
		}
		pos := base.Position()
		r.tasks = pos.Tasks
		if r.fork != "" {
			// A fork continues on top of the thread's newest step.
			r.tasks = renumber(r.step+1, r.tasks)
		}
		return true, nil
	}

	// New input: merge it as if written by START, then route from START.
	step := r.step + 1
	set := channels.New(e.graph.Schema(), step, r.state)
	if err := set.Apply(&domain.Node{ID: domain.Start}, req.Input); err != nil {
		return false, err
	}
	state, _, err := set.Commit()
	if err != nil {
		return false, err
	}
	tasks, err := e.route(ctx, step, state, []string{domain.Start})
	if err != nil {
		return false, err
	}

	cp := e.checkpoint(r, step, state, tasks, domain.SourceInput, []domain.Write{
		{Node: domain.Start, TaskID: domain.TaskID(step, domain.Start, 0), Update: req.Input.Clone()},
	})
	if err := e.persist(ctx, cp); err != nil {
		return false, err
	}
	r.advance(cp)
	r.emitSnapshot(cp)
	return false, nil
}

// loop drives supersteps until the frontier is empty, an interrupt fires or a failure occurs.
func (e *Engine) loop(ctx context.Context, r *run, resumed bool) (*domain.RunResult, error) {
	r.transition(domain.StatusRunning)
	skipBefore := resumed
	executed := 0

	fail := func(err error) (*domain.RunResult, error) {
		r.transition(domain.StatusFailed, "err", err)
		return r.result(err), err
	}

	for len(r.tasks) > 0 {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("run canceled before step %d: %w", r.step+1, err))
		}
		if executed >= e.maxSteps {
			return fail(fmt.Errorf("stopped after %d supersteps with %v pending: %w", executed, domain.NextNodes(r.tasks), domain.ErrRecursionLimit))
		}
		if !skipBefore && e.interrupted(e.interruptBefore, r.tasks) {
			r.transition(domain.StatusSuspended, "before", domain.NextNodes(r.tasks))
			return r.result(nil), nil
		}
		skipBefore = false

		cp, err := e.superstep(ctx, r)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
				err = fmt.Errorf("%w (run canceled: %v)", err, ctx.Err())
			}
			return fail(err)
		}
		executed++

		if e.interrupted(e.interruptAfter, cp.Metadata.Writes) && len(r.tasks) > 0 {
			r.transition(domain.StatusSuspended, "after", domain.NextNodes(r.tasks))
			return r.result(nil), nil
		}
	}

	r.transition(domain.StatusCompleted)
	return r.result(nil), nil
}

// superstep runs one frontier, merges its writes, routes and commits the checkpoint.
// Nothing becomes visible to the run until the checkpoint is persisted.
func (e *Engine) superstep(ctx context.Context, r *run) (*domain.Checkpoint, error) {
	started := e.now()
	step := r.step + 1
	tasks := r.tasks

	updates, err := e.execute(ctx, r, step, r.state, tasks)
	if err != nil {
		return nil, err
	}

	set := channels.New(e.graph.Schema(), step, r.state)
	writes := make([]domain.Write, len(tasks))
	for i, task := range tasks {
		node, _ := e.graph.Node(task.Node)
		if err := set.Apply(node, updates[i]); err != nil {
			return nil, err
		}
		writes[i] = domain.Write{Node: task.Node, TaskID: task.ID, Update: updates[i]}
	}
	state, changed, err := set.Commit()
	if err != nil {
		return nil, err
	}

	next, err := e.route(ctx, step, state, domain.NextNodes(tasks))
	if err != nil {
		return nil, err
	}

	cp := e.checkpoint(r, step, state, next, domain.SourceLoop, writes)
	// A completed superstep is committed even if the run was canceled meanwhile.
	if err := e.persist(context.WithoutCancel(ctx), cp); err != nil {
		return nil, err
	}
	r.advance(cp)

	for i, task := range tasks {
		r.emit(domain.StreamDeltas, step, task, domain.Delta{Node: task.Node, Update: updates[i]})
	}
	r.emitSnapshot(cp)

	if e.hooks.OnSuperstep != nil {
		e.hooks.OnSuperstep(ctx, &domain.SuperstepEvent{ThreadID: r.threadID, Step: step, Tasks: len(tasks), Duration: e.elapsed(started)})
	}
	r.logger.Debug("superstep committed", domain.KeyStep, step, "tasks", len(tasks), "changed", changed, "next", cp.Next)
	return cp, nil
}

func (e *Engine) checkpoint(r *run, step int, state domain.State, tasks []domain.Task, source domain.Source, writes []domain.Write) *domain.Checkpoint {
	return &domain.Checkpoint{
		ID:       e.newID(),
		ThreadID: r.threadID,
		Step:     step,
		State:    state,
		Next:     domain.NextNodes(tasks),
		Tasks:    tasks,
		Metadata: domain.Metadata{
			Step:       step,
			Source:     source,
			Writes:     writes,
			ForkedFrom: r.fork,
		},
		CreatedAt: e.now(),
		ParentID:  r.parentID,
	}
}

func (e *Engine) persist(ctx context.Context, cp *domain.Checkpoint) error {
	started := e.now()
	err := e.store.Put(ctx, cp)
	if e.hooks.OnCheckpoint != nil {
		e.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
			ThreadID: cp.ThreadID, Step: cp.Step, CheckpointID: cp.ID, Source: cp.Metadata.Source,
			Duration: e.elapsed(started), Err: err,
		})
	}
	if err != nil {
		return &domain.PersistenceError{ThreadID: cp.ThreadID, Step: cp.Step, Cause: err}
	}
	return nil
}

// advance moves the run onto a committed checkpoint. Only the first checkpoint
// after a fork records where it was forked from.
func (r *run) advance(cp *domain.Checkpoint) {
	r.state = cp.State
	r.tasks = cp.Tasks
	r.step = cp.Step
	r.parentID = cp.ID
	r.fork = ""
}

func (r *run) emitSnapshot(cp *domain.Checkpoint) {
	r.emit(domain.StreamSnapshots, cp.Step, domain.Task{}, cp.State.Clone())
}

// interrupted reports whether any entry names a node in set.
func (e *Engine) interrupted(set map[string]bool, entries any) bool {
	if len(set) == 0 {
		return false
	}
	switch list := entries.(type) {
	case []domain.Task:
		for _, t := range list {
			if set[t.Node] {
				return true
			}
		}
	case []domain.Write:
		for _, w := range list {
			if set[w.Node] {
				return true
			}
		}
	}
	return false
}
