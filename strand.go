package strand

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/aretw0/strand/internal/runtime"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/ports"
	"github.com/aretw0/strand/pkg/session"
)

// Source is anything that compiles into a graph, such as a *dsl.Builder.
type Source interface {
	Compile() (*domain.Graph, error)
}

type compiled struct{ g *domain.Graph }

func (c compiled) Compile() (*domain.Graph, error) { return c.g, nil }

// FromGraph wraps an already compiled graph as a Source.
func FromGraph(g *domain.Graph) Source { return compiled{g: g} }

// Runnable is a compiled graph bound to an engine and a checkpoint store.
// It is safe for concurrent use; invocations of the same thread are serialized.
type Runnable struct {
	runtime     *runtime.Engine
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	runtimeOpts []runtime.EngineOption
	Name        string
}

// Option defines a functional option for configuring the Runnable.
type Option func(*Runnable)

// WithName labels the graph in logs.
func WithName(name string) Option {
	return func(r *Runnable) {
		r.Name = name
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runnable) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runnable) {
		r.hooks = r.hooks.Merge(hooks)
	}
}

// WithStore sets the checkpoint store (default: in memory).
func WithStore(store ports.CheckpointStore) Option {
	return func(r *Runnable) {
		r.runtimeOpts = append(r.runtimeOpts, runtime.WithStore(store))
	}
}

// WithSessionManager sets the thread manager, for example one with a distributed locker.
func WithSessionManager(m *session.Manager) Option {
	return func(r *Runnable) {
		r.runtimeOpts = append(r.runtimeOpts, runtime.WithSessionManager(m))
	}
}

// WithMaxSteps bounds the supersteps of a single invocation (default 25).
func WithMaxSteps(n int) Option {
	return func(r *Runnable) {
		r.runtimeOpts = append(r.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithConcurrency bounds the tasks run at once within a superstep. 1 is sequential.
func WithConcurrency(n int) Option {
	return func(r *Runnable) {
		r.runtimeOpts = append(r.runtimeOpts, runtime.WithConcurrency(n))
	}
}

// WithNodeTimeout sets the default bound of a node invocation.
func WithNodeTimeout(d time.Duration) Option {
	return func(r *Runnable) {
		r.runtimeOpts = append(r.runtimeOpts, runtime.WithNodeTimeout(d))
	}
}

// WithInterruptBefore suspends runs before any of the nodes executes.
func WithInterruptBefore(nodes ...string) Option {
	return func(r *Runnable) {
		r.runtimeOpts = append(r.runtimeOpts, runtime.WithInterruptBefore(nodes...))
	}
}

// WithInterruptAfter suspends runs after any of the nodes commits.
func WithInterruptAfter(nodes ...string) Option {
	return func(r *Runnable) {
		r.runtimeOpts = append(r.runtimeOpts, runtime.WithInterruptAfter(nodes...))
	}
}

// Compile validates the source graph and binds it to an engine.
// Configuration problems are reported together as a *domain.CompileError.
func Compile(src Source, opts ...Option) (*Runnable, error) {
	if src == nil {
		return nil, errors.New("graph source is required")
	}
	g, err := src.Compile()
	if err != nil {
		return nil, err
	}

	r := &Runnable{}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if r.Name != "" {
		r.logger = r.logger.With("graph", r.Name)
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(r.logger),
		runtime.WithLifecycleHooks(r.hooks),
	}
	runtimeOpts = append(runtimeOpts, r.runtimeOpts...)
	r.runtime = runtime.NewEngine(g, runtimeOpts...)
	return r, nil
}

// RunOption tunes a single invocation.
type RunOption func(*runtime.Request)

// FromCheckpoint starts the invocation from a historical checkpoint, forking the thread.
func FromCheckpoint(id string) RunOption {
	return func(req *runtime.Request) {
		req.CheckpointID = id
	}
}

func request(threadID string, input domain.Update, opts []RunOption) runtime.Request {
	req := runtime.Request{ThreadID: threadID, Input: input}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Invoke runs the graph to completion (or suspension) and returns the final state.
// A nil input continues the thread's pending frontier.
func (r *Runnable) Invoke(ctx context.Context, input domain.Update, threadID string, opts ...RunOption) (domain.State, error) {
	res, err := r.Run(ctx, input, threadID, opts...)
	if err != nil {
		return nil, err
	}
	return res.State, nil
}

// Run is Invoke returning the full result: status, step and pending frontier.
// A failed run returns both the result and the error.
func (r *Runnable) Run(ctx context.Context, input domain.Update, threadID string, opts ...RunOption) (*domain.RunResult, error) {
	return r.runtime.Run(ctx, request(threadID, input, opts))
}

// Stream runs the graph and yields its events in the order they happen.
// With no modes, full-state snapshots are emitted after each superstep.
// A failed run yields one final (zero, err) pair. Breaking out cancels the run.
func (r *Runnable) Stream(ctx context.Context, input domain.Update, threadID string, modes ...domain.StreamMode) iter.Seq2[domain.StreamEvent, error] {
	req := request(threadID, input, nil)
	req.Modes = modes
	return r.runtime.Stream(ctx, req)
}

// StreamFrom is Stream with invocation options.
func (r *Runnable) StreamFrom(ctx context.Context, input domain.Update, threadID string, modes []domain.StreamMode, opts ...RunOption) iter.Seq2[domain.StreamEvent, error] {
	req := request(threadID, input, opts)
	req.Modes = modes
	return r.runtime.Stream(ctx, req)
}

// Resume continues a thread from a checkpoint (latest when checkpointID is empty)
// and returns the resulting state.
func (r *Runnable) Resume(ctx context.Context, threadID, checkpointID string) (domain.State, error) {
	return r.Invoke(ctx, nil, threadID, FromCheckpoint(checkpointID))
}

// GetState returns the latest checkpoint of a thread.
func (r *Runnable) GetState(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return r.runtime.GetState(ctx, threadID)
}

// GetStateHistory iterates a thread's checkpoints, newest first.
func (r *Runnable) GetStateHistory(ctx context.Context, threadID string) iter.Seq2[*domain.Checkpoint, error] {
	return r.runtime.GetStateHistory(ctx, threadID)
}

// UpdateState merges an update into a thread as if asNode had written it.
// An empty asNode keeps the pending frontier.
func (r *Runnable) UpdateState(ctx context.Context, threadID string, update domain.Update, asNode string) (*domain.Checkpoint, error) {
	return r.runtime.UpdateState(ctx, threadID, update, asNode)
}

// Threads lists the ids of every stored thread.
func (r *Runnable) Threads(ctx context.Context) ([]string, error) {
	return r.runtime.Sessions().List(ctx)
}

// DeleteThread removes every checkpoint of a thread.
func (r *Runnable) DeleteThread(ctx context.Context, threadID string) error {
	return r.runtime.Sessions().Delete(ctx, threadID)
}

// Graph returns the compiled graph definition for visualization or introspection.
func (r *Runnable) Graph() *domain.Graph {
	return r.runtime.Graph()
}
