package runtime

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/strand/pkg/adapters/memory"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/ports"
	"github.com/aretw0/strand/pkg/session"
)

// DefaultMaxSteps bounds the supersteps of one invocation unless overridden.
const DefaultMaxSteps = 25

// Engine is the superstep scheduler for one compiled graph.
// It is safe for concurrent use; runs of the same thread are serialized.
type Engine struct {
	graph    *domain.Graph
	sessions *session.Manager
	store    ports.CheckpointStore
	logger   *slog.Logger
	hooks    domain.LifecycleHooks

	maxSteps        int
	concurrency     int
	nodeTimeout     time.Duration
	interruptBefore map[string]bool
	interruptAfter  map[string]bool

	now   func() time.Time
	newID func() string
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithStore sets the checkpoint store. Ignored when WithSessionManager is also given.
func WithStore(store ports.CheckpointStore) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithSessionManager sets the thread manager (and thereby the store).
func WithSessionManager(m *session.Manager) EngineOption {
	return func(e *Engine) {
		e.sessions = m
	}
}

// WithMaxSteps bounds the number of supersteps one invocation may run.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithConcurrency bounds how many tasks of a superstep run at once.
// 1 runs every superstep sequentially; 0 means unbounded.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.concurrency = n
		}
	}
}

// WithNodeTimeout sets the default bound for a single node invocation.
func WithNodeTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.nodeTimeout = d
	}
}

// WithInterruptBefore suspends a run before any of the nodes is executed.
func WithInterruptBefore(nodes ...string) EngineOption {
	return func(e *Engine) {
		for _, n := range nodes {
			e.interruptBefore[n] = true
		}
	}
}

// WithInterruptAfter suspends a run after any of the nodes has been committed.
func WithInterruptAfter(nodes ...string) EngineOption {
	return func(e *Engine) {
		for _, n := range nodes {
			e.interruptAfter[n] = true
		}
	}
}

// WithClock replaces the time source used for events and checkpoints.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator replaces the checkpoint id generator.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates an engine for a compiled graph.
// Without a store, checkpoints are kept in memory.
func NewEngine(g *domain.Graph, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:           g,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSteps:        DefaultMaxSteps,
		interruptBefore: make(map[string]bool),
		interruptAfter:  make(map[string]bool),
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.sessions == nil {
		if e.store == nil {
			e.store = memory.NewStore()
		}
		e.sessions = session.NewManager(e.store, session.WithLogger(e.logger))
	}
	e.store = e.sessions.Store()
	return e
}

// Graph returns the compiled graph the engine runs.
func (e *Engine) Graph() *domain.Graph { return e.graph }

// Sessions returns the thread manager.
func (e *Engine) Sessions() *session.Manager { return e.sessions }
