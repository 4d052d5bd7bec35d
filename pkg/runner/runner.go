package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/strand"
	"github.com/aretw0/strand/pkg/domain"
)

// Runner drives a thread of a compiled graph and presents it through an EventHandler.
type Runner struct {
	// Handler presents events. If nil, a TextHandler on stdio is used.
	Handler EventHandler

	// Policy decides whether suspended runs continue.
	// If nil, headless runners auto-approve and interactive ones ask.
	Policy ApprovalPolicy

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	Modes    []domain.StreamMode
	Headless bool
	Signals  bool
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Modes:  []domain.StreamMode{domain.StreamDeltas, domain.StreamTokens},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run streams one invocation of the thread and keeps resuming it while the
// policy approves suspensions. It returns the last result.
func (r *Runner) Run(ctx context.Context, graph *strand.Runnable, threadID string, input domain.Update) (*domain.RunResult, error) {
	handler := r.resolveHandler()
	policy := r.resolvePolicy(handler)

	if r.Signals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	for {
		res, err := r.invoke(ctx, graph, handler, threadID, input)
		if err != nil {
			return res, err
		}
		if res.Status != domain.StatusSuspended {
			return res, nil
		}

		ok, err := policy(ctx, res)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return res, fmt.Errorf("approval policy error: %w", err)
		}
		if !ok {
			r.Logger.Debug("suspension not approved", domain.KeyThreadID, threadID, domain.KeyStep, res.Step)
			return res, nil
		}
		r.Logger.Debug("resuming", domain.KeyThreadID, threadID, "next", res.Next)
		input = nil
	}
}

func (r *Runner) invoke(ctx context.Context, graph *strand.Runnable, handler EventHandler, threadID string, input domain.Update) (*domain.RunResult, error) {
	var runErr error
	for ev, err := range graph.Stream(ctx, input, threadID, r.Modes...) {
		if err != nil {
			runErr = err
			continue
		}
		if herr := handler.Event(ctx, ev); herr != nil {
			return nil, fmt.Errorf("output error: %w", herr)
		}
	}

	res := &domain.RunResult{ThreadID: threadID, Status: domain.StatusCompleted, Err: runErr}
	cp, err := graph.GetState(context.WithoutCancel(ctx), threadID)
	switch {
	case err == nil:
		res.State, res.Step, res.CheckpointID, res.Next = cp.State, cp.Step, cp.ID, cp.Next
	case runErr == nil:
		return nil, err
	}

	switch {
	case runErr != nil:
		res.Status = domain.StatusFailed
	case len(res.Next) > 0:
		res.Status = domain.StatusSuspended
	}

	if herr := handler.Result(ctx, res); herr != nil {
		return res, fmt.Errorf("output error: %w", herr)
	}
	return res, runErr
}

// resolveHandler ensures a valid EventHandler is set.
func (r *Runner) resolveHandler() EventHandler {
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r.Handler
}

// resolvePolicy returns the configured or default policy.
func (r *Runner) resolvePolicy(h EventHandler) ApprovalPolicy {
	if r.Policy != nil {
		return r.Policy
	}
	if r.Headless {
		return AutoApprove()
	}
	return ConfirmationPolicy(h)
}
