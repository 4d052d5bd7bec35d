package runner

import (
	"log/slog"

	"github.com/aretw0/strand/pkg/domain"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithHandler configures the event handler (default: TextHandler on stdio).
func WithHandler(handler EventHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithPolicy configures how suspended runs are resumed.
func WithPolicy(policy ApprovalPolicy) Option {
	return func(r *Runner) {
		r.Policy = policy
	}
}

// WithHeadless resumes suspensions without asking.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.Headless = headless
	}
}

// WithModes selects the stream modes shown to the handler.
func WithModes(modes ...domain.StreamMode) Option {
	return func(r *Runner) {
		r.Modes = modes
	}
}

// WithSignals cancels the run on SIGINT or SIGTERM.
func WithSignals(enabled bool) Option {
	return func(r *Runner) {
		r.Signals = enabled
	}
}
