package runner

import (
	"context"

	"github.com/aretw0/strand/pkg/domain"
)

// EventHandler defines the strategy for presenting a run.
// This allows switching between Text (CLI) and JSON (structured) modes.
type EventHandler interface {
	// Event presents one stream event as it happens.
	Event(ctx context.Context, ev domain.StreamEvent) error

	// Result presents the outcome of an invocation, including suspensions.
	Result(ctx context.Context, res *domain.RunResult) error

	// Input reads a response from the user.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (status, prompts) distinct from run content.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms markdown before it is printed, e.g. into ANSI.
// This allows TUI rendering without coupling the runner to a renderer.
type ContentRenderer func(string) (string, error)
