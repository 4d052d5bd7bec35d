package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/aretw0/strand/internal/presentation/graph"
	"github.com/aretw0/strand/internal/presentation/tui"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/ports"
)

// loadHistory collects a thread's checkpoints, newest first.
func loadHistory(ctx context.Context, store ports.CheckpointStore, threadID string) ([]*domain.Checkpoint, error) {
	var out []*domain.Checkpoint
	for cp, err := range store.History(ctx, threadID) {
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrThreadNotFound, threadID)
	}
	return out, nil
}

// threadOverlay marks the nodes a thread has run and its pending frontier.
func threadOverlay(ctx context.Context, store ports.CheckpointStore, threadID string) (*graph.GraphOverlay, error) {
	history, err := loadHistory(ctx, store, threadID)
	if err != nil {
		return nil, err
	}
	overlay := &graph.GraphOverlay{Next: history[0].Next}
	seen := make(map[string]bool)
	for i := len(history) - 1; i >= 0; i-- {
		for _, w := range history[i].Metadata.Writes {
			if w.Node == domain.Start || seen[w.Node] {
				continue
			}
			seen[w.Node] = true
			overlay.VisitedNodes = append(overlay.VisitedNodes, w.Node)
		}
	}
	return overlay, nil
}

// HistoryOptions configures the history command.
type HistoryOptions struct {
	ConfigPath string
	ThreadID   string
	Diff       bool
	// Raw prints the markdown without terminal rendering.
	Raw bool
}

// History prints the checkpoint timeline of a thread.
func History(ctx context.Context, opts HistoryOptions, out io.Writer) error {
	p, _, _, err := open(ctx, opts.ConfigPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	history, err := loadHistory(ctx, p.Store, opts.ThreadID)
	if err != nil {
		return err
	}
	md := tui.HistoryMarkdown(opts.ThreadID, history, opts.Diff)

	if opts.Raw || !isTerminalWriter(out) {
		_, err = io.WriteString(out, md)
		return err
	}
	render, err := tui.NewRenderer("")
	if err != nil {
		return err
	}
	rendered, err := render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, rendered)
	return err
}

// GraphOptions configures the graph command.
type GraphOptions struct {
	ConfigPath string
	Name       string
	// ThreadID overlays the progress of a thread when set.
	ThreadID string
}

// Graph prints the Mermaid diagram of a demo graph.
func Graph(ctx context.Context, opts GraphOptions, out io.Writer) error {
	demo, err := LookupDemo(opts.Name)
	if err != nil {
		return err
	}
	g, err := demo.Build(&ScriptedModel{}, nil).Compile()
	if err != nil {
		return err
	}

	var overlay *graph.GraphOverlay
	if opts.ThreadID != "" {
		p, _, _, err := open(ctx, opts.ConfigPath, false)
		if err != nil {
			return err
		}
		defer p.Close()
		if overlay, err = threadOverlay(ctx, p.Store, opts.ThreadID); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintln(out, graph.GenerateMermaid(g, overlay))
	return err
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
