package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/strand"
	"github.com/aretw0/strand/pkg/domain"
)

// open loads the configuration and the store it describes.
func open(ctx context.Context, configPath string, debug bool) (*Persistence, Config, *slog.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, cfg, nil, err
	}
	logger, err := createLogger(cfg.Log, debug)
	if err != nil {
		return nil, cfg, nil, err
	}
	p, err := OpenPersistence(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, nil, err
	}
	return p, cfg, logger, nil
}

// ListThreads prints every thread id in the store.
func ListThreads(ctx context.Context, configPath string, out io.Writer) error {
	p, _, _, err := open(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	threads, err := p.Sessions.List(ctx)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Fprintln(out, "No threads found.")
		return nil
	}
	for _, id := range threads {
		fmt.Fprintln(out, "- "+id)
	}
	return nil
}

// InspectThread prints the latest checkpoint of a thread as indented JSON.
func InspectThread(ctx context.Context, configPath, threadID string, out io.Writer) error {
	p, _, _, err := open(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	cp, err := p.Sessions.Latest(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load thread %q: %w", threadID, err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// RemoveThreads deletes threads and reports each one. It fails if any deletion failed.
func RemoveThreads(ctx context.Context, configPath string, threadIDs []string, out io.Writer) error {
	p, _, _, err := open(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	var errs []error
	for _, id := range threadIDs {
		if err := p.Sessions.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %q: %w", id, err))
			continue
		}
		fmt.Fprintf(out, "Removed thread '%s'\n", id)
	}
	return errors.Join(errs...)
}

// UpdateOptions configures the thread update command.
type UpdateOptions struct {
	ConfigPath string
	Graph      string
	ThreadID   string
	// Values is a JSON object merged through the graph's reducers.
	Values string
	// AsNode attributes the update to a node, which also decides the new frontier.
	AsNode string
}

// UpdateThread applies an external state update to a thread.
func UpdateThread(ctx context.Context, opts UpdateOptions, out io.Writer) error {
	demo, err := LookupDemo(opts.Graph)
	if err != nil {
		return err
	}
	update, err := ParseInput(opts.Values, "")
	if err != nil {
		return err
	}
	if len(update) == 0 {
		return errors.New("--set must be a non-empty JSON object")
	}

	p, _, logger, err := open(ctx, opts.ConfigPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	graph, err := strand.Compile(demo.Build(&ScriptedModel{}, nil),
		strand.WithName(demo.Name),
		strand.WithLogger(logger),
		strand.WithSessionManager(p.Sessions))
	if err != nil {
		return err
	}
	cp, err := graph.UpdateState(ctx, opts.ThreadID, domain.Update(update), opts.AsNode)
	if err != nil {
		return err
	}
	printSystemMessage(out, "Thread '%s' updated at step %d, next: %v", opts.ThreadID, cp.Step, cp.Next)
	return nil
}
