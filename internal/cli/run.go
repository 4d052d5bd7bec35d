package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/strand"
	"github.com/aretw0/strand/internal/presentation/tui"
	"github.com/aretw0/strand/pkg/adapters/process"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/observability"
	"github.com/aretw0/strand/pkg/registry"
	"github.com/aretw0/strand/pkg/runner"
)

// RunOptions holds the flags of the run command.
type RunOptions struct {
	ConfigPath string
	Graph      string
	ThreadID   string
	Input      string
	Modes      []string
	JSON       bool
	Headless   bool
	Debug      bool
	// Fresh deletes the thread before running.
	Fresh bool
	// MetricsAddr serves /metrics for the duration of the run when set.
	MetricsAddr string
	// TokenDelay slows the scripted model down so streaming is visible.
	TokenDelay time.Duration
	// InterruptBefore and InterruptAfter add to the configured interrupt nodes.
	InterruptBefore []string
	InterruptAfter  []string
	// MaxResumes bounds automatic approvals in headless mode. Zero means
	// unlimited and a negative value never resumes.
	MaxResumes int
}

// Execute runs a demo graph on a thread and presents its stream.
func Execute(ctx context.Context, opts RunOptions, in io.Reader, out io.Writer) error {
	demo, err := LookupDemo(opts.Graph)
	if err != nil {
		return err
	}
	input, err := ParseInput(opts.Input, demo.InputKey)
	if err != nil {
		return err
	}
	modes, err := ParseModes(opts.Modes)
	if err != nil {
		return err
	}

	p, cfg, logger, err := open(ctx, opts.ConfigPath, opts.Debug)
	if err != nil {
		return err
	}
	defer p.Close()

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if opts.Fresh {
		if err := p.Sessions.Delete(ctx, threadID); err != nil {
			return fmt.Errorf("failed to reset thread: %w", err)
		}
	}

	hooks := domain.LifecycleHooks{}
	if opts.Debug {
		hooks = observability.LoggingHooks(logger)
	}
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			return err
		}
		hooks = observability.Combine(hooks, metrics.Hooks())

		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		handler := NewHandler(&Server{Store: p.Store, Gatherer: reg, Logger: logger})
		go func() {
			if err := ListenAndServe(srvCtx, opts.MetricsAddr, handler, logger); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	graphOpts := []strand.Option{
		strand.WithName(demo.Name),
		strand.WithLogger(logger),
		strand.WithSessionManager(p.Sessions),
		strand.WithLifecycleHooks(hooks),
		strand.WithMaxSteps(cfg.Engine.MaxSteps),
		strand.WithConcurrency(cfg.Engine.Concurrency),
		strand.WithNodeTimeout(cfg.Engine.NodeTimeout),
		strand.WithInterruptBefore(append(cfg.Engine.InterruptBefore, opts.InterruptBefore...)...),
		strand.WithInterruptAfter(append(cfg.Engine.InterruptAfter, opts.InterruptAfter...)...),
	}
	tools := registry.NewRegistry()
	process.NewRunner(process.WithTools(cfg.Tools)).RegisterAll(tools)

	graph, err := strand.Compile(demo.Build(&ScriptedModel{Delay: opts.TokenDelay}, tools), graphOpts...)
	if err != nil {
		return err
	}

	quiet := opts.JSON || opts.Headless
	if input == nil {
		if _, err := graph.GetState(ctx, threadID); errors.Is(err, domain.ErrThreadNotFound) {
			return fmt.Errorf("--input is required to start thread %q", threadID)
		}
	}
	if !quiet {
		tui.PrintBanner(out)
		printSystemMessage(out, "Thread '%s' on graph '%s'.", threadID, demo.Name)
	}

	res, err := newRunner(opts, logger, modes, in, out).Run(ctx, graph, threadID, input)
	if err != nil {
		return handleExecutionError(err)
	}
	if !quiet {
		printSystemMessage(out, "Thread '%s' %s at step %d.", threadID, res.Status, res.Step)
	}
	return nil
}

func newRunner(opts RunOptions, logger *slog.Logger, modes []domain.StreamMode, in io.Reader, out io.Writer) *runner.Runner {
	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithHeadless(opts.Headless),
	}
	if len(modes) > 0 {
		runnerOpts = append(runnerOpts, runner.WithModes(modes...))
	}

	var handler runner.EventHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(in, out)
	} else {
		var textOpts []runner.TextHandlerOption
		if !opts.Headless {
			if render, err := tui.NewRenderer(""); err == nil {
				textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
			} else {
				logger.Warn("markdown rendering disabled", "err", err)
			}
		}
		handler = runner.NewTextHandler(in, out, textOpts...)
	}
	runnerOpts = append(runnerOpts, runner.WithHandler(handler))

	switch {
	case !opts.Headless:
	case opts.MaxResumes < 0:
		runnerOpts = append(runnerOpts, runner.WithPolicy(runner.DenyAll()))
	case opts.MaxResumes > 0:
		runnerOpts = append(runnerOpts, runner.WithPolicy(runner.MaxResumes(opts.MaxResumes, runner.AutoApprove())))
	}
	return runner.NewRunner(runnerOpts...)
}
