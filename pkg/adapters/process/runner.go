// Package process exposes allow-listed local commands as registry tools.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/strand/pkg/registry"
)

// ArgPrefix prefixes the environment variables that carry tool arguments.
const ArgPrefix = "STRAND_ARG_"

// DefaultWaitDelay bounds how long a cancelled process may take to exit.
const DefaultWaitDelay = 2 * time.Second

// Runner executes registered commands. Arguments never reach the command line;
// they are passed as STRAND_ARG_<NAME> environment variables.
type Runner struct {
	procs     map[string]ProcessConfig
	baseDir   string
	waitDelay time.Duration
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithTools populates the allow-list from loaded config.
func WithTools(tools []ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for _, tool := range tools {
			r.procs[tool.Name] = tool
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		procs:     make(map[string]ProcessConfig),
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.procs[name] = ProcessConfig{Name: name, Command: command, Args: args}
}

// Names lists the allow-listed tools.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named command. Output that parses as a JSON object or array
// is returned decoded; anything else is returned as trimmed text.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	proc, ok := r.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrToolNotFound, name)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.waitDelay
	cmd.Env = append(cmd.Environ(), environment(proc.Environment, args)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return decodeOutput(stdout.String()), nil
}

// Tool adapts one allow-listed command to a registry.ToolFunction.
func (r *Runner) Tool(name string) registry.ToolFunction {
	return func(ctx context.Context, args map[string]any) (any, error) {
		return r.Execute(ctx, name, args)
	}
}

// RegisterAll adds every allow-listed command to reg.
func (r *Runner) RegisterAll(reg *registry.Registry) {
	for _, name := range r.Names() {
		reg.Register(name, r.Tool(name))
	}
}

func environment(static map[string]string, args map[string]any) []string {
	env := make([]string, 0, len(static)+len(args))
	for k, v := range static {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, ArgPrefix+strings.ToUpper(k)+"="+argValue(v))
	}
	return env
}

func argValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return trimmed
}
