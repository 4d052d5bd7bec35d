package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/aretw0/strand/pkg/domain"
)

// TextHandler prints a human readable feed of a run.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	// Interactive enables prompts. It defaults to whether the reader is a terminal.
	Interactive bool

	mu        sync.Mutex
	inToken   bool
	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader:      bufio.NewReader(r),
		Writer:      w,
		Interactive: isTerminal(r),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Event prints tokens inline and everything else on its own line.
func (h *TextHandler) Event(ctx context.Context, ev domain.StreamEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tok, ok := ev.Payload.(domain.Token); ok {
		h.inToken = true
		_, err := fmt.Fprint(h.Writer, tok.Fragment)
		return err
	}
	if h.inToken {
		fmt.Fprintln(h.Writer)
		h.inToken = false
	}

	switch p := ev.Payload.(type) {
	case domain.Delta:
		_, err := fmt.Fprintf(h.Writer, "[%d] %s: %s\n", ev.Step, p.Node, formatFields(p.Update))
		return err
	case domain.State:
		_, err := fmt.Fprintf(h.Writer, "[%d] state: %s\n", ev.Step, formatFields(p))
		return err
	case domain.TraceEvent:
		line := fmt.Sprintf("[%d] %s %s", ev.Step, p.Kind, p.Node)
		if p.Duration > 0 {
			line += " (" + p.Duration.String() + ")"
		}
		if p.Err != "" {
			line += ": " + p.Err
		}
		_, err := fmt.Fprintln(h.Writer, line)
		return err
	default:
		_, err := fmt.Fprintf(h.Writer, "[%d] %s %s: %v\n", ev.Step, ev.Mode, ev.Node, p)
		return err
	}
}

// Result prints the status line and, for a finished run, the final state.
func (h *TextHandler) Result(ctx context.Context, res *domain.RunResult) error {
	h.mu.Lock()
	if h.inToken {
		fmt.Fprintln(h.Writer)
		h.inToken = false
	}
	h.mu.Unlock()

	switch res.Status {
	case domain.StatusSuspended:
		return h.SystemOutput(ctx, fmt.Sprintf("suspended at step %d, next: %s", res.Step, strings.Join(res.Next, ", ")))
	case domain.StatusFailed:
		return h.SystemOutput(ctx, fmt.Sprintf("failed at step %d: %v", res.Step, res.Err))
	}

	var sb strings.Builder
	sb.WriteString("## Final state\n\n")
	for _, k := range sortedKeys(res.State) {
		fmt.Fprintf(&sb, "- **%s**: %s\n", k, formatValue(res.State[k]))
	}
	out := sb.String()
	if h.Renderer != nil {
		if rendered, err := h.Renderer(out); err == nil {
			out = rendered
		}
	}
	_, err := fmt.Fprintln(h.Writer, strings.TrimSpace(out))
	return err
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so that Input can honor ctx.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
		}
	}
}

// Input reads a sanitized line, prompting again on invalid input.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		if h.Interactive {
			fmt.Fprint(h.Writer, "> ")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return err
}

func formatFields[M ~map[string]any](m M) string {
	if len(m) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, k+"="+formatValue(m[k]))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
