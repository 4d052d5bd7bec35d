// Package stream gives node bodies access to the run's event stream.
//
// A node obtains its writer with FromContext and pushes token fragments or
// progress payloads while it runs. Outside a streaming run the writer discards
// everything, so node code never needs to check which mode it runs under.
package stream

import (
	"context"
	"sync"

	"github.com/aretw0/strand/pkg/domain"
)

// Writer is the node-side handle on the event stream.
type Writer interface {
	// Token emits a fragment of incremental output, such as model tokens.
	Token(fragment string, meta map[string]any) error
	// Progress emits an arbitrary progress payload.
	Progress(payload any) error
}

// EmitFunc receives every event a task writer accepts.
type EmitFunc func(mode domain.StreamMode, payload any)

type ctxKey struct{}

// WithWriter returns a context carrying w.
func WithWriter(ctx context.Context, w Writer) context.Context {
	return context.WithValue(ctx, ctxKey{}, w)
}

// FromContext returns the writer of the current node invocation, or a writer
// that discards everything when none is attached.
func FromContext(ctx context.Context) Writer {
	if w, ok := ctx.Value(ctxKey{}).(Writer); ok {
		return w
	}
	return discard{}
}

type discard struct{}

func (discard) Token(string, map[string]any) error { return nil }
func (discard) Progress(any) error                  { return nil }

// TaskWriter is the writer bound to one node invocation.
// It rejects every call with domain.ErrWriterClosed once the invocation has ended.
// Safe for concurrent use by goroutines spawned inside the node.
type TaskWriter struct {
	mu     sync.Mutex
	closed bool
	emit   EmitFunc
}

// NewTaskWriter creates a writer that forwards to emit. A nil emit discards events.
func NewTaskWriter(emit EmitFunc) *TaskWriter {
	return &TaskWriter{emit: emit}
}

func (w *TaskWriter) send(mode domain.StreamMode, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return domain.ErrWriterClosed
	}
	if w.emit != nil {
		w.emit(mode, payload)
	}
	return nil
}

// Token emits a domain.Token payload on the tokens mode.
func (w *TaskWriter) Token(fragment string, meta map[string]any) error {
	return w.send(domain.StreamTokens, domain.Token{Fragment: fragment, Meta: meta})
}

// Progress emits payload on the progress mode.
func (w *TaskWriter) Progress(payload any) error {
	return w.send(domain.StreamProgress, payload)
}

// Close ends the invocation. Further calls fail with domain.ErrWriterClosed.
func (w *TaskWriter) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
