package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrThreadNotFound is returned when a thread id has no checkpoints.
var ErrThreadNotFound = errors.New("thread not found")

// ErrCheckpointNotFound is returned when a checkpoint id is unknown for a thread.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrStepConflict is returned by a store when a checkpoint does not advance the
// thread's step sequence (a concurrent writer got there first).
var ErrStepConflict = errors.New("checkpoint step conflict")

// ErrRecursionLimit is returned when a run exceeds its superstep budget.
var ErrRecursionLimit = errors.New("recursion limit reached")

// ErrNothingToResume is returned when a nil input is given for a thread that
// has no pending frontier to continue from.
var ErrNothingToResume = errors.New("nothing to resume")

// ErrWriterClosed is returned when a node uses its stream writer after returning.
var ErrWriterClosed = errors.New("stream writer closed")

// ConfigurationError reports a graph definition that breaks the engine's contract:
// unknown node references, duplicate names, unreachable nodes, undeclared fields or
// route labels missing from a label map. It is never recoverable.
type ConfigurationError struct {
	Node   string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Node != "" {
		parts = append(parts, fmt.Sprintf("node %q", e.Node))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field %q", e.Field))
	}
	if len(parts) == 0 {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", strings.Join(parts, " "), e.Reason)
}

// CompileError aggregates every configuration problem found while compiling.
type CompileError struct {
	Errors []*ConfigurationError
}

func (e *CompileError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("found %d errors:\n- %s", len(e.Errors), strings.Join(msgs, "\n- "))
}

// Unwrap exposes the individual configuration errors to errors.As.
func (e *CompileError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// NodeExecutionError reports a node body that failed, panicked or timed out.
type NodeExecutionError struct {
	Node   string
	TaskID string
	Step   int
	Cause  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed at step %d: %v", e.Node, e.Step, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// ReducerError reports a reducer that failed or produced a value of the wrong type.
type ReducerError struct {
	Field string
	Nodes []string
	Step  int
	Cause error
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer for field %q failed at step %d (writers: %s): %v",
		e.Field, e.Step, strings.Join(e.Nodes, ", "), e.Cause)
}

func (e *ReducerError) Unwrap() error { return e.Cause }

// PersistenceError reports a checkpoint that could not be written. The superstep
// it belongs to is not committed.
type PersistenceError struct {
	ThreadID string
	Step     int
	Cause    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist checkpoint for thread %q at step %d: %v", e.ThreadID, e.Step, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
