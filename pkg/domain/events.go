package domain

import (
	"context"
	"time"
)

// StreamMode selects a family of events a consumer wants to observe.
type StreamMode string

const (
	// StreamDeltas emits each node's partial update once its superstep commits.
	StreamDeltas StreamMode = "deltas"
	// StreamSnapshots emits the full state after every committed superstep.
	StreamSnapshots StreamMode = "snapshots"
	// StreamTokens emits fragments pushed by nodes while they run.
	StreamTokens StreamMode = "tokens"
	// StreamProgress emits arbitrary progress payloads pushed by nodes.
	StreamProgress StreamMode = "progress"
	// StreamTrace emits node start and end records.
	StreamTrace StreamMode = "trace"
)

// AllStreamModes lists every mode in a stable order.
var AllStreamModes = []StreamMode{StreamDeltas, StreamSnapshots, StreamTokens, StreamProgress, StreamTrace}

// ParseStreamMode validates a mode name.
func ParseStreamMode(s string) (StreamMode, bool) {
	for _, m := range AllStreamModes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// StreamEvent is one tagged item emitted by a run.
type StreamEvent struct {
	Mode    StreamMode `json:"mode"`
	Step    int        `json:"step"`
	Node    string     `json:"node,omitempty"`
	TaskID  string     `json:"task_id,omitempty"`
	Payload any        `json:"payload"`
	Time    time.Time  `json:"time"`
}

// Delta is the payload of a StreamDeltas event.
type Delta struct {
	Node   string `json:"node"`
	Update Update `json:"update"`
}

// Token is the payload of a StreamTokens event.
type Token struct {
	Fragment string         `json:"fragment"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// TraceKind categorizes a trace record.
type TraceKind string

const (
	TraceNodeStart TraceKind = "node_start"
	TraceNodeEnd   TraceKind = "node_end"
	TraceNodeError TraceKind = "node_error"
)

// TraceEvent is the payload of a StreamTrace event.
type TraceEvent struct {
	Kind     TraceKind     `json:"kind"`
	Step     int           `json:"step"`
	Node     string        `json:"node"`
	TaskID   string        `json:"task_id"`
	Time     time.Time     `json:"time"`
	Duration time.Duration `json:"duration,omitempty"`
	Input    State         `json:"input,omitempty"` // node_start only
	Output   Update        `json:"output,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// NodeEvent is passed to node lifecycle hooks.
type NodeEvent struct {
	ThreadID string
	Step     int
	Node     string
	TaskID   string
	Duration time.Duration
	Err      error
}

// SuperstepEvent is passed to OnSuperstep after a superstep commits.
type SuperstepEvent struct {
	ThreadID string
	Step     int
	Tasks    int
	Duration time.Duration
}

// CheckpointEvent is passed to OnCheckpoint after a checkpoint write attempt.
type CheckpointEvent struct {
	ThreadID     string
	Step         int
	CheckpointID string
	Source       Source
	Duration     time.Duration
	Err          error
}

// LifecycleHooks defines callbacks for engine observability.
// Every callback is optional. Node callbacks may be invoked concurrently.
type LifecycleHooks struct {
	OnNodeStart  func(context.Context, *NodeEvent)
	OnNodeEnd    func(context.Context, *NodeEvent)
	OnSuperstep  func(context.Context, *SuperstepEvent)
	OnCheckpoint func(context.Context, *CheckpointEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeStart:  chain(h.OnNodeStart, other.OnNodeStart),
		OnNodeEnd:    chain(h.OnNodeEnd, other.OnNodeEnd),
		OnSuperstep:  chain(h.OnSuperstep, other.OnSuperstep),
		OnCheckpoint: chain(h.OnCheckpoint, other.OnCheckpoint),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
