package domain

import "time"

// Source records what produced a checkpoint.
type Source string

const (
	// SourceInput marks the checkpoint that applies the caller's input.
	SourceInput Source = "input"
	// SourceLoop marks a checkpoint committed at the end of a superstep.
	SourceLoop Source = "loop"
	// SourceUpdate marks a checkpoint produced by an external state update.
	SourceUpdate Source = "update"
)

// InitialStep is the step number of the very first checkpoint of a thread.
const InitialStep = -1

// Task is one entry of a frontier: a node to run and, for fan-out tasks,
// the payload layered over the shared state for that invocation.
type Task struct {
	ID   string `json:"id"`
	Node string `json:"node"`
	Arg  Update `json:"arg,omitempty"`
}

// Write records the partial update a task produced during a superstep.
type Write struct {
	Node   string `json:"node"`
	TaskID string `json:"task_id"`
	Update Update `json:"update,omitempty"`
}

// Metadata describes how a checkpoint came to be.
type Metadata struct {
	Step   int     `json:"step"`
	Source Source  `json:"source"`
	Writes []Write `json:"writes,omitempty"`
	// ForkedFrom is set when the run resumed from a historical checkpoint.
	ForkedFrom string `json:"forked_from,omitempty"`
}

// Checkpoint is an immutable snapshot of state plus scheduler position.
type Checkpoint struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Step     int    `json:"step"`
	State    State  `json:"state"`

	// Next lists the distinct node names of the pending frontier, in scheduling order.
	Next []string `json:"next"`
	// Tasks is the full pending frontier, including fan-out payloads.
	Tasks []Task `json:"tasks,omitempty"`

	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	ParentID  string    `json:"parent_id,omitempty"`
}

// Position is the baseline a run re-enters execution from.
type Position struct {
	CheckpointID string
	Step         int
	State        State
	Tasks        []Task
}

// Position returns the resume baseline of the checkpoint. When the stored
// frontier carries no task records, it is re-derived from the Next list.
func (c *Checkpoint) Position() *Position {
	tasks := make([]Task, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		tasks = append(tasks, Task{ID: t.ID, Node: t.Node, Arg: t.Arg.Clone()})
	}
	if len(tasks) == 0 {
		for i, n := range c.Next {
			tasks = append(tasks, Task{ID: TaskID(c.Step+1, n, i), Node: n})
		}
	}
	return &Position{
		CheckpointID: c.ID,
		Step:         c.Step,
		State:        c.State.Clone(),
		Tasks:        tasks,
	}
}

// Done reports whether nothing is left to run from this checkpoint.
func (c *Checkpoint) Done() bool {
	return len(c.Next) == 0 && len(c.Tasks) == 0
}

// NextNodes returns the distinct node names of a frontier in order.
func NextNodes(tasks []Task) []string {
	seen := make(map[string]bool, len(tasks))
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if !seen[t.Node] {
			seen[t.Node] = true
			out = append(out, t.Node)
		}
	}
	return out
}
