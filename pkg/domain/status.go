package domain

// RunStatus is the lifecycle state of a single run.
type RunStatus string

const (
	StatusInitialized RunStatus = "initialized"
	StatusRunning     RunStatus = "running"
	StatusCompleted   RunStatus = "completed"
	StatusFailed      RunStatus = "failed"
	// StatusSuspended means the run stopped at an interrupt and can be resumed.
	StatusSuspended RunStatus = "suspended"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSuspended
}

// RunResult is the outcome of Run.
type RunResult struct {
	ThreadID     string
	Status       RunStatus
	State        State
	Step         int
	CheckpointID string
	// Next is the pending frontier when the run was suspended.
	Next []string
	Err  error
}
