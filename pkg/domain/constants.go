package domain

import "fmt"

// Context keys for structured log attributes, kept stable for log processors.
const (
	KeyThreadID = "thread_id"
	KeyStep     = "step"
	KeyNode     = "node"
	KeyTaskID   = "task_id"
)

// TaskID builds the deterministic identifier of the index-th task of a superstep.
func TaskID(step int, node string, index int) string {
	return fmt.Sprintf("%d:%s:%d", step, node, index)
}
