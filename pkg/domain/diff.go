package domain

import (
	"reflect"
	"sort"
)

// StateDiff represents the changes between two checkpoints of a thread.
type StateDiff struct {
	// FromStep is InitialStep-1 when the diff starts from an empty thread.
	FromStep int `json:"from_step"`
	ToStep   int `json:"to_step"`

	// Changed contains added or modified fields with their new value.
	Changed map[string]any `json:"changed,omitempty"`

	// Removed lists fields present before and absent after.
	Removed []string `json:"removed,omitempty"`

	// Appended holds, for list fields that only grew, the new tail.
	// Such fields are not repeated in Changed.
	Appended map[string][]any `json:"appended,omitempty"`
}

// Diff calculates the difference between two checkpoints.
// If from is nil, the diff represents the entire state of to (initial load).
func Diff(from, to *Checkpoint) *StateDiff {
	if to == nil {
		return nil
	}

	diff := &StateDiff{FromStep: InitialStep - 1, ToStep: to.Step}
	var old State
	if from != nil {
		diff.FromStep = from.Step
		old = from.State
	}

	for k, newVal := range to.State {
		oldVal, exists := old[k]
		if exists && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		if exists {
			if tail, ok := appendedTail(oldVal, newVal); ok {
				if diff.Appended == nil {
					diff.Appended = make(map[string][]any)
				}
				diff.Appended[k] = tail
				continue
			}
		}
		if diff.Changed == nil {
			diff.Changed = make(map[string]any)
		}
		diff.Changed[k] = newVal
	}

	for k := range old {
		if _, exists := to.State[k]; !exists {
			diff.Removed = append(diff.Removed, k)
		}
	}
	sort.Strings(diff.Removed)

	return diff
}

// appendedTail reports whether newVal is oldVal with extra items at the end.
func appendedTail(oldVal, newVal any) ([]any, bool) {
	ov, nv := reflect.ValueOf(oldVal), reflect.ValueOf(newVal)
	if ov.Kind() != reflect.Slice || nv.Kind() != reflect.Slice {
		return nil, false
	}
	if nv.Len() <= ov.Len() {
		return nil, false
	}
	for i := 0; i < ov.Len(); i++ {
		if !reflect.DeepEqual(ov.Index(i).Interface(), nv.Index(i).Interface()) {
			return nil, false
		}
	}
	tail := make([]any, 0, nv.Len()-ov.Len())
	for i := ov.Len(); i < nv.Len(); i++ {
		tail = append(tail, nv.Index(i).Interface())
	}
	return tail, true
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Changed) == 0 && len(d.Removed) == 0 && len(d.Appended) == 0
}
