package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		from     *Checkpoint
		to       *Checkpoint
		wantDiff *StateDiff
	}{
		{
			name: "Initial Load (From is Nil)",
			from: nil,
			to:   &Checkpoint{Step: -1, State: State{"topic": "go"}},
			wantDiff: &StateDiff{
				FromStep: -2,
				ToStep:   -1,
				Changed:  map[string]any{"topic": "go"},
			},
		},
		{
			name:     "No Changes",
			from:     &Checkpoint{Step: 0, State: State{"a": 1}},
			to:       &Checkpoint{Step: 1, State: State{"a": 1}},
			wantDiff: &StateDiff{FromStep: 0, ToStep: 1},
		},
		{
			name: "Modified and Removed",
			from: &Checkpoint{Step: 1, State: State{"a": 1, "b": "x", "c": true}},
			to:   &Checkpoint{Step: 2, State: State{"a": 2, "c": true}},
			wantDiff: &StateDiff{
				FromStep: 1,
				ToStep:   2,
				Changed:  map[string]any{"a": 2},
				Removed:  []string{"b"},
			},
		},
		{
			name: "Append Only List",
			from: &Checkpoint{Step: 2, State: State{"items": []any{"a"}}},
			to:   &Checkpoint{Step: 3, State: State{"items": []any{"a", "b", "c"}}},
			wantDiff: &StateDiff{
				FromStep: 2,
				ToStep:   3,
				Appended: map[string][]any{"items": {"b", "c"}},
			},
		},
		{
			name: "Rewritten List",
			from: &Checkpoint{Step: 2, State: State{"items": []any{"a", "b"}}},
			to:   &Checkpoint{Step: 3, State: State{"items": []any{"z", "b", "c"}}},
			wantDiff: &StateDiff{
				FromStep: 2,
				ToStep:   3,
				Changed:  map[string]any{"items": []any{"z", "b", "c"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.from, tt.to)
			if !reflect.DeepEqual(got, tt.wantDiff) {
				t.Errorf("Diff() = %+v, want %+v", got, tt.wantDiff)
			}
		})
	}
}

func TestDiff_NilTarget(t *testing.T) {
	if d := Diff(&Checkpoint{}, nil); d != nil {
		t.Errorf("Diff(x, nil) = %+v, want nil", d)
	}
}

func TestStateDiff_JSONOmitsEmpty(t *testing.T) {
	d := Diff(&Checkpoint{Step: 0, State: State{"a": 1}}, &Checkpoint{Step: 1, State: State{"a": 1}})
	if !d.IsEmpty() {
		t.Fatalf("expected empty diff, got %+v", d)
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, key := range []string{"changed", "removed", "appended"} {
		if strings.Contains(string(data), key) {
			t.Errorf("expected %q to be omitted, got %s", key, data)
		}
	}
}
