package middleware

import (
	"context"
	"iter"
	"regexp"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/ports"
)

const mask = "***"

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of keys matching the patterns
// before they reach the store. It applies to state, fan-out payloads and recorded writes.
// Masking is one-way: a masked checkpoint resumes with the masked values.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Put(ctx context.Context, cp *domain.Checkpoint) error {
	// Deep clone to avoid side effects on the checkpoint held by the engine.
	cloned := *cp
	cloned.State = m.masked(cp.State)

	if cp.Tasks != nil {
		cloned.Tasks = make([]domain.Task, len(cp.Tasks))
		for i, t := range cp.Tasks {
			cloned.Tasks[i] = domain.Task{ID: t.ID, Node: t.Node, Arg: domain.Update(m.masked(t.Arg))}
		}
	}
	if cp.Metadata.Writes != nil {
		cloned.Metadata.Writes = make([]domain.Write, len(cp.Metadata.Writes))
		for i, w := range cp.Metadata.Writes {
			cloned.Metadata.Writes[i] = domain.Write{Node: w.Node, TaskID: w.TaskID, Update: domain.Update(m.masked(w.Update))}
		}
	}

	return m.next.Put(ctx, &cloned)
}

func (m *piiMiddleware) masked(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := deepCopyMap(src)
	maskMap(out, m.patterns)
	return out
}

func (m *piiMiddleware) Latest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return m.next.Latest(ctx, threadID)
}

func (m *piiMiddleware) Get(ctx context.Context, threadID, checkpointID string) (*domain.Checkpoint, error) {
	return m.next.Get(ctx, threadID, checkpointID)
}

func (m *piiMiddleware) History(ctx context.Context, threadID string) iter.Seq2[*domain.Checkpoint, error] {
	return m.next.History(ctx, threadID)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v // shallow copy of value
	}
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		matched := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = mask
				matched = true
				break
			}
		}
		if !matched {
			maskValue(v, patterns)
		}
	}
}

func maskValue(v any, patterns []*regexp.Regexp) {
	switch val := v.(type) {
	case map[string]any:
		maskMap(val, patterns)
	case []any:
		for _, item := range val {
			maskValue(item, patterns)
		}
	}
}
