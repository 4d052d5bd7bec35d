package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/strand/pkg/domain"
)

// HistoryMarkdown renders a thread's checkpoints, oldest first, as a markdown table.
// With diffs set, each row is followed by the changes it introduced.
func HistoryMarkdown(threadID string, newestFirst []*domain.Checkpoint, diffs bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Thread `%s`\n\n", threadID)
	if len(newestFirst) == 0 {
		sb.WriteString("_No checkpoints._\n")
		return sb.String()
	}

	sb.WriteString("| Step | Source | Ran | Next | Checkpoint |\n")
	sb.WriteString("|---:|---|---|---|---|\n")
	for i := len(newestFirst) - 1; i >= 0; i-- {
		cp := newestFirst[i]
		source := string(cp.Metadata.Source)
		if cp.Metadata.ForkedFrom != "" {
			source += " (fork)"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | `%s` |\n",
			cp.Step, source, joinOrDash(writers(cp)), joinOrDash(cp.Next), shortID(cp.ID))
	}

	if !diffs {
		return sb.String()
	}

	sb.WriteString("\n## Changes\n")
	var prev *domain.Checkpoint
	for i := len(newestFirst) - 1; i >= 0; i-- {
		cp := newestFirst[i]
		d := domain.Diff(prev, cp)
		prev = cp
		if d.IsEmpty() {
			continue
		}
		fmt.Fprintf(&sb, "\n### Step %d\n\n", cp.Step)
		for _, k := range sortedKeys(d.Changed) {
			fmt.Fprintf(&sb, "- **%s** = `%s`\n", k, compact(d.Changed[k]))
		}
		for _, k := range sortedKeys(d.Appended) {
			fmt.Fprintf(&sb, "- **%s** += `%s`\n", k, compact(d.Appended[k]))
		}
		for _, k := range d.Removed {
			fmt.Fprintf(&sb, "- ~~%s~~\n", k)
		}
	}
	return sb.String()
}

func writers(cp *domain.Checkpoint) []string {
	out := make([]string, 0, len(cp.Metadata.Writes))
	for _, w := range cp.Metadata.Writes {
		if w.Node == domain.Start {
			out = append(out, "input")
			continue
		}
		out = append(out, w.Node)
	}
	return out
}

func joinOrDash(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return strings.ReplaceAll(s, "`", "'")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
