package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/strand/pkg/domain"
)

// GraphOverlay contains thread data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	// Next is the pending frontier of the thread.
	Next []string
}

// GenerateMermaid produces a Mermaid flowchart for a compiled graph.
// It applies semantic styling:
// - START / END: ((Circle))
// - Fan-out target: [[Subroutine]]
// - Default: [Rectangle]
// Static edges are solid, conditional edges carry their label and fan-outs are dotted.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	fanTargets := make(map[string]bool)
	for _, f := range g.FanOuts() {
		for _, t := range f.Targets {
			fanTargets[t] = true
		}
	}

	fmt.Fprintf(&sb, "    %s((\"START\"))\n", sanitizeMermaidID(domain.Start))
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		safeID := sanitizeMermaidID(id)

		opener, closer := "[", "]"
		if fanTargets[id] {
			opener, closer = "[[", "]]"
		}

		label := id
		if node.Timeout > 0 {
			label = fmt.Sprintf("%s <br/> ⏱️ %s", id, node.Timeout)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)
	}
	fmt.Fprintf(&sb, "    %s((\"END\"))\n", sanitizeMermaidID(domain.End))

	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(e.From), sanitizeMermaidID(e.To))
	}

	for _, b := range g.Branches() {
		labels := make([]string, 0, len(b.Targets))
		for label := range b.Targets {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			safeLabel := strings.ReplaceAll(label, "\"", "'")
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", sanitizeMermaidID(b.From), safeLabel, sanitizeMermaidID(b.Targets[label]))
		}
	}

	for _, f := range g.FanOuts() {
		for _, t := range f.Targets {
			fmt.Fprintf(&sb, "    %s -. \"fan-out\" .-> %s\n", sanitizeMermaidID(f.From), sanitizeMermaidID(t))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast regardless of theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visited[safeID] && safeID != "" && g.HasNode(id) {
				visited[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		for _, id := range overlay.Next {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(id))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.Trim(id, "_")
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "end" || s == "start" {
		// reserved words in Mermaid flowcharts
		s = "node_" + s
	}
	return s
}
