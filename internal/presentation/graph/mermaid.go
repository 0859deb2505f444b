// Package graph renders workflow graphs as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/rimraf-adi/socrates/pkg/domain"
)

const endID = "end_"

// GraphOverlay contains run data to highlight on the graph.
type GraphOverlay struct {
	// CurrentNode is the step a checkpointed run resumes at. Empty with
	// Finished set highlights the end marker instead.
	CurrentNode string
	Finished    bool
}

// OverlayFromState builds the overlay for a checkpoint.
func OverlayFromState(s *domain.State) *GraphOverlay {
	if s == nil {
		return nil
	}
	return &GraphOverlay{CurrentNode: s.Next, Finished: s.Next == "" && s.Status == domain.StatusComplete}
}

// GenerateMermaid produces a Mermaid flowchart for g.
// Shapes:
// - Entry: ((Circle))
// - Finalizer: ([Stadium])
// - Routing node: {{Hexagon}}
// - Default: [Rectangle]
// Fixed edges are solid; edges chosen by a route are dotted.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	hasEnd := false
	for _, node := range g.Nodes() {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case node.ID == g.Entry:
			opener, closer = "((", "))"
		case node.ID == g.Finalizer:
			opener, closer = "([", "])"
		case node.Route != nil:
			opener, closer = "{{", "}}"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, node.ID, closer)

		if node.Route != nil {
			for _, to := range node.Targets {
				hasEnd = hasEnd || to == domain.End
				fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, target(to))
			}
			continue
		}
		if node.Next != "" {
			hasEnd = hasEnd || node.Next == domain.End
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, target(node.Next))
		}
	}
	if hasEnd {
		fmt.Fprintf(&sb, "    %s((\"end\"))\n", endID)
	}

	if g.Finalizer != "" {
		fmt.Fprintf(&sb, "\n    %%%% Steps past the ceiling divert to %s\n", g.Finalizer)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps the highlight readable on light and dark themes.
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		switch {
		case overlay.CurrentNode != "":
			fmt.Fprintf(&sb, "    class %s current;\n", target(overlay.CurrentNode))
		case overlay.Finished && hasEnd:
			fmt.Fprintf(&sb, "    class %s current;\n", endID)
		}
	}

	return sb.String()
}

func target(id string) string {
	if id == domain.End {
		return endID
	}
	return sanitizeMermaidID(id)
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
