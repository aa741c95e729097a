package graph

import (
	"fmt"
	"sort"
	"strings"
)

// DrawMermaid renders the graph as a Mermaid flowchart.
func (g *StateGraph[S]) DrawMermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	if g.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString(fmt.Sprintf("    START --> %s\n", g.entryPoint))
	}

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", name, name))
	}

	hasEnd := len(g.conditionalEdges) > 0
	for _, e := range g.edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", e.From, e.To))
		if e.To == END {
			hasEnd = true
		}
	}

	froms := make([]string, 0, len(g.conditionalEdges))
	for from := range g.conditionalEdges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		sb.WriteString(fmt.Sprintf("    %s -.-> %s_condition((?))\n", from, from))
	}

	if hasEnd {
		sb.WriteString("    END([\"END\"])\n")
	}
	return sb.String()
}
