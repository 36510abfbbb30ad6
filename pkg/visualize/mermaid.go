package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// MermaidGenerator generates Mermaid flowchart diagrams.
type MermaidGenerator struct{}

// Generate creates a left-to-right Mermaid flowchart wrapped in a markdown code block.
func (m *MermaidGenerator) Generate(g *Graph) string {
	mermaid := dot.MermaidFlowchart(BuildMermaidGraph(g), dot.MermaidLeftToRight)
	return fmt.Sprintf("```mermaid\n%s\n```\n", mermaid)
}

// BuildMermaidGraph creates a dot.Graph carrying Mermaid node shapes and CSS styles. Graphviz
// attributes do not carry over: the Mermaid renderer expects its own shape values.
func BuildMermaidGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		node := graph.Node(n.Name).Attr("label", n.Label())
		switch {
		case n.Kind == "table":
			node.Attr("shape", dot.MermaidShapeStadium).
				Attr("style", "fill:lightgreen")
		case g.IsTerminal(n.Name):
			node.Attr("shape", dot.MermaidShapeRound).
				Attr("style", "fill:lightcyan")
		default:
			node.Attr("shape", dot.MermaidShapeRound).
				Attr("style", "fill:lightblue,stroke:darkblue,stroke-width:2px")
		}
		nodes[n.Name] = node
	}

	addEdges(graph, nodes, g.Edges)
	return graph
}
