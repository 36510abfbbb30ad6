package visualize

import "fmt"

// Generator renders a visualization graph.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator for a format: dot or mermaid.
func NewGenerator(format string) (Generator, error) {
	switch format {
	case "dot", "graphviz":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

// Generate creates a Graphviz DOT diagram from the graph.
func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}
