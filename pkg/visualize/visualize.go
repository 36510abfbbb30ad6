// Package visualize renders table graphs as diagrams.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/dtable/pkg/graph"
	"github.com/l7mp/dtable/pkg/util"
)

// Graph is the visualization graph of a table graph.
type Graph struct {
	Name  string
	Nodes []Node
	Edges []Edge
}

// Node is a base table or a view.
type Node struct {
	Name string
	// Kind is "table" for base tables and the operator name for views.
	Kind string
	// Detail summarizes the table schema or the operator arguments.
	Detail string
}

// Edge connects a table to a view reading it.
type Edge struct {
	From, To string
	// Label marks the join side, empty otherwise.
	Label string
}

// BuildGraph constructs a visualization graph from a graph spec.
func BuildGraph(name string, spec *graph.Spec) *Graph {
	g := &Graph{Name: name}

	for _, t := range spec.Tables {
		cols := util.Map(func(c graph.ColumnSpec) string { return c.Name + ":" + c.Type }, t.Columns)
		g.Nodes = append(g.Nodes, Node{Name: t.Name, Kind: "table", Detail: strings.Join(cols, ", ")})
	}

	for _, v := range spec.Views {
		g.Nodes = append(g.Nodes, Node{Name: v.Name, Kind: v.Kind(), Detail: describe(&v)})
		if v.Join != nil {
			g.Edges = append(g.Edges,
				Edge{From: v.Join.Left, To: v.Name, Label: "left"},
				Edge{From: v.Join.Right, To: v.Name, Label: "right"})
			continue
		}
		g.Edges = append(g.Edges, Edge{From: v.Source, To: v.Name})
	}

	return g
}

func describe(v *graph.ViewSpec) string {
	switch {
	case v.Filter != nil:
		return fmt.Sprintf("%s %s %v", v.Filter.Column, v.Filter.Op, v.Filter.Value)
	case v.Sort != nil:
		if v.Sort.Descending {
			return v.Sort.Column + " desc"
		}
		return v.Sort.Column + " asc"
	case v.Aggregate != nil:
		cols := util.Map(func(c graph.AggregateColumnSpec) string {
			return fmt.Sprintf("%s=%s(%s)", c.Name, c.Op, c.Source)
		}, v.Aggregate.Columns)
		ret := strings.Join(cols, ", ")
		if len(v.Aggregate.GroupBy) > 0 {
			ret += " by " + strings.Join(v.Aggregate.GroupBy, ", ")
		}
		return ret
	case v.Join != nil:
		typ := v.Join.Type
		if typ == "" {
			typ = "inner"
		}
		return fmt.Sprintf("%s %s=%s", typ, v.Join.LeftKey, v.Join.RightKey)
	}
	return ""
}

// IsTerminal reports whether no view reads the node.
func (g *Graph) IsTerminal(name string) bool {
	for _, e := range g.Edges {
		if e.From == name {
			return false
		}
	}
	return true
}

// BuildDotGraph creates a dot.Graph from the visualization graph. The result can be rendered in
// different formats.
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		label := n.Label()
		node := graph.Node(n.Name).Attr("fontname", "helvetica")
		switch {
		case n.Kind == "table":
			node.Attr("label", label).
				Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen")
		case g.IsTerminal(n.Name):
			node.Attr("label", label).
				Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightcyan")
		default:
			node.Attr("label", label).
				Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightblue").
				Attr("color", "darkblue").
				Attr("penwidth", "2")
		}
		nodes[n.Name] = node
	}

	addEdges(graph, nodes, g.Edges)
	return graph
}

// Label returns the single-line node label.
func (n Node) Label() string {
	if n.Kind == "table" {
		return fmt.Sprintf("%s (%s)", n.Name, n.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", n.Name, n.Kind, n.Detail)
}

func addEdges(graph *dot.Graph, nodes map[string]dot.Node, edges []Edge) {
	for _, e := range edges {
		from, ok := nodes[e.From]
		if !ok {
			continue
		}
		edge := graph.Edge(from, nodes[e.To]).
			Attr("fontname", "helvetica").
			Attr("fontsize", "10")
		if e.Label != "" {
			edge.Attr("label", e.Label)
		}
	}
}
