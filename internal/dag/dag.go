// Package dag maintains the dependency graph between the tables of a table graph: an edge runs from
// a source table to every table derived from it.
package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned by Sort when the graph has a cycle.
var ErrCycle = errors.New("dependency cycle")

type Graph struct {
	Nodes   []string
	byLabel map[string]int
	edges   map[string]map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byLabel: map[string]int{}, edges: map[string]map[string]bool{}}
}

// AddNode adds a node, returning false if it already exists.
func (g *Graph) AddNode(label string) bool {
	if _, ok := g.byLabel[label]; ok {
		return false
	}
	g.byLabel[label] = len(g.Nodes)
	g.Nodes = append(g.Nodes, label)
	g.edges[label] = map[string]bool{}
	return true
}

func (g *Graph) HasNode(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}

// AddEdge adds an edge from a source to a dependent node. Both nodes must exist.
func (g *Graph) AddEdge(from, to string) {
	g.edges[from][to] = true
}

func (g *Graph) HasEdge(from, to string) bool {
	return g.edges[from] != nil && g.edges[from][to]
}

// Edges returns the dependents of a node in declaration order.
func (g *Graph) Edges(from string) []string {
	edges := make([]string, 0, len(g.edges[from]))
	for k := range g.edges[from] {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool { return g.byLabel[edges[i]] < g.byLabel[edges[j]] })
	return edges
}

// Roots returns the nodes without an incoming edge in declaration order.
func (g *Graph) Roots() []string {
	indegree := g.indegree()
	roots := []string{}
	for _, n := range g.Nodes {
		if indegree[n] == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Sort returns the nodes in an order where every node comes after all of its sources. Ties are broken
// by declaration order.
func (g *Graph) Sort() ([]string, error) {
	indegree := g.indegree()
	ready := g.Roots()
	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, m := range g.Edges(n) {
			indegree[m]--
			if indegree[m] == 0 {
				ready = append(ready, m)
			}
		}
	}

	if len(order) < len(g.Nodes) {
		stuck := []string{}
		for _, n := range g.Nodes {
			if indegree[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

func (g *Graph) indegree() map[string]int {
	indegree := make(map[string]int, len(g.Nodes))
	for _, from := range g.Nodes {
		for to := range g.edges[from] {
			indegree[to]++
		}
	}
	return indegree
}
