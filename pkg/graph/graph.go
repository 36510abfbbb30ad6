// Package graph materializes a declarative table graph: base tables plus a set of views built from
// the filter, sort, aggregate and join operators. Views may be stacked on top of other views; the
// graph builds them in dependency order.
package graph

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/internal/dag"
	"github.com/l7mp/dtable/pkg/aggregate"
	"github.com/l7mp/dtable/pkg/filter"
	"github.com/l7mp/dtable/pkg/join"
	"github.com/l7mp/dtable/pkg/sorted"
	"github.com/l7mp/dtable/pkg/table"
	"github.com/l7mp/dtable/pkg/util"
)

// Graph is a live table graph.
type Graph struct {
	spec   *Spec
	deps   *dag.Graph
	order  []string
	tables map[string]table.Table
	bases  map[string]*table.Base
	kinds  map[string]string
	closer []func()
	log    logr.Logger
}

// Build creates the tables and views of a spec.
func Build(spec *Spec, log logr.Logger) (*Graph, error) {
	deps, err := spec.Dependencies()
	if err != nil {
		return nil, err
	}
	order, err := deps.Sort()
	if err != nil {
		return nil, err
	}

	g := &Graph{
		spec:   spec,
		deps:   deps,
		order:  order,
		tables: map[string]table.Table{},
		bases:  map[string]*table.Base{},
		kinds:  map[string]string{},
		log:    log.WithName("graph"),
	}

	views := map[string]*ViewSpec{}
	for i := range spec.Views {
		views[spec.Views[i].Name] = &spec.Views[i]
	}
	for i := range spec.Tables {
		t, err := g.buildTable(&spec.Tables[i])
		if err != nil {
			return nil, err
		}
		g.tables[t.Name()] = t
		g.bases[t.Name()] = t
		g.kinds[t.Name()] = "table"
	}

	for _, name := range order {
		v, ok := views[name]
		if !ok {
			continue
		}
		if err := g.buildView(v); err != nil {
			g.Close()
			return nil, fmt.Errorf("view %q: %w", v.Name, err)
		}
		g.kinds[name] = v.Kind()
	}

	g.log.V(2).Info("graph ready", "tables", len(spec.Tables), "views", len(spec.Views),
		"order", util.Stringify(order))

	return g, nil
}

func (g *Graph) buildTable(spec *TableSpec) (*table.Base, error) {
	t := table.NewBase(spec.Name).WithLogger(g.log)
	for _, c := range spec.Columns {
		typ, err := table.ParseColumnType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", spec.Name, err)
		}
		col, err := table.NewStoreOf(c.Name, typ)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", spec.Name, err)
		}
		if err := t.AddColumn(col); err != nil {
			return nil, err
		}
	}
	for _, c := range spec.Indexes {
		if err := t.AddIndex(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

type closer interface {
	table.Table
	Close()
}

func (g *Graph) buildView(v *ViewSpec) error {
	opts := table.Options{Name: v.Name, Logger: &g.log}

	var (
		t   closer
		err error
	)
	switch {
	case v.Filter != nil:
		pred := filter.Compare(v.Filter.Column, v.Filter.Op, v.Filter.Value)
		t, err = filter.New(g.tables[v.Source], pred, opts)
	case v.Sort != nil:
		t, err = sorted.ByColumn(g.tables[v.Source], v.Sort.Column, v.Sort.Descending, opts)
	case v.Aggregate != nil:
		spec := aggregate.Spec{GroupBy: v.Aggregate.GroupBy}
		for _, c := range v.Aggregate.Columns {
			op, perr := aggregate.ParseOp(c.Op)
			if perr != nil {
				return perr
			}
			spec.Columns = append(spec.Columns, aggregate.Column{Name: c.Name, Op: op, Source: c.Source})
		}
		t, err = aggregate.New(g.tables[v.Source], spec, opts)
	case v.Join != nil:
		typ, perr := join.ParseType(v.Join.Type)
		if perr != nil {
			return perr
		}
		t, err = join.New(join.Spec{
			Left:     g.tables[v.Join.Left],
			Right:    g.tables[v.Join.Right],
			LeftKey:  v.Join.LeftKey,
			RightKey: v.Join.RightKey,
			Type:     typ,
		}, opts)
	}
	if err != nil {
		return err
	}

	g.tables[v.Name] = t
	g.closer = append(g.closer, t.Close)
	return nil
}

// Spec returns the spec the graph was built from.
func (g *Graph) Spec() *Spec { return g.spec }

// Dependencies returns the dependency graph between tables.
func (g *Graph) Dependencies() *dag.Graph { return g.deps }

// Names returns the table and view names in build order.
func (g *Graph) Names() []string { return g.order }

// Kind returns "table" for base tables and the operator name for views.
func (g *Graph) Kind(name string) string { return g.kinds[name] }

// Table returns a table or view by name.
func (g *Graph) Table(name string) (table.Table, error) {
	t, ok := g.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

// Base returns a base table by name.
func (g *Graph) Base(name string) (*table.Base, error) {
	t, ok := g.bases[name]
	if !ok {
		if _, ok := g.tables[name]; ok {
			return nil, table.NewUnsupportedOperationError(name, "write to a view")
		}
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

// Close detaches every view from its sources, last built first.
func (g *Graph) Close() {
	for i := len(g.closer) - 1; i >= 0; i-- {
		g.closer[i]()
	}
	g.closer = nil
}
