package graph

import (
	"fmt"
	"os"
	"regexp"

	"sigs.k8s.io/yaml"

	"github.com/l7mp/dtable/internal/dag"
	"github.com/l7mp/dtable/pkg/aggregate"
	"github.com/l7mp/dtable/pkg/filter"
	"github.com/l7mp/dtable/pkg/join"
	"github.com/l7mp/dtable/pkg/table"
)

// Spec is the declarative description of a table graph.
type Spec struct {
	// Tables are the base tables.
	Tables []TableSpec `json:"tables"`
	// Views are derived tables. A view may use any table or view as its source.
	Views []ViewSpec `json:"views,omitempty"`
}

// TableSpec describes a base table.
type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
	// Indexes lists columns to index for lookups.
	Indexes []string `json:"indexes,omitempty"`
}

// ColumnSpec describes a storage column.
type ColumnSpec struct {
	Name string `json:"name"`
	// Type is one of int, int64, float, string or bool.
	Type string `json:"type"`
}

// ViewSpec describes a derived table. Exactly one operator must be set.
type ViewSpec struct {
	Name string `json:"name"`
	// Source is the input of single-source operators.
	Source    string         `json:"source,omitempty"`
	Filter    *FilterSpec    `json:"filter,omitempty"`
	Sort      *SortSpec      `json:"sort,omitempty"`
	Aggregate *AggregateSpec `json:"aggregate,omitempty"`
	Join      *JoinSpec      `json:"join,omitempty"`
}

// FilterSpec keeps the rows where the column compares to the value.
type FilterSpec struct {
	Column string    `json:"column"`
	Op     filter.Op `json:"op"`
	Value  any       `json:"value"`
}

// SortSpec orders rows by a column.
type SortSpec struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// AggregateSpec groups rows and computes aggregate columns per group.
type AggregateSpec struct {
	GroupBy []string              `json:"groupBy,omitempty"`
	Columns []AggregateColumnSpec `json:"columns"`
}

// AggregateColumnSpec is a single aggregate column.
type AggregateColumnSpec struct {
	Name   string `json:"name"`
	Op     string `json:"op"`
	Source string `json:"source"`
}

// JoinSpec joins two tables on equal key columns.
type JoinSpec struct {
	Left     string `json:"left"`
	Right    string `json:"right"`
	LeftKey  string `json:"leftKey"`
	RightKey string `json:"rightKey"`
	// Type is inner (default) or outer.
	Type string `json:"type,omitempty"`
}

// LoadFile reads a graph spec from a YAML or JSON file.
func LoadFile(file string) (*Spec, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(b)
}

// Parse parses and validates a graph spec.
func Parse(b []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.UnmarshalStrict(b, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse graph spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Kind returns the operator name of the view.
func (v *ViewSpec) Kind() string {
	switch {
	case v.Filter != nil:
		return "filter"
	case v.Sort != nil:
		return "sort"
	case v.Aggregate != nil:
		return "aggregate"
	case v.Join != nil:
		return "join"
	}
	return ""
}

// Inputs returns the tables the view reads.
func (v *ViewSpec) Inputs() []string {
	if v.Join != nil {
		return []string{v.Join.Left, v.Join.Right}
	}
	return []string{v.Source}
}

// Validate checks the spec for structural errors without building it.
func (s *Spec) Validate() error {
	_, err := s.Dependencies()
	return err
}

// Dependencies returns the dependency graph of the spec: an edge runs from every input to the view
// reading it.
func (s *Spec) Dependencies() (*dag.Graph, error) {
	g := dag.New()
	for _, t := range s.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("table without a name")
		}
		if err := checkName(t.Name); err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		if !g.AddNode(t.Name) {
			return nil, fmt.Errorf("table %q: duplicate name", t.Name)
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("table %q: no columns", t.Name)
		}
		for _, c := range t.Columns {
			if err := checkName(c.Name); err != nil {
				return nil, fmt.Errorf("table %q: column: %w", t.Name, err)
			}
			if _, err := table.ParseColumnType(c.Type); err != nil {
				return nil, fmt.Errorf("table %q: column %q: %w", t.Name, c.Name, err)
			}
		}
	}

	for i := range s.Views {
		v := &s.Views[i]
		if v.Name == "" {
			return nil, fmt.Errorf("view #%d without a name", i)
		}
		if err := checkName(v.Name); err != nil {
			return nil, fmt.Errorf("view %q: %w", v.Name, err)
		}
		if !g.AddNode(v.Name) {
			return nil, fmt.Errorf("view %q: duplicate name", v.Name)
		}
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("view %q: %w", v.Name, err)
		}
	}

	for i := range s.Views {
		v := &s.Views[i]
		for _, in := range v.Inputs() {
			if !g.HasNode(in) {
				return nil, fmt.Errorf("view %q: unknown source %q", v.Name, in)
			}
			if in == v.Name {
				return nil, fmt.Errorf("view %q: reads itself", v.Name)
			}
			g.AddEdge(in, v.Name)
		}
	}

	if _, err := g.Sort(); err != nil {
		return nil, err
	}
	return g, nil
}

func (v *ViewSpec) validate() error {
	n := 0
	for _, set := range []bool{v.Filter != nil, v.Sort != nil, v.Aggregate != nil, v.Join != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one of filter, sort, aggregate or join must be set, got %d", n)
	}

	if v.Join != nil {
		if v.Source != "" {
			return fmt.Errorf("join takes left and right instead of a source")
		}
		if v.Join.Left == "" || v.Join.Right == "" || v.Join.LeftKey == "" || v.Join.RightKey == "" {
			return fmt.Errorf("join requires left, right, leftKey and rightKey")
		}
		if v.Join.Type != "" {
			if _, err := join.ParseType(v.Join.Type); err != nil {
				return err
			}
		}
		return nil
	}

	if v.Source == "" {
		return fmt.Errorf("missing source")
	}
	switch {
	case v.Filter != nil:
		if v.Filter.Column == "" {
			return fmt.Errorf("filter requires a column")
		}
		switch v.Filter.Op {
		case filter.Eq, filter.Ne, filter.Lt, filter.Le, filter.Gt, filter.Ge,
			filter.Prefix, filter.Suffix, filter.Contains:
		default:
			return fmt.Errorf("unknown filter operator %q", v.Filter.Op)
		}
	case v.Sort != nil:
		if v.Sort.Column == "" {
			return fmt.Errorf("sort requires a column")
		}
	case v.Aggregate != nil:
		if len(v.Aggregate.Columns) == 0 {
			return fmt.Errorf("aggregate requires at least one column")
		}
		for _, c := range v.Aggregate.Columns {
			if err := checkName(c.Name); err != nil {
				return fmt.Errorf("aggregate column: %w", err)
			}
			if _, err := aggregate.ParseOp(c.Op); err != nil {
				return fmt.Errorf("aggregate column %q: %w", c.Name, err)
			}
		}
	}
	return nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// checkName accepts identifiers. Unquoted YAML 1.1 booleans like N or off arrive as "true" or
// "false" and are rejected.
func checkName(name string) error {
	switch {
	case name == "true" || name == "false":
		return fmt.Errorf("name %q is a YAML boolean, quote the name", name)
	case !identifier.MatchString(name):
		return fmt.Errorf("name %q is not an identifier", name)
	}
	return nil
}
