package graph

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/dtable/pkg/table"
	"github.com/l7mp/dtable/pkg/util"
)

// StepOp is a mutation kind in a script.
type StepOp string

const (
	StepAdd    StepOp = "add"
	StepSet    StepOp = "set"
	StepDelete StepOp = "delete"
)

// Script is a sequence of mutations on the base tables of a graph.
type Script struct {
	Steps []Step `json:"steps"`
}

// Step is a single mutation. Rows are referred to by labels: an add step binds its label to the new
// row, set and delete steps look it up.
type Step struct {
	Table  string         `json:"table"`
	Op     StepOp         `json:"op"`
	Row    string         `json:"row,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s/%s %s", s.Op, s.Table, s.Row, util.Stringify(s.Values))
}

// LoadScript reads a mutation script from a YAML or JSON file.
func LoadScript(file string) (*Script, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseScript(b)
}

// ParseScript parses a mutation script.
func ParseScript(b []byte) (*Script, error) {
	var s Script
	if err := yaml.UnmarshalStrict(b, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, step := range s.Steps {
		switch step.Op {
		case StepAdd:
		case StepSet, StepDelete:
			if step.Row == "" {
				return nil, fmt.Errorf("step #%d: %s requires a row label", i, step.Op)
			}
		default:
			return nil, fmt.Errorf("step #%d: unknown op %q", i, step.Op)
		}
	}
	return &s, nil
}

// Runner applies script steps to a graph.
type Runner struct {
	graph *Graph
	rows  map[string]map[string]int // table -> label -> row
	log   logr.Logger
}

// NewRunner creates a runner for a graph.
func NewRunner(g *Graph, log logr.Logger) *Runner {
	return &Runner{graph: g, rows: map[string]map[string]int{}, log: log.WithName("script")}
}

// Row returns the row bound to a label.
func (r *Runner) Row(tableName, label string) (int, bool) {
	row, ok := r.rows[tableName][label]
	return row, ok
}

// Run applies every step in order, calling after, if not nil, after each step. It stops at the
// first error.
func (r *Runner) Run(s *Script, after func(i int, step Step) error) error {
	for i, step := range s.Steps {
		if err := r.Apply(step); err != nil {
			return fmt.Errorf("step #%d (%s): %w", i, step, err)
		}
		if after != nil {
			if err := after(i, step); err != nil {
				return err
			}
		}
	}
	return nil
}

// Apply applies a single step.
func (r *Runner) Apply(step Step) error {
	t, err := r.graph.Base(step.Table)
	if err != nil {
		return err
	}
	r.log.V(4).Info("applying step", "step", step.String())

	switch step.Op {
	case StepAdd:
		row, err := t.AddRow()
		if err != nil {
			return err
		}
		if step.Row != "" {
			if r.rows[step.Table] == nil {
				r.rows[step.Table] = map[string]int{}
			}
			r.rows[step.Table][step.Row] = row
		}
		return r.set(t, row, step.Values)
	case StepSet:
		row, ok := r.Row(step.Table, step.Row)
		if !ok {
			return fmt.Errorf("unknown row label %q", step.Row)
		}
		return r.set(t, row, step.Values)
	case StepDelete:
		row, ok := r.Row(step.Table, step.Row)
		if !ok {
			return fmt.Errorf("unknown row label %q", step.Row)
		}
		delete(r.rows[step.Table], step.Row)
		return t.DeleteRow(row)
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (r *Runner) set(t *table.Base, row int, values map[string]any) error {
	for _, name := range util.Keys(values) {
		c, err := t.Column(name)
		if err != nil {
			return err
		}
		v, err := c.Type().Coerce(values[name])
		if err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		if err := t.Set(name, row, v); err != nil {
			return err
		}
	}
	return nil
}
