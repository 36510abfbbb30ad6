package filter

import (
	"fmt"
	"strings"

	"github.com/l7mp/dtable/pkg/table"
)

// Predicate decides row visibility. Columns lists the source columns the predicate reads: an
// Update naming one of them triggers re-evaluation. Predicates closing over external state must
// be re-evaluated explicitly with Table.PredicateChanged.
type Predicate interface {
	Columns() []string
	Evaluate(src table.Table, row int) (bool, error)
	fmt.Stringer
}

type funcPredicate struct {
	columns []string
	fn      func(src table.Table, row int) (bool, error)
	name    string
}

// NewPredicate creates a predicate from a function reading the given columns.
func NewPredicate(fn func(src table.Table, row int) (bool, error), columns ...string) Predicate {
	return &funcPredicate{
		columns: columns,
		fn:      fn,
		name:    fmt.Sprintf("func(%s)", strings.Join(columns, ",")),
	}
}

func (p *funcPredicate) Columns() []string { return p.columns }
func (p *funcPredicate) String() string    { return p.name }

func (p *funcPredicate) Evaluate(src table.Table, row int) (bool, error) {
	return p.fn(src, row)
}

// ColumnPredicate creates a predicate over a single typed column.
func ColumnPredicate[T table.Scalar](column string, fn func(T) bool) Predicate {
	return &funcPredicate{
		columns: []string{column},
		fn: func(src table.Table, row int) (bool, error) {
			v, err := table.GetValue[T](src, column, row)
			if err != nil {
				return false, err
			}
			return fn(v), nil
		},
		name: fmt.Sprintf("%s(%s)", column, table.TypeOf[T]()),
	}
}

// Op is a comparison operator understood by Compare.
type Op string

const (
	Eq       Op = "eq"
	Ne       Op = "ne"
	Lt       Op = "lt"
	Le       Op = "le"
	Gt       Op = "gt"
	Ge       Op = "ge"
	Prefix   Op = "prefix"
	Suffix   Op = "suffix"
	Contains Op = "contains"
)

// Compare creates a predicate comparing a column with a constant. The constant is coerced to the
// column type when the predicate is first evaluated.
func Compare(column string, op Op, value any) Predicate {
	var (
		bound  bool
		target any
	)
	return &funcPredicate{
		columns: []string{column},
		name:    fmt.Sprintf("%s %s %v", column, op, value),
		fn: func(src table.Table, row int) (bool, error) {
			c, err := src.Column(column)
			if err != nil {
				return false, err
			}
			if !bound {
				if target, err = c.Type().Coerce(value); err != nil {
					return false, err
				}
				bound = true
			}
			return compare(c.Any(row), op, target)
		},
	}
}

func compare(v any, op Op, target any) (bool, error) {
	switch op {
	case Eq:
		return v == target, nil
	case Ne:
		return v != target, nil
	}

	switch a := v.(type) {
	case string:
		b := target.(string)
		switch op {
		case Prefix:
			return strings.HasPrefix(a, b), nil
		case Suffix:
			return strings.HasSuffix(a, b), nil
		case Contains:
			return strings.Contains(a, b), nil
		}
		return ordered(strings.Compare(a, b), op)
	case int:
		return ordered(cmpOrdered(a, target.(int)), op)
	case int64:
		return ordered(cmpOrdered(a, target.(int64)), op)
	case float64:
		return ordered(cmpOrdered(a, target.(float64)), op)
	}
	return false, fmt.Errorf("operator %q not supported for %T", op, v)
}

func cmpOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func ordered(c int, op Op) (bool, error) {
	switch op {
	case Lt:
		return c < 0, nil
	case Le:
		return c <= 0, nil
	case Gt:
		return c > 0, nil
	case Ge:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}
