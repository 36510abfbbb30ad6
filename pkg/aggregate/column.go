package aggregate

import (
	"fmt"

	"github.com/l7mp/dtable/pkg/table"
)

// Column declares an aggregate column: Op applied to the Source column of every group.
type Column struct {
	Name   string
	Op     Op
	Source string
}

// CountOf declares a column counting the rows of each group.
func CountOf(name, source string) Column { return Column{Name: name, Op: Count, Source: source} }

// SumOf declares a column summing source over each group.
func SumOf(name, source string) Column { return Column{Name: name, Op: Sum, Source: source} }

// MinOf declares a column holding the smallest source value of each group.
func MinOf(name, source string) Column { return Column{Name: name, Op: Min, Source: source} }

// MaxOf declares a column holding the largest source value of each group.
func MaxOf(name, source string) Column { return Column{Name: name, Op: Max, Source: source} }

// AverageOf declares a column averaging source over each group.
func AverageOf(name, source string) Column { return Column{Name: name, Op: Average, Source: source} }

func (c Column) String() string { return fmt.Sprintf("%s=%s(%s)", c.Name, c.Op, c.Source) }

// binding is an aggregate column bound to a source table, holding one accumulator per output row.
type binding interface {
	spec() Column
	output() table.Column
	open(out int)
	close(out int)
	add(out, row int)
	remove(out, row int)
	update(out, row int)
	value(out int) any
}

type aggregator[V table.Scalar] struct {
	col      Column
	states   []state[V]
	newState func() state[V]
	out      *table.Func[V]
}

func newAggregator[V table.Scalar](c Column, newState func() state[V]) *aggregator[V] {
	a := &aggregator[V]{col: c, newState: newState}
	a.out = table.NewFunc(c.Name, a.get)
	return a
}

func (a *aggregator[V]) spec() Column         { return a.col }
func (a *aggregator[V]) output() table.Column { return a.out }
func (a *aggregator[V]) add(out, row int)     { a.states[out].add(row) }
func (a *aggregator[V]) remove(out, row int)  { a.states[out].remove(row) }
func (a *aggregator[V]) update(out, row int)  { a.states[out].update(row) }
func (a *aggregator[V]) value(out int) any    { return a.get(out) }
func (a *aggregator[V]) close(out int)        { a.states[out] = nil }

func (a *aggregator[V]) open(out int) {
	for len(a.states) <= out {
		a.states = append(a.states, nil)
	}
	a.states[out] = a.newState()
}

func (a *aggregator[V]) get(out int) V {
	if out < 0 || out >= len(a.states) || a.states[out] == nil {
		var zero V
		return zero
	}
	return a.states[out].value()
}

// bind resolves the source column of an aggregate and picks the accumulator for its type.
func bind(src table.Table, c Column) (binding, error) {
	col, err := src.Column(c.Source)
	if err != nil {
		return nil, err
	}

	switch c.Op {
	case Count:
		return newAggregator(c, func() state[int] { return newCount() }), nil
	case Sum, Average:
		switch col.Type() {
		case table.TypeInt:
			return numeric[int](col, c), nil
		case table.TypeInt64:
			return numeric[int64](col, c), nil
		case table.TypeFloat64:
			return numeric[float64](col, c), nil
		}
	case Min, Max:
		switch col.Type() {
		case table.TypeInt:
			return ordered[int](col, c), nil
		case table.TypeInt64:
			return ordered[int64](col, c), nil
		case table.TypeFloat64:
			return ordered[float64](col, c), nil
		case table.TypeString:
			return ordered[string](col, c), nil
		}
	default:
		return nil, fmt.Errorf("aggregate column %q: unknown aggregation %d", c.Name, c.Op)
	}

	return nil, table.NewUnsupportedOperationError(src.Name(),
		fmt.Sprintf("%s over %s column %q", c.Op, col.Type(), c.Source))
}

func numeric[T Number](col table.Column, c Column) binding {
	r := col.(table.Reader[T])
	if c.Op == Sum {
		return newAggregator(c, func() state[T] { return newSum(r) })
	}
	return newAggregator(c, func() state[float64] { return newAverage(r) })
}

func ordered[T Ordered](col table.Column, c Column) binding {
	r := col.(table.Reader[T])
	return newAggregator(c, func() state[T] { return newExtreme(r, c.Op == Max) })
}
