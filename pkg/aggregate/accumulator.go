package aggregate

import (
	"fmt"

	"github.com/tobshub/go-sortedmap"
	"golang.org/x/exp/constraints"

	"github.com/l7mp/dtable/pkg/table"
)

// Op is an aggregation function.
type Op int

const (
	Count Op = iota + 1
	Sum
	Min
	Max
	Average
)

func (o Op) String() string {
	switch o {
	case Count:
		return "count"
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	case Average:
		return "average"
	default:
		return "<unknown>"
	}
}

// ParseOp parses an aggregation function name.
func ParseOp(s string) (Op, error) {
	switch s {
	case "count":
		return Count, nil
	case "sum":
		return Sum, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "avg", "average":
		return Average, nil
	}
	return 0, fmt.Errorf("unknown aggregation %q", s)
}

// Number is the set of column types that can be summed and averaged.
type Number interface {
	table.Scalar
	constraints.Integer | constraints.Float
}

// Ordered is the set of column types with a natural order.
type Ordered interface {
	table.Scalar
	constraints.Ordered
}

// state is the accumulator of a single group. add and remove must accept contributions in any
// order.
type state[V table.Scalar] interface {
	add(row int)
	remove(row int)
	update(row int)
	value() V
}

// count tracks the contributing rows.
type count struct {
	rows map[int]struct{}
}

func newCount() *count { return &count{rows: map[int]struct{}{}} }

func (s *count) add(row int)    { s.rows[row] = struct{}{} }
func (s *count) remove(row int) { delete(s.rows, row) }
func (s *count) update(int)     {}
func (s *count) value() int     { return len(s.rows) }

// sum keeps a running total and the value each row contributed to it.
type sum[T Number] struct {
	src     table.Reader[T]
	total   T
	contrib map[int]T
}

func newSum[T Number](src table.Reader[T]) *sum[T] {
	return &sum[T]{src: src, contrib: map[int]T{}}
}

func (s *sum[T]) add(row int) {
	v := s.src.Get(row)
	s.contrib[row] = v
	s.total += v
}

func (s *sum[T]) remove(row int) {
	v, ok := s.contrib[row]
	if !ok {
		return
	}
	delete(s.contrib, row)
	s.total -= v
}

func (s *sum[T]) update(row int) {
	s.remove(row)
	s.add(row)
}

func (s *sum[T]) value() T { return s.total }

// average is a sum divided by the number of contributions, 0 for an empty group.
type average[T Number] struct {
	*sum[T]
}

func newAverage[T Number](src table.Reader[T]) *average[T] {
	return &average[T]{sum: newSum(src)}
}

func (s *average[T]) value() float64 {
	if len(s.contrib) == 0 {
		return 0
	}
	return float64(s.total) / float64(len(s.contrib))
}

type ref[T Ordered] struct {
	val T
	n   int
}

// extreme keeps the contributed values in a sorted multiset and reports the first one. Max uses a
// reversed order.
type extreme[T Ordered] struct {
	src     table.Reader[T]
	less    func(a, b T) bool
	values  *sortedmap.SortedMap[T, *ref[T]]
	contrib map[int]T
	cur     T
}

func newExtreme[T Ordered](src table.Reader[T], reversed bool) *extreme[T] {
	less := func(a, b T) bool { return a < b }
	if reversed {
		less = func(a, b T) bool { return a > b }
	}
	return &extreme[T]{
		src:     src,
		less:    less,
		values:  sortedmap.New[T, *ref[T]](0, func(a, b *ref[T]) bool { return less(a.val, b.val) }),
		contrib: map[int]T{},
	}
}

func (s *extreme[T]) add(row int) {
	v := s.src.Get(row)
	s.contrib[row] = v
	if r, ok := s.values.Get(v); ok {
		r.n++
		return
	}
	s.values.Insert(v, &ref[T]{val: v, n: 1})
	if s.values.Len() == 1 || s.less(v, s.cur) {
		s.cur = v
	}
}

func (s *extreme[T]) remove(row int) {
	v, ok := s.contrib[row]
	if !ok {
		return
	}
	delete(s.contrib, row)
	r, ok := s.values.Get(v)
	if !ok {
		return
	}
	if r.n--; r.n > 0 {
		return
	}
	s.values.Delete(v)
	if v == s.cur {
		s.refresh()
	}
}

func (s *extreme[T]) update(row int) {
	s.remove(row)
	s.add(row)
}

func (s *extreme[T]) value() T { return s.cur }

func (s *extreme[T]) refresh() {
	var zero T
	s.cur = zero
	s.values.IterFunc(false, func(rec sortedmap.Record[T, *ref[T]]) bool {
		s.cur = rec.Key
		return false
	})
}
