// Package sorted implements the sort operator: a derived table presenting the rows of a source table
// in key order.
//
// The row ids of a sorted table are positions: row i is the i-th smallest row according to the
// comparator, ties broken by source row id. Every source event becomes exactly one event at the
// binary-searched position of the row it concerns. Rows shifted by an insert, a removal or a move
// get no events of their own; the operator raises the positions-changed signal instead, and
// consumers needing stable row ids resolve positions through GetRowAt or a
// table.PositionTracker.
package sorted

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/table"
)

// Interface is the type-erased surface of a sorted table.
type Interface interface {
	table.Positional
	// Close detaches the table from its source.
	Close()
}

var _ Interface = &Table[int]{}

type entry[T table.Scalar] struct {
	key T
	row int
}

// Table is a sorted view of a source table keyed by a column of type T.
type Table[T table.Scalar] struct {
	*table.View
	source  table.Table
	column  string
	key     table.Reader[T]
	cmp     func(a, b T) int
	entries []entry[T]
	keys    map[int]T // source row -> current key
	moved   table.Publisher
	sub     *table.Subscription
	log     logr.Logger
}

// New creates a table sorting src by column in ascending order of cmp. A positional source is
// replaced by the table it orders.
func New[T table.Scalar](src table.Table, column string, cmp func(a, b T) int, opts table.Options) (*Table[T], error) {
	src = table.Unordered(src)
	name := opts.NameOr(fmt.Sprintf("sort(%s,%s)", src.Name(), column))
	log := opts.GetLogger().WithName("sort").WithValues("table", name)

	key, err := table.ColumnOf[T](src, column)
	if err != nil {
		return nil, fmt.Errorf("sort %q: %w", name, err)
	}

	s := &Table[T]{
		View:   table.NewView(name, log),
		source: src,
		column: column,
		key:    key,
		cmp:    cmp,
		keys:   map[int]T{},
		log:    log,
	}

	for _, c := range src.Columns() {
		if err := s.RegisterColumn(c.Derive("", s.GetRowAt)); err != nil {
			return nil, err
		}
	}

	if err := src.ReplayRows(table.ObserverFunc(s.process)); err != nil {
		return nil, err
	}
	s.sub = src.Subscribe(table.ObserverFunc(s.process))

	s.log.V(2).Info("sort ready", "source", src.Name(), "column", column, "rows", s.RowCount())

	return s, nil
}

// ByColumn creates a sorted table over a column of any supported type using the natural order of
// the column type. Booleans sort false first.
func ByColumn(src table.Table, column string, descending bool, opts table.Options) (Interface, error) {
	c, err := src.Column(column)
	if err != nil {
		return nil, err
	}

	switch c.Type() {
	case table.TypeInt:
		return ordered[int](src, column, descending, opts)
	case table.TypeInt64:
		return ordered[int64](src, column, descending, opts)
	case table.TypeFloat64:
		return ordered[float64](src, column, descending, opts)
	case table.TypeString:
		return ordered[string](src, column, descending, opts)
	case table.TypeBool:
		s, err := New(src, column, direction(compareBool, descending), opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, table.NewUnsupportedOperationError(src.Name(),
		fmt.Sprintf("sort on column %q of type %s", column, c.Type()))
}

func ordered[T int | int64 | float64 | string](src table.Table, column string, descending bool, opts table.Options) (Interface, error) {
	s, err := New(src, column, direction(cmp.Compare[T], descending), opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Reverse inverts a comparator.
func Reverse[T any](cmp func(a, b T) int) func(a, b T) int {
	return func(a, b T) int { return cmp(b, a) }
}

func direction[T any](cmp func(a, b T) int, descending bool) func(a, b T) int {
	if descending {
		return Reverse(cmp)
	}
	return cmp
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// Close detaches the table from its source.
func (s *Table[T]) Close() { s.sub.Close() }

// Source returns the source table.
func (s *Table[T]) Source() table.Table { return s.source }

// SortColumn returns the name of the key column.
func (s *Table[T]) SortColumn() string { return s.column }

func (s *Table[T]) RowCount() int       { return len(s.entries) }
func (s *Table[T]) IsLive(row int) bool { return row >= 0 && row < len(s.entries) }

// Rows returns the positions 0..RowCount-1.
func (s *Table[T]) Rows() []int {
	rows := make([]int, len(s.entries))
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// ReplayRows emits an Add event per position in ascending order.
func (s *Table[T]) ReplayRows(o table.Observer) error { return table.Replay(s, o) }

// GetRowAt returns the source row at a sorted position, or -1.
func (s *Table[T]) GetRowAt(position int) int {
	if !s.IsLive(position) {
		return -1
	}
	return s.entries[position].row
}

// GetPositionOfRow returns the sorted position of a source row, or -1.
func (s *Table[T]) GetPositionOfRow(row int) int {
	key, ok := s.keys[row]
	if !ok {
		return -1
	}
	i, found := slices.BinarySearchFunc(s.entries, entry[T]{key: key, row: row}, s.compare)
	if !found {
		return -1
	}
	return i
}

// OnPositionsChanged registers a callback for the positions-changed signal.
func (s *Table[T]) OnPositionsChanged(fn func()) *table.Subscription {
	return s.moved.Subscribe(table.ObserverFunc(func(table.Event) error {
		fn()
		return nil
	}))
}

func (s *Table[T]) compare(a, b entry[T]) int {
	if c := s.cmp(a.key, b.key); c != 0 {
		return c
	}
	return cmp.Compare(a.row, b.row)
}

func (s *Table[T]) process(ev table.Event) error {
	s.log.V(4).Info("processing event", "event", ev.String())

	var err error
	switch ev.Kind {
	case table.Add:
		err = s.add(ev.Row)
	case table.Delete:
		err = s.delete(ev.Row)
	case table.Update:
		if ev.Names(s.column) {
			err = s.move(ev)
		} else if p := s.GetPositionOfRow(ev.Row); p >= 0 {
			err = s.Emit(table.UpdateEvent(p, ev.Columns...))
		} else {
			err = table.NewInvalidRowError(s.source.Name(), ev.Row)
		}
	}

	if err != nil {
		return table.NewEventError(fmt.Sprintf("sort %q", s.Name()), ev, err)
	}
	return nil
}

func (s *Table[T]) add(row int) error {
	if _, ok := s.keys[row]; ok {
		return fmt.Errorf("source row %d already sorted", row)
	}
	p := s.insert(row, s.key.Get(row))
	if err := s.Emit(table.AddEvent(p)); err != nil {
		return err
	}
	return s.shifted(p < len(s.entries)-1)
}

func (s *Table[T]) delete(row int) error {
	p := s.remove(row)
	if p < 0 {
		return table.NewInvalidRowError(s.source.Name(), row)
	}
	if err := s.Emit(table.DeleteEvent(p)); err != nil {
		return err
	}
	return s.shifted(p < len(s.entries))
}

func (s *Table[T]) move(ev table.Event) error {
	from := s.remove(ev.Row)
	if from < 0 {
		return table.NewInvalidRowError(s.source.Name(), ev.Row)
	}
	to := s.insert(ev.Row, s.key.Get(ev.Row))
	if err := s.Emit(table.UpdateEvent(to, ev.Columns...)); err != nil {
		return err
	}
	return s.shifted(from != to)
}

// shifted raises the positions-changed signal if other rows moved.
func (s *Table[T]) shifted(moved bool) error {
	if !moved {
		return nil
	}
	s.log.V(4).Info("positions changed")
	return s.moved.Publish(table.Event{})
}

func (s *Table[T]) insert(row int, key T) int {
	e := entry[T]{key: key, row: row}
	i, _ := slices.BinarySearchFunc(s.entries, e, s.compare)
	s.entries = slices.Insert(s.entries, i, e)
	s.keys[row] = key
	return i
}

func (s *Table[T]) remove(row int) int {
	i := s.GetPositionOfRow(row)
	if i < 0 {
		return -1
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	delete(s.keys, row)
	return i
}
