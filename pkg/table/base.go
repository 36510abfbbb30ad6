package table

import (
	"fmt"
	"slices"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/rowslot"
)

var _ Writable = &Base{}

// Base is an anchor table whose columns are the primary storage. Every graph of derived tables is
// rooted at one or more base tables.
type Base struct {
	*View
	slots    *rowslot.Allocator
	fields   map[string]Field
	indexes  map[string]map[any][]int
	mutating bool
}

// NewBase creates an empty base table.
func NewBase(name string) *Base {
	return &Base{
		View:    NewView(name, logr.Discard()),
		slots:   rowslot.New(),
		fields:  map[string]Field{},
		indexes: map[string]map[any][]int{},
	}
}

// WithLogger sets the logger.
func (t *Base) WithLogger(log logr.Logger) *Base {
	t.View.log = log.WithName("table").WithValues("table", t.Name())
	return t
}

// AddColumn registers a column. Storage columns are materialized for every live row, calculated
// columns are registered with their dependencies. Other columns are rejected.
func (t *Base) AddColumn(c Column) error {
	switch col := c.(type) {
	case Field:
		if err := t.RegisterColumn(col); err != nil {
			return err
		}
		for _, row := range t.slots.Live() {
			col.AddField(row)
		}
		t.fields[col.Name()] = col
	case CalculatedColumn:
		return t.RegisterColumn(col)
	default:
		return NewUnsupportedOperationError(t.Name(),
			fmt.Sprintf("AddColumn of a non-storage column %q", c.Name()))
	}
	return nil
}

// AddColumnOf creates and registers a typed storage column.
func AddColumnOf[T Scalar](t *Base, name string) (*Store[T], error) {
	s := NewStore[T](name)
	if err := t.AddColumn(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (t *Base) RowCount() int             { return t.slots.RowCount() }
func (t *Base) Rows() []int               { return t.slots.Live() }
func (t *Base) IsLive(row int) bool       { return t.slots.IsLive(row) }
func (t *Base) GetRowAt(position int) int { return position }

func (t *Base) GetPositionOfRow(row int) int {
	if !t.slots.IsLive(row) {
		return -1
	}
	return row
}

// ReplayRows emits an Add event per live row in ascending row order.
func (t *Base) ReplayRows(o Observer) error { return Replay(t, o) }

// AddRow allocates a row, fills every column with its default value and emits an Add event.
func (t *Base) AddRow() (int, error) {
	if t.mutating {
		return -1, NewReentrantMutationError(t.Name(), "AddRow")
	}
	row := t.slots.Allocate()
	for _, c := range t.columns {
		if f, ok := t.fields[c.Name()]; ok {
			f.AddField(row)
			t.index(c.Name(), row)
		}
	}
	return row, t.emit(AddEvent(row))
}

// DeleteRow clears every column at row, frees the row and emits a Delete event.
func (t *Base) DeleteRow(row int) error {
	if t.mutating {
		return NewReentrantMutationError(t.Name(), "DeleteRow")
	}
	if !t.slots.IsLive(row) {
		return NewInvalidRowError(t.Name(), row)
	}
	for name, f := range t.fields {
		t.unindex(name, row)
		f.ClearField(row)
	}
	if err := t.slots.Free(row); err != nil {
		return fmt.Errorf("table %q: %w", t.Name(), err)
	}
	return t.emit(DeleteEvent(row))
}

// Set writes value at (column, row) and emits an Update event naming the column.
func (t *Base) Set(column string, row int, value any) error {
	if t.mutating {
		return NewReentrantMutationError(t.Name(), "SetValue")
	}
	f, ok := t.fields[column]
	if !ok {
		if t.HasColumn(column) {
			return NewUnsupportedOperationError(t.Name(),
				fmt.Sprintf("SetValue on calculated column %q", column))
		}
		return NewUnknownColumnError(t.Name(), column)
	}
	if !t.slots.IsLive(row) {
		return NewInvalidRowError(t.Name(), row)
	}
	t.unindex(column, row)
	if err := f.SetAny(row, value); err != nil {
		t.index(column, row)
		return err
	}
	t.index(column, row)
	return t.emit(UpdateEvent(row, column))
}

// SetValue is a convenience wrapper around Set.
func (t *Base) SetValue(column string, row int, value any) error {
	return t.Set(column, row, value)
}

func (t *Base) emit(ev Event) error {
	t.mutating = true
	defer func() { t.mutating = false }()
	return t.Emit(ev)
}

// AddIndex maintains a value to row index for a storage column, enabling Find.
func (t *Base) AddIndex(column string) error {
	f, ok := t.fields[column]
	if !ok {
		return NewUnknownColumnError(t.Name(), column)
	}
	idx := map[any][]int{}
	for _, row := range t.slots.Live() {
		v := f.Any(row)
		idx[v] = append(idx[v], row)
	}
	t.indexes[column] = idx
	return nil
}

// Find returns the first indexed live row holding value in column, or -1.
func (t *Base) Find(column string, value any) (int, error) {
	idx, ok := t.indexes[column]
	if !ok {
		if !t.HasColumn(column) {
			return -1, NewUnknownColumnError(t.Name(), column)
		}
		return -1, NewUnsupportedOperationError(t.Name(),
			fmt.Sprintf("Find on non-indexed column %q", column))
	}
	rows := idx[value]
	if len(rows) == 0 {
		return -1, nil
	}
	return rows[0], nil
}

func (t *Base) index(column string, row int) {
	idx, ok := t.indexes[column]
	if !ok {
		return
	}
	v := t.fields[column].Any(row)
	idx[v] = append(idx[v], row)
}

func (t *Base) unindex(column string, row int) {
	idx, ok := t.indexes[column]
	if !ok {
		return
	}
	v := t.fields[column].Any(row)
	rows := idx[v]
	if i := slices.Index(rows, row); i >= 0 {
		rows = slices.Delete(rows, i, i+1)
	}
	if len(rows) == 0 {
		delete(idx, v)
	} else {
		idx[v] = rows
	}
}
