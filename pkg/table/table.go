package table

import (
	"github.com/go-logr/logr"
)

// Table is the read and subscription surface shared by base tables and every derived table.
type Table interface {
	// Name returns the table name.
	Name() string
	// RowCount returns the number of live rows.
	RowCount() int
	// Rows returns the live row ids in the table's stable replay order.
	Rows() []int
	// IsLive reports whether row is a live row.
	IsLive(row int) bool
	// Columns returns the columns in declaration order.
	Columns() []Column
	// Column looks up a column by name.
	Column(name string) (Column, error)
	// ColumnAt looks up a column by position.
	ColumnAt(i int) (Column, error)
	// Subscribe registers an observer for change events.
	Subscribe(Observer) *Subscription
	// ReplayRows emits one synthetic Add event per live row to the observer.
	ReplayRows(Observer) error
	// GetRowAt maps a row of this table to the row of the immediate source backing it.
	GetRowAt(position int) int
	// GetPositionOfRow maps a source row to the row of this table, or -1.
	GetPositionOfRow(row int) int
}

// Writable is a table that accepts direct mutations. Only base tables are writable.
type Writable interface {
	Table
	AddRow() (int, error)
	DeleteRow(row int) error
	Set(column string, row int, value any) error
}

// Options configures derived tables.
type Options struct {
	// Name is the name of the derived table. Operators pick a default from the source name.
	Name string
	// Logger is the logger, defaults to a discarding logger.
	Logger *logr.Logger
}

// GetLogger returns the configured logger or a discarding one.
func (o Options) GetLogger() logr.Logger {
	if o.Logger == nil {
		return logr.Discard()
	}
	return *o.Logger
}

// NameOr returns the configured name or def.
func (o Options) NameOr(def string) string {
	if o.Name == "" {
		return def
	}
	return o.Name
}

// GetValue reads a typed value from a table.
func GetValue[T Scalar](t Table, column string, row int) (T, error) {
	var zero T
	c, err := t.Column(column)
	if err != nil {
		return zero, err
	}
	r, ok := c.(Reader[T])
	if !ok {
		return zero, NewTypeMismatchError(column, c.Type(), zero)
	}
	if !t.IsLive(row) {
		return zero, NewInvalidRowError(t.Name(), row)
	}
	return r.Get(row), nil
}

// Value reads an untyped value from a table.
func Value(t Table, column string, row int) (any, error) {
	c, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	if !t.IsLive(row) {
		return nil, NewInvalidRowError(t.Name(), row)
	}
	return c.Any(row), nil
}

// SetValue writes a typed value. Derived tables are read-only.
func SetValue[T Scalar](t Table, column string, row int, v T) error {
	w, ok := t.(Writable)
	if !ok {
		return NewUnsupportedOperationError(t.Name(), "SetValue on a derived table")
	}
	return w.Set(column, row, v)
}

// ColumnOf returns a typed reader for a column.
func ColumnOf[T Scalar](t Table, column string) (Reader[T], error) {
	c, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	r, ok := c.(Reader[T])
	if !ok {
		var zero T
		return nil, NewTypeMismatchError(column, c.Type(), zero)
	}
	return r, nil
}

// Replay emits an Add event for every live row of the table in Rows order.
func Replay(t Table, o Observer) error {
	for _, row := range t.Rows() {
		if err := o.OnEvent(AddEvent(row)); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeColumn observes a single column: fn is called for Add and Delete events and for the
// Update events naming the column.
func SubscribeColumn(t Table, column string, fn func(Event) error) (*Subscription, error) {
	if _, err := t.Column(column); err != nil {
		return nil, err
	}
	return t.Subscribe(ObserverFunc(func(ev Event) error {
		if ev.Kind == Update && !ev.Names(column) {
			return nil
		}
		return fn(ev)
	})), nil
}
