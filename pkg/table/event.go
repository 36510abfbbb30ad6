package table

import (
	"fmt"
	"slices"
	"strings"
)

// EventKind is the type of a change event.
type EventKind int

const (
	Add EventKind = iota + 1
	Update
	Delete
)

func (k EventKind) String() string {
	switch k {
	case Add:
		return "add"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "<unknown>"
	}
}

// Event is a change notification. Add and Delete apply to the whole row, Update names at least one
// column.
type Event struct {
	Kind    EventKind
	Row     int
	Columns []string
}

// AddEvent returns an Add event for row.
func AddEvent(row int) Event { return Event{Kind: Add, Row: row} }

// DeleteEvent returns a Delete event for row.
func DeleteEvent(row int) Event { return Event{Kind: Delete, Row: row} }

// UpdateEvent returns an Update event naming columns.
func UpdateEvent(row int, columns ...string) Event {
	return Event{Kind: Update, Row: row, Columns: columns}
}

// Names reports whether the event names the given column.
func (e Event) Names(column string) bool {
	return slices.Contains(e.Columns, column)
}

// NamesAny reports whether the event names any of the given columns.
func (e Event) NamesAny(columns []string) bool {
	for _, c := range columns {
		if e.Names(c) {
			return true
		}
	}
	return false
}

// WithRow returns a copy of the event relocated to another row.
func (e Event) WithRow(row int) Event {
	e.Row = row
	return e
}

func (e Event) String() string {
	if e.Kind == Update {
		return fmt.Sprintf("%s(row=%d, columns=[%s])", e.Kind, e.Row, strings.Join(e.Columns, ","))
	}
	return fmt.Sprintf("%s(row=%d)", e.Kind, e.Row)
}

// Observer receives change events. A non-nil error aborts the notification cascade and is returned
// to the caller of the mutation that started it.
type Observer interface {
	OnEvent(Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event) error

func (f ObserverFunc) OnEvent(e Event) error { return f(e) }
