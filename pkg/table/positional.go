package table

import (
	"fmt"
	"slices"
)

// Positional is implemented by tables whose row ids are positions in a sequence, like the sort
// operator. An Add at p inserts a row in front of the row previously at p, a Delete at p closes the
// gap, and an Update may name a row that arrived at p from another position. The rows in between
// shift without events of their own; the table raises the positions-changed signal instead.
type Positional interface {
	Table
	// OnPositionsChanged registers a callback invoked after a mutation shifted the position of at
	// least one row that was not itself the subject of the triggering event.
	OnPositionsChanged(fn func()) *Subscription
	// Source returns the table whose rows are ordered.
	Source() Table
}

// Unordered returns a table holding the rows of t under stable row ids: t itself, or the table a
// positional table orders.
func Unordered(t Table) Table {
	for {
		p, ok := t.(Positional)
		if !ok {
			return t
		}
		t = p.Source()
	}
}

// PositionTracker mirrors the row order of a positional table and rewrites its events to name the
// stable source rows returned by GetRowAt. Feed it every event of the table, replayed ones
// included, in delivery order.
type PositionTracker struct {
	table Positional
	rows  []int // position -> source row
}

// NewPositionTracker creates a tracker for an empty mirror of t.
func NewPositionTracker(t Positional) *PositionTracker {
	return &PositionTracker{table: t}
}

// Translate updates the mirror and returns ev naming the source row.
func (p *PositionTracker) Translate(ev Event) (Event, error) {
	pos := ev.Row
	switch ev.Kind {
	case Add:
		if pos < 0 || pos > len(p.rows) {
			return ev, NewInvalidRowError(p.table.Name(), pos)
		}
		p.rows = slices.Insert(p.rows, pos, p.table.GetRowAt(pos))
	case Delete:
		if pos < 0 || pos >= len(p.rows) {
			return ev, NewInvalidRowError(p.table.Name(), pos)
		}
		ev.Row = p.rows[pos]
		p.rows = slices.Delete(p.rows, pos, pos+1)
		return ev, nil
	case Update:
		if pos < 0 || pos >= len(p.rows) {
			return ev, NewInvalidRowError(p.table.Name(), pos)
		}
		if row := p.table.GetRowAt(pos); p.rows[pos] != row {
			from := slices.Index(p.rows, row)
			if from < 0 {
				return ev, fmt.Errorf("table %q: row %d moved to position %d from nowhere",
					p.table.Name(), row, pos)
			}
			p.rows = slices.Delete(p.rows, from, from+1)
			p.rows = slices.Insert(p.rows, pos, row)
		}
	}
	ev.Row = p.rows[pos]
	return ev, nil
}

// Position returns the current mirrored position of a source row, or -1.
func (p *PositionTracker) Position(row int) int { return slices.Index(p.rows, row) }
