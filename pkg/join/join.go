// Package join implements the join operator: a derived table correlating the rows of a left and a
// right source table that hold equal values in their key columns.
//
// The operator tracks one entry per key value recording which left and which right row currently
// hold that key. In Inner mode an entry produces a joined row while both sides are present. In
// Outer mode every entry produces a joined row and the missing side reads as zero values.
//
// Rows register under a key when an Update names the key column, and on Add when the key is not
// the zero value of its type. Each side keeps at most one row per key: a row taking a key held by
// another row of the same side displaces it, and the displaced row is ignored until its key changes
// again.
package join

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/rowslot"
	"github.com/l7mp/dtable/pkg/table"
)

// Side selects a join input.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Other returns the opposite side.
func (s Side) Other() Side { return 1 - s }

// Type is the join mode.
type Type int

const (
	Inner Type = iota
	Outer
)

// ParseType parses a join mode name, the empty string meaning Inner.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "inner":
		return Inner, nil
	case "outer":
		return Outer, nil
	}
	return Inner, fmt.Errorf("unknown join type %q", s)
}

func (t Type) String() string {
	if t == Outer {
		return "outer"
	}
	return "inner"
}

// Spec describes a join.
type Spec struct {
	Left, Right       table.Table
	LeftKey, RightKey string
	Type              Type
}

// entry is the join state of a single key value.
type entry struct {
	key    any
	rows   [2]int // source row per side, -1 if absent
	joined int    // joined row, -1 if none
}

func (e *entry) empty() bool { return e.rows[Left] < 0 && e.rows[Right] < 0 }

var _ table.Table = &Table{}

// Table is a joined view of two source tables.
type Table struct {
	*table.View
	sources  [2]table.Table
	keys     [2]string
	keyCols  [2]table.Column
	zero     any
	typ      Type
	entries  map[any]*entry
	rowKeys  [2]map[int]any // source row -> registered key
	byJoined []*entry       // joined row -> entry
	slots    *rowslot.Allocator
	owner    map[string]Side
	names    [2][]string
	subs     [2]*table.Subscription
	log      logr.Logger
}

// New creates a join. Column names must be unique across the two sources and the key columns must
// have the same type. Positional sources are replaced by the tables they order.
func New(spec Spec, opts table.Options) (*Table, error) {
	spec.Left, spec.Right = table.Unordered(spec.Left), table.Unordered(spec.Right)
	name := opts.NameOr(fmt.Sprintf("join(%s,%s)", spec.Left.Name(), spec.Right.Name()))
	log := opts.GetLogger().WithName("join").WithValues("table", name)
	j := &Table{
		View:    table.NewView(name, log),
		sources: [2]table.Table{spec.Left, spec.Right},
		keys:    [2]string{spec.LeftKey, spec.RightKey},
		typ:     spec.Type,
		entries: map[any]*entry{},
		rowKeys: [2]map[int]any{{}, {}},
		slots:   rowslot.New(),
		owner:   map[string]Side{},
		log:     log,
	}

	for _, side := range []Side{Left, Right} {
		c, err := j.sources[side].Column(j.keys[side])
		if err != nil {
			return nil, fmt.Errorf("join %q: %s key: %w", name, side, err)
		}
		j.keyCols[side] = c
	}
	if lt, rt := j.keyCols[Left].Type(), j.keyCols[Right].Type(); lt != rt {
		return nil, fmt.Errorf("join %q: key %q is %s but key %q is %s: %w", name,
			spec.LeftKey, lt, spec.RightKey, rt, table.ErrTypeMismatch)
	}
	j.zero = j.keyCols[Left].Type().Zero()

	for _, side := range []Side{Left, Right} {
		rowMap := func(row int) int { return j.sourceRow(side, row) }
		for _, c := range j.sources[side].Columns() {
			if err := j.RegisterColumn(c.Derive("", rowMap)); err != nil {
				return nil, fmt.Errorf("join %q: %w", name, err)
			}
			j.owner[c.Name()] = side
			j.names[side] = append(j.names[side], c.Name())
		}
	}

	for _, side := range []Side{Left, Right} {
		if err := j.sources[side].ReplayRows(j.observer(side)); err != nil {
			return nil, err
		}
	}
	for _, side := range []Side{Left, Right} {
		j.subs[side] = j.sources[side].Subscribe(j.observer(side))
	}

	j.log.V(2).Info("join ready", "left", spec.Left.Name(), "right", spec.Right.Name(),
		"type", j.typ.String(), "rows", j.RowCount())

	return j, nil
}

// Close detaches the join from both sources.
func (j *Table) Close() {
	j.subs[Left].Close()
	j.subs[Right].Close()
}

// Source returns the source table of a side.
func (j *Table) Source(side Side) table.Table { return j.sources[side] }

// Type returns the join mode.
func (j *Table) Type() Type { return j.typ }

func (j *Table) RowCount() int        { return j.slots.RowCount() }
func (j *Table) Rows() []int          { return j.slots.Live() }
func (j *Table) IsLive(row int) bool  { return j.slots.IsLive(row) }
func (j *Table) GetRowAt(row int) int { return row }

// GetPositionOfRow is the identity on live joined rows, -1 otherwise.
func (j *Table) GetPositionOfRow(row int) int {
	if !j.slots.IsLive(row) {
		return -1
	}
	return row
}

// ReplayRows emits an Add event per joined row.
func (j *Table) ReplayRows(o table.Observer) error { return table.Replay(j, o) }

// GetRowIndex returns the row of the source owning column that backs a joined row, or -1 when the
// joined row has no row on that side or the column is unknown.
func (j *Table) GetRowIndex(column string, row int) int {
	side, ok := j.owner[column]
	if !ok {
		return -1
	}
	return j.sourceRow(side, row)
}

// Partner returns the row of the opposite side currently holding the same key as the given row of
// side, or -1.
func (j *Table) Partner(side Side, row int) int {
	key, ok := j.rowKeys[side][row]
	if !ok {
		return -1
	}
	return j.entries[key].rows[side.Other()]
}

func (j *Table) sourceRow(side Side, row int) int {
	if row < 0 || row >= len(j.byJoined) || j.byJoined[row] == nil {
		return -1
	}
	return j.byJoined[row].rows[side]
}

func (j *Table) observer(side Side) table.Observer {
	return table.ObserverFunc(func(ev table.Event) error {
		if err := j.process(side, ev); err != nil {
			return table.NewEventError(fmt.Sprintf("join %q (%s)", j.Name(), side), ev, err)
		}
		return nil
	})
}

func (j *Table) process(side Side, ev table.Event) error {
	j.log.V(4).Info("processing event", "side", side.String(), "event", ev.String())

	switch ev.Kind {
	case table.Add:
		key := j.keyCols[side].Any(ev.Row)
		if key == j.zero {
			return nil
		}
		return j.register(side, ev.Row, key)

	case table.Delete:
		return j.unregister(side, ev.Row)

	case table.Update:
		old, registered := j.rowKeys[side][ev.Row]
		if ev.Names(j.keys[side]) {
			key := j.keyCols[side].Any(ev.Row)
			switch {
			case key == j.zero:
				// a zero key leaves the row unkeyed, as on Add
				return j.unregister(side, ev.Row)
			case !registered || old != key:
				return j.register(side, ev.Row, key)
			}
		}
		if !registered {
			return nil
		}
		if e := j.entries[old]; e.joined >= 0 {
			return j.Emit(table.UpdateEvent(e.joined, ev.Columns...))
		}
	}
	return nil
}

// register associates a source row with a key, releasing its previous key first.
func (j *Table) register(side Side, row int, key any) error {
	if err := j.unregister(side, row); err != nil {
		return err
	}

	e, ok := j.entries[key]
	if !ok {
		e = &entry{key: key, rows: [2]int{-1, -1}, joined: -1}
		j.entries[key] = e
	}
	if prev := e.rows[side]; prev >= 0 {
		j.log.V(4).Info("key taken over", "side", side.String(), "key", key, "previous", prev, "row", row)
		delete(j.rowKeys[side], prev)
	}
	e.rows[side] = row
	j.rowKeys[side][row] = key

	return j.settle(e, side)
}

func (j *Table) unregister(side Side, row int) error {
	key, ok := j.rowKeys[side][row]
	if !ok {
		return nil
	}
	delete(j.rowKeys[side], row)
	e := j.entries[key]
	e.rows[side] = -1
	return j.settle(e, side)
}

// settle brings the joined row of an entry in line with the rows it holds after the row of side
// changed.
func (j *Table) settle(e *entry, side Side) error {
	want := !e.empty() && (j.typ == Outer || (e.rows[Left] >= 0 && e.rows[Right] >= 0))
	if e.empty() {
		delete(j.entries, e.key)
	}

	switch {
	case want && e.joined < 0:
		e.joined = j.slots.Allocate()
		for len(j.byJoined) <= e.joined {
			j.byJoined = append(j.byJoined, nil)
		}
		j.byJoined[e.joined] = e
		return j.Emit(table.AddEvent(e.joined))

	case !want && e.joined >= 0:
		row := e.joined
		j.byJoined[row] = nil
		e.joined = -1
		if err := j.slots.Free(row); err != nil {
			return err
		}
		return j.Emit(table.DeleteEvent(row))

	case want:
		return j.Emit(table.UpdateEvent(e.joined, j.names[side]...))
	}
	return nil
}
