// Package aggregate implements the group-by operator: a derived table with one row per distinct
// combination of group column values and a set of aggregate columns maintained incrementally.
//
// Group identity is decided by value equality of the group columns. Values are hashed to find a
// bucket and then compared one by one, so colliding hashes never merge groups. Every accumulator
// remembers what each source row contributed, which lets source rows leave their group in any
// order and after their values have already been cleared.
package aggregate

import (
	"fmt"
	"hash/maphash"
	"slices"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/rowslot"
	"github.com/l7mp/dtable/pkg/table"
)

// Spec describes a group-by.
type Spec struct {
	// GroupBy lists the group columns. No group columns yields a single group over all rows.
	GroupBy []string
	// Columns lists the aggregate columns.
	Columns []Column
}

type group struct {
	hash    uint64
	values  []any
	members map[int]struct{}
	row     int
}

var _ table.Table = &Table{}

// Table is a grouped view of a source table.
type Table struct {
	*table.View
	source    table.Table
	groupBy   []string
	groupCols []table.Column
	aggs      []binding
	seed      maphash.Seed
	buckets   map[uint64][]*group
	memberOf  map[int]*group // source row -> group
	byRow     []*group       // output row -> group
	slots     *rowslot.Allocator
	sub       *table.Subscription
	log       logr.Logger
}

// New creates a group-by over src. Output columns are the group columns followed by the aggregate
// columns, in declaration order. A positional source is replaced by the table it orders.
func New(src table.Table, spec Spec, opts table.Options) (*Table, error) {
	src = table.Unordered(src)
	name := opts.NameOr(fmt.Sprintf("aggregate(%s)", src.Name()))
	log := opts.GetLogger().WithName("aggregate").WithValues("table", name)
	a := &Table{
		View:     table.NewView(name, log),
		source:   src,
		groupBy:  spec.GroupBy,
		seed:     maphash.MakeSeed(),
		buckets:  map[uint64][]*group{},
		memberOf: map[int]*group{},
		slots:    rowslot.New(),
		log:      log,
	}

	for i, gname := range spec.GroupBy {
		c, err := src.Column(gname)
		if err != nil {
			return nil, fmt.Errorf("aggregate %q: group column: %w", name, err)
		}
		a.groupCols = append(a.groupCols, c)
		out, err := table.NewFuncOf(gname, c.Type(), func(row int) any { return a.groupValue(row, i) })
		if err != nil {
			return nil, err
		}
		if err := a.RegisterColumn(out); err != nil {
			return nil, fmt.Errorf("aggregate %q: %w", name, err)
		}
	}

	for _, c := range spec.Columns {
		b, err := bind(src, c)
		if err != nil {
			return nil, fmt.Errorf("aggregate %q: column %s: %w", name, c, err)
		}
		if err := a.RegisterColumn(b.output()); err != nil {
			return nil, fmt.Errorf("aggregate %q: %w", name, err)
		}
		a.aggs = append(a.aggs, b)
	}

	if err := src.ReplayRows(table.ObserverFunc(a.process)); err != nil {
		return nil, err
	}
	a.sub = src.Subscribe(table.ObserverFunc(a.process))

	a.log.V(2).Info("aggregate ready", "source", src.Name(), "group-by", spec.GroupBy,
		"groups", a.RowCount())

	return a, nil
}

// Close detaches the aggregate from its source.
func (a *Table) Close() { a.sub.Close() }

// Source returns the source table.
func (a *Table) Source() table.Table { return a.source }

func (a *Table) RowCount() int        { return a.slots.RowCount() }
func (a *Table) Rows() []int          { return a.slots.Live() }
func (a *Table) IsLive(row int) bool  { return a.slots.IsLive(row) }
func (a *Table) GetRowAt(row int) int { return row }

// GetPositionOfRow is the identity on live output rows, -1 otherwise.
func (a *Table) GetPositionOfRow(row int) int {
	if !a.slots.IsLive(row) {
		return -1
	}
	return row
}

// ReplayRows emits an Add event per group.
func (a *Table) ReplayRows(o table.Observer) error { return table.Replay(a, o) }

// GroupRow returns the output row of the group a source row belongs to, or -1.
func (a *Table) GroupRow(row int) int {
	if g, ok := a.memberOf[row]; ok {
		return g.row
	}
	return -1
}

// Members returns the source rows contributing to an output row in ascending order.
func (a *Table) Members(row int) []int {
	g := a.group(row)
	if g == nil {
		return nil
	}
	ret := make([]int, 0, len(g.members))
	for r := range g.members {
		ret = append(ret, r)
	}
	slices.Sort(ret)
	return ret
}

func (a *Table) group(row int) *group {
	if row < 0 || row >= len(a.byRow) {
		return nil
	}
	return a.byRow[row]
}

func (a *Table) groupValue(row, i int) any {
	if g := a.group(row); g != nil {
		return g.values[i]
	}
	return nil
}

func (a *Table) process(ev table.Event) error {
	a.log.V(4).Info("processing event", "event", ev.String())

	var err error
	switch ev.Kind {
	case table.Add:
		err = a.add(ev.Row, nil)
	case table.Delete:
		err = a.delete(ev.Row)
	case table.Update:
		err = a.update(ev)
	}

	if err != nil {
		return table.NewEventError(fmt.Sprintf("aggregate %q", a.Name()), ev, err)
	}
	return nil
}

// add places a source row into the group matching its current values. Columns in extra are named
// in the Update emitted when the row joins an existing group.
func (a *Table) add(row int, extra []string) error {
	if _, ok := a.memberOf[row]; ok {
		return fmt.Errorf("source row %d already grouped", row)
	}

	values := a.keyOf(row)
	g, created := a.lookup(values)

	before := a.snapshot(g)
	g.members[row] = struct{}{}
	a.memberOf[row] = g
	for _, agg := range a.aggs {
		agg.add(g.row, row)
	}

	if !created {
		return a.emitChanged(g, before, extra)
	}

	if err := a.Emit(table.AddEvent(g.row)); err != nil {
		return err
	}
	for _, c := range a.groupBy {
		if err := a.Emit(table.UpdateEvent(g.row, c)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Table) delete(row int) error {
	g, ok := a.memberOf[row]
	if !ok {
		return table.NewInvalidRowError(a.source.Name(), row)
	}

	before := a.snapshot(g)
	delete(g.members, row)
	delete(a.memberOf, row)
	for _, agg := range a.aggs {
		agg.remove(g.row, row)
	}

	if len(g.members) > 0 {
		return a.emitChanged(g, before, nil)
	}
	return a.drop(g)
}

func (a *Table) update(ev table.Event) error {
	g, ok := a.memberOf[ev.Row]
	if !ok {
		return table.NewInvalidRowError(a.source.Name(), ev.Row)
	}

	if ev.NamesAny(a.groupBy) {
		if values := a.keyOf(ev.Row); !slices.Equal(values, g.values) {
			if err := a.delete(ev.Row); err != nil {
				return err
			}
			named := []string{}
			for _, c := range a.groupBy {
				if ev.Names(c) {
					named = append(named, c)
				}
			}
			return a.add(ev.Row, named)
		}
	}

	before := a.snapshot(g)
	for _, agg := range a.aggs {
		if ev.Names(agg.spec().Source) {
			agg.update(g.row, ev.Row)
		}
	}
	return a.emitChanged(g, before, nil)
}

func (a *Table) drop(g *group) error {
	bucket := a.buckets[g.hash]
	if i := slices.Index(bucket, g); i >= 0 {
		bucket = slices.Delete(bucket, i, i+1)
	}
	if len(bucket) == 0 {
		delete(a.buckets, g.hash)
	} else {
		a.buckets[g.hash] = bucket
	}

	for _, agg := range a.aggs {
		agg.close(g.row)
	}
	a.byRow[g.row] = nil
	if err := a.slots.Free(g.row); err != nil {
		return err
	}
	return a.Emit(table.DeleteEvent(g.row))
}

func (a *Table) keyOf(row int) []any {
	values := make([]any, len(a.groupCols))
	for i, c := range a.groupCols {
		values[i] = c.Any(row)
	}
	return values
}

func (a *Table) hash(values []any) uint64 {
	var h maphash.Hash
	h.SetSeed(a.seed)
	for _, v := range values {
		maphash.WriteComparable(&h, v)
	}
	return h.Sum64()
}

// lookup returns the group holding values, creating it when missing.
func (a *Table) lookup(values []any) (*group, bool) {
	h := a.hash(values)
	for _, g := range a.buckets[h] {
		if slices.Equal(g.values, values) {
			return g, false
		}
	}

	g := &group{hash: h, values: values, members: map[int]struct{}{}, row: a.slots.Allocate()}
	for len(a.byRow) <= g.row {
		a.byRow = append(a.byRow, nil)
	}
	a.byRow[g.row] = g
	a.buckets[h] = append(a.buckets[h], g)
	for _, agg := range a.aggs {
		agg.open(g.row)
	}
	a.log.V(4).Info("new group", "values", values, "row", g.row)
	return g, true
}

func (a *Table) snapshot(g *group) []any {
	ret := make([]any, len(a.aggs))
	for i, agg := range a.aggs {
		ret[i] = agg.value(g.row)
	}
	return ret
}

// emitChanged emits an Update naming the extra columns and every aggregate column whose value
// differs from before.
func (a *Table) emitChanged(g *group, before []any, extra []string) error {
	columns := slices.Clone(extra)
	for i, agg := range a.aggs {
		if agg.value(g.row) != before[i] {
			columns = append(columns, agg.spec().Name)
		}
	}
	if len(columns) == 0 {
		return nil
	}
	return a.Emit(table.UpdateEvent(g.row, columns...))
}
