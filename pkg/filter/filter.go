// Package filter implements the filter operator: a derived table exposing the subset of source
// rows for which a predicate currently holds.
//
// Filtered rows get their own densely allocated, recycled row ids. The operator keeps a
// bidirectional source-row to filtered-row mapping, so every source event is translated in O(1)
// without re-scanning the source.
package filter

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/rowslot"
	"github.com/l7mp/dtable/pkg/table"
)

var _ table.Table = &Table{}

// Table is a filtered view of a source table.
type Table struct {
	*table.View
	source     table.Table
	pred       Predicate
	slots      *rowslot.Allocator
	toSource   []int       // filtered row -> source row, -1 if free
	toFiltered map[int]int // source row -> filtered row
	sub        *table.Subscription
	log        logr.Logger
}

// New creates a filter over src. Existing source rows are evaluated immediately. A positional
// source is replaced by the table it orders.
func New(src table.Table, pred Predicate, opts table.Options) (*Table, error) {
	src = table.Unordered(src)
	name := opts.NameOr(fmt.Sprintf("filter(%s)", src.Name()))
	log := opts.GetLogger().WithName("filter").WithValues("table", name)
	f := &Table{
		View:       table.NewView(name, log),
		source:     src,
		pred:       pred,
		slots:      rowslot.New(),
		toFiltered: map[int]int{},
		log:        log,
	}

	for _, c := range pred.Columns() {
		if _, err := src.Column(c); err != nil {
			return nil, fmt.Errorf("filter %q: predicate %s: %w", name, pred, err)
		}
	}

	for _, c := range src.Columns() {
		if err := f.RegisterColumn(c.Derive("", f.sourceRow)); err != nil {
			return nil, err
		}
	}

	if err := src.ReplayRows(table.ObserverFunc(f.process)); err != nil {
		return nil, err
	}
	f.sub = src.Subscribe(table.ObserverFunc(f.process))

	f.log.V(2).Info("filter ready", "source", src.Name(), "predicate", pred.String(),
		"rows", f.RowCount())

	return f, nil
}

// Close detaches the filter from its source.
func (f *Table) Close() { f.sub.Close() }

// Source returns the source table.
func (f *Table) Source() table.Table { return f.source }

func (f *Table) RowCount() int          { return f.slots.RowCount() }
func (f *Table) Rows() []int            { return f.slots.Live() }
func (f *Table) IsLive(row int) bool    { return f.slots.IsLive(row) }
func (f *Table) GetRowAt(row int) int   { return f.sourceRow(row) }

// ReplayRows emits an Add event per visible row.
func (f *Table) ReplayRows(o table.Observer) error { return table.Replay(f, o) }

// GetPositionOfRow returns the filtered row backed by a source row, or -1.
func (f *Table) GetPositionOfRow(row int) int {
	if r, ok := f.toFiltered[row]; ok {
		return r
	}
	return -1
}

func (f *Table) sourceRow(row int) int {
	if row < 0 || row >= len(f.toSource) {
		return -1
	}
	return f.toSource[row]
}

// PredicateChanged re-evaluates the predicate for every source row. Call it when the predicate
// reads state that is not observable through column events. Rows whose visibility did not change
// produce no events.
func (f *Table) PredicateChanged() error {
	f.log.V(2).Info("re-evaluating predicate", "predicate", f.pred.String())
	for _, row := range f.source.Rows() {
		if err := f.reevaluate(row, nil); err != nil {
			return fmt.Errorf("filter %q: %w", f.Name(), err)
		}
	}
	return nil
}

func (f *Table) process(ev table.Event) error {
	f.log.V(4).Info("processing event", "event", ev.String())

	var err error
	switch ev.Kind {
	case table.Add:
		err = f.reevaluate(ev.Row, nil)
	case table.Delete:
		err = f.hide(ev.Row)
	case table.Update:
		if ev.NamesAny(f.pred.Columns()) {
			err = f.reevaluate(ev.Row, ev.Columns)
		} else if row, ok := f.toFiltered[ev.Row]; ok {
			err = f.Emit(table.UpdateEvent(row, ev.Columns...))
		}
	}

	if err != nil {
		return table.NewEventError(fmt.Sprintf("filter %q", f.Name()), ev, err)
	}
	return nil
}

// reevaluate applies the visibility transition for a source row. When updated is non-nil and the
// row stays visible the update is forwarded.
func (f *Table) reevaluate(row int, updated []string) error {
	visible, err := f.pred.Evaluate(f.source, row)
	if err != nil {
		return err
	}

	filtered, mapped := f.toFiltered[row]
	switch {
	case visible && !mapped:
		return f.show(row)
	case !visible && mapped:
		return f.hide(row)
	case visible && mapped && len(updated) > 0:
		return f.Emit(table.UpdateEvent(filtered, updated...))
	}
	return nil
}

func (f *Table) show(row int) error {
	filtered := f.slots.Allocate()
	for len(f.toSource) <= filtered {
		f.toSource = append(f.toSource, -1)
	}
	f.toSource[filtered] = row
	f.toFiltered[row] = filtered
	return f.Emit(table.AddEvent(filtered))
}

func (f *Table) hide(row int) error {
	filtered, ok := f.toFiltered[row]
	if !ok {
		return nil
	}
	delete(f.toFiltered, row)
	f.toSource[filtered] = -1
	if err := f.slots.Free(filtered); err != nil {
		return err
	}
	return f.Emit(table.DeleteEvent(filtered))
}
