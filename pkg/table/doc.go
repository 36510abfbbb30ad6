// Package table implements the data model of the incremental table engine: typed columns, base
// tables, change events and the publish-subscribe channel every operator is built on.
//
// A table is a named set of columns sharing one row-slot space. Base tables own their columns and
// accept mutations; derived tables (see the filter, sorted, join and aggregate packages) are
// read-only views computed from one or more source tables that translate every source change into
// the minimal set of their own change events.
//
// Events are delivered synchronously, in the order they are produced, to every observer before
// the mutating call returns. A base table applies a mutation before it emits the corresponding
// event, so on Add the row's initial values are in place and on Delete the row is already cleared
// and its id freed. Mutating a base table from inside its own notification cascade is rejected
// with ErrReentrantMutation.
//
// Example usage:
//
//	t := table.NewBase("trades")
//	_ = t.AddColumn(table.NewStore[string]("Group"))
//	_ = t.AddColumn(table.NewStore[int]("Value"))
//	sub := t.Subscribe(table.ObserverFunc(func(ev table.Event) error {
//		fmt.Println(ev)
//		return nil
//	}))
//	defer sub.Close()
//	row, _ := t.AddRow()
//	_ = t.Set("Group", row, "X")
//	v, _ := table.GetValue[string](t, "Group", row)
package table
