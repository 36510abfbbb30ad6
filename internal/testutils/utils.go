package testutils

import (
	"github.com/l7mp/dtable/pkg/table"
)

// Column names used by the test fixtures.
const (
	GroupColumn    = "Group"
	ValueColumn    = "Value"
	StringColumn   = "StringColumn"
	IdColumn       = "IdColumn"
	IdColumn2      = "IdColumn2"
	OtherIdColumn  = "OtherIdColumn"
	StringColumn2  = "StringColumn2"
	DecimalColumn  = "DecimalColumn"
	BooleanColumn  = "BooleanColumn"
	CalcColumnName = "CalcColumn"
)

// NewTestTable returns a base table with a (Group string, Value int) schema.
func NewTestTable() *table.Base {
	t := table.NewBase("test")
	Must(t.AddColumn(table.NewStore[string](GroupColumn)))
	Must(t.AddColumn(table.NewStore[int](ValueColumn)))
	return t
}

// NewStringTable returns a base table with a single string column.
func NewStringTable() *table.Base {
	t := table.NewBase("strings")
	Must(t.AddColumn(table.NewStore[string](StringColumn)))
	return t
}

// NewLeftTable returns the left side of the join fixtures: (IdColumn int, StringColumn string,
// DecimalColumn float64).
func NewLeftTable() *table.Base {
	t := table.NewBase("left")
	Must(t.AddColumn(table.NewStore[int](IdColumn)))
	Must(t.AddColumn(table.NewStore[string](StringColumn)))
	Must(t.AddColumn(table.NewStore[float64](DecimalColumn)))
	return t
}

// NewRightTable returns the right side of the join fixtures: (IdColumn2 int, OtherIdColumn int,
// StringColumn2 string).
func NewRightTable() *table.Base {
	t := table.NewBase("right")
	Must(t.AddColumn(table.NewStore[int](IdColumn2)))
	Must(t.AddColumn(table.NewStore[int](OtherIdColumn)))
	Must(t.AddColumn(table.NewStore[string](StringColumn2)))
	return t
}

// AddRow adds a row and sets the given column values in order.
func AddRow(t table.Writable, kv ...any) int {
	row, err := t.AddRow()
	Must(err)
	for i := 0; i+1 < len(kv); i += 2 {
		Must(t.Set(kv[i].(string), row, kv[i+1]))
	}
	return row
}

// Must panics on a non-nil error.
func Must(err error) {
	if err != nil {
		panic(err)
	}
}
