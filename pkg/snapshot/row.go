package snapshot

import (
	"encoding/json"
	"fmt"
)

// Row is a table row captured as a column name to value map.
type Row = map[string]any

// Key returns the canonical JSON representation of a row. Two rows are equal iff their keys are.
// Numbers of different Go types holding the same value share a key.
func Key(row Row) (string, error) {
	bytes, err := json.Marshal(row)
	if err != nil {
		return "", newError("failed to marshal row to JSON", err)
	}
	return string(bytes), nil
}

// NewRow creates a row from column name and value pairs.
func NewRow(pairs ...any) (Row, error) {
	if len(pairs)%2 != 0 {
		return nil, newError("NewRow requires an even number of arguments (column-value pairs)", nil)
	}

	row := make(Row, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		column, ok := pairs[i].(string)
		if !ok {
			return nil, newError(fmt.Sprintf("column at position %d must be a string", i), nil)
		}
		row[column] = pairs[i+1]
	}
	return row, nil
}

// MustRow is NewRow that panics on error, for tests and literals.
func MustRow(pairs ...any) Row {
	row, err := NewRow(pairs...)
	if err != nil {
		panic(err)
	}
	return row
}

func copyRow(row Row) Row {
	ret := make(Row, len(row))
	for k, v := range row {
		ret[k] = v
	}
	return ret
}
