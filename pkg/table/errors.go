package table

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateColumn is returned when registering a column under an existing name.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrUnknownColumn is returned when referencing an undeclared column.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidRow is returned for operations on a row that is not live.
	ErrInvalidRow = errors.New("invalid row")
	// ErrTypeMismatch is returned when a typed accessor is used against a column of another type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnsupportedOperation is returned e.g., when writing through a read-only table.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrReentrantMutation is returned when a table is mutated from inside its own notification
	// cascade.
	ErrReentrantMutation = errors.New("reentrant mutation")
)

type ErrDuplicate = error

func NewDuplicateColumnError(table, column string) ErrDuplicate {
	return fmt.Errorf("table %q: column %q: %w", table, column, ErrDuplicateColumn)
}

type ErrUnknown = error

func NewUnknownColumnError(table, column string) ErrUnknown {
	return fmt.Errorf("table %q: column %q: %w", table, column, ErrUnknownColumn)
}

type ErrRow = error

func NewInvalidRowError(table string, row int) ErrRow {
	return fmt.Errorf("table %q: row %d: %w", table, row, ErrInvalidRow)
}

type ErrType = error

func NewTypeMismatchError(column string, want ColumnType, got any) ErrType {
	return fmt.Errorf("column %q of type %s: cannot use value of type %T: %w", column, want, got,
		ErrTypeMismatch)
}

type ErrUnsupported = error

func NewUnsupportedOperationError(table, op string) ErrUnsupported {
	return fmt.Errorf("table %q: %s: %w", table, op, ErrUnsupportedOperation)
}

type ErrReentrant = error

func NewReentrantMutationError(table, op string) ErrReentrant {
	return fmt.Errorf("table %q: %s called from within a change notification: %w", table, op,
		ErrReentrantMutation)
}

// NewEventError wraps a failure raised by an operator while processing a source event.
func NewEventError(operator string, ev Event, err error) error {
	return fmt.Errorf("%s: failed to process %s: %w", operator, ev.String(), err)
}
