package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ColumnType is the closed set of element types a column may hold.
type ColumnType int

const (
	TypeInt ColumnType = iota + 1
	TypeInt64
	TypeFloat64
	TypeString
	TypeBool
)

// Scalar constrains the Go types a column may store.
type Scalar interface {
	int | int64 | float64 | string | bool
}

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	default:
		return "<unknown>"
	}
}

// ParseColumnType parses a column type name.
func ParseColumnType(s string) (ColumnType, error) {
	switch s {
	case "int":
		return TypeInt, nil
	case "int64", "long":
		return TypeInt64, nil
	case "float", "float64", "double":
		return TypeFloat64, nil
	case "string":
		return TypeString, nil
	case "bool", "boolean":
		return TypeBool, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Zero returns the zero value of the column type.
func (t ColumnType) Zero() any {
	switch t {
	case TypeInt:
		return 0
	case TypeInt64:
		return int64(0)
	case TypeFloat64:
		return 0.0
	case TypeString:
		return ""
	case TypeBool:
		return false
	}
	return nil
}

// TypeOf returns the column type for the Go type T.
func TypeOf[T Scalar]() ColumnType {
	var zero T
	switch any(zero).(type) {
	case int:
		return TypeInt
	case int64:
		return TypeInt64
	case float64:
		return TypeFloat64
	case string:
		return TypeString
	default:
		return TypeBool
	}
}

// Coerce converts a loosely typed value, as produced by JSON or YAML decoders, to the Go type of
// the column type.
func (t ColumnType) Coerce(v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	switch t {
	case TypeInt, TypeInt64:
		var i int64
		switch x := v.(type) {
		case int:
			i = int64(x)
		case int64:
			i = x
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("cannot convert %v to %s: %w", x, t, ErrTypeMismatch)
			}
			i = int64(x)
		case string:
			p, err := strconv.ParseInt(x, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s: %w", x, t, ErrTypeMismatch)
			}
			i = p
		default:
			return nil, fmt.Errorf("cannot convert %T to %s: %w", v, t, ErrTypeMismatch)
		}
		if t == TypeInt {
			return int(i), nil
		}
		return i, nil
	case TypeFloat64:
		switch x := v.(type) {
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s: %w", x, t, ErrTypeMismatch)
			}
			return f, nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s: %w", x, t, ErrTypeMismatch)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s: %w", v, t, ErrTypeMismatch)
}

// Column is a named, typed, row-indexed value source.
type Column interface {
	Name() string
	Type() ColumnType
	// Any returns the value at row, or the zero value of the column type for unset rows.
	Any(row int) any
	// Derive returns a read-only column called name that reads this column at rowMap(row). A
	// negative mapped row reads as the zero value.
	Derive(name string, rowMap func(row int) int) Column
}

// Reader is a column with typed access.
type Reader[T Scalar] interface {
	Column
	Get(row int) T
}

// Field is a column that owns its storage.
type Field interface {
	Column
	AddField(row int)
	ClearField(row int)
	SetAny(row int, v any) error
}

// Store is the primary storage for one field across all rows of a table.
type Store[T Scalar] struct {
	name   string
	typ    ColumnType
	values []T
}

var _ Field = &Store[int]{}

// NewStore creates an empty store.
func NewStore[T Scalar](name string) *Store[T] {
	return &Store[T]{name: name, typ: TypeOf[T]()}
}

func (s *Store[T]) Name() string     { return s.name }
func (s *Store[T]) Type() ColumnType { return s.typ }
func (s *Store[T]) Len() int         { return len(s.values) }

// Get returns the value at row.
func (s *Store[T]) Get(row int) T {
	if row < 0 || row >= len(s.values) {
		var zero T
		return zero
	}
	return s.values[row]
}

func (s *Store[T]) Any(row int) any { return s.Get(row) }

// AddField materializes the default value at row, growing the store as needed.
func (s *Store[T]) AddField(row int) {
	var zero T
	for len(s.values) <= row {
		s.values = append(s.values, zero)
	}
	s.values[row] = zero
}

// ClearField resets row to the default value.
func (s *Store[T]) ClearField(row int) {
	if row >= 0 && row < len(s.values) {
		var zero T
		s.values[row] = zero
	}
}

// Set writes v at row.
func (s *Store[T]) Set(row int, v T) {
	if row >= len(s.values) {
		s.AddField(row)
	}
	s.values[row] = v
}

// SetAny writes v at row, failing with ErrTypeMismatch unless v is a T.
func (s *Store[T]) SetAny(row int, v any) error {
	t, ok := v.(T)
	if !ok {
		return NewTypeMismatchError(s.name, s.typ, v)
	}
	s.Set(row, t)
	return nil
}

func (s *Store[T]) Derive(name string, rowMap func(int) int) Column {
	return newMapped[T](s, name, rowMap)
}

// mapped is a read-only column reading another column through a row mapping.
type mapped[T Scalar] struct {
	src    Reader[T]
	name   string
	rowMap func(int) int
}

func newMapped[T Scalar](src Reader[T], name string, rowMap func(int) int) *mapped[T] {
	if name == "" {
		name = src.Name()
	}
	return &mapped[T]{src: src, name: name, rowMap: rowMap}
}

func (m *mapped[T]) Name() string     { return m.name }
func (m *mapped[T]) Type() ColumnType { return m.src.Type() }
func (m *mapped[T]) Any(row int) any  { return m.Get(row) }

func (m *mapped[T]) Get(row int) T {
	src := m.rowMap(row)
	if src < 0 {
		var zero T
		return zero
	}
	return m.src.Get(src)
}

func (m *mapped[T]) Derive(name string, rowMap func(int) int) Column {
	return newMapped[T](m, name, rowMap)
}

// Func is a read-only column computed by a function of the row. Operators use it to expose
// values they maintain themselves, like aggregates.
type Func[T Scalar] struct {
	name string
	get  func(row int) T
}

// NewFunc creates a column computed by get.
func NewFunc[T Scalar](name string, get func(row int) T) *Func[T] {
	return &Func[T]{name: name, get: get}
}

func (f *Func[T]) Name() string     { return f.name }
func (f *Func[T]) Type() ColumnType { return TypeOf[T]() }
func (f *Func[T]) Get(row int) T    { return f.get(row) }
func (f *Func[T]) Any(row int) any  { return f.get(row) }

func (f *Func[T]) Derive(name string, rowMap func(int) int) Column {
	return newMapped[T](f, name, rowMap)
}

// NewStoreOf creates an empty store for a column type.
func NewStoreOf(name string, typ ColumnType) (Field, error) {
	switch typ {
	case TypeInt:
		return NewStore[int](name), nil
	case TypeInt64:
		return NewStore[int64](name), nil
	case TypeFloat64:
		return NewStore[float64](name), nil
	case TypeString:
		return NewStore[string](name), nil
	case TypeBool:
		return NewStore[bool](name), nil
	default:
		return nil, fmt.Errorf("column %q: invalid column type %d", name, typ)
	}
}

// NewFuncOf creates a computed column of a type known only at runtime. get must return a value of
// the column type, anything else reads as the zero value.
func NewFuncOf(name string, typ ColumnType, get func(row int) any) (Column, error) {
	switch typ {
	case TypeInt:
		return funcOf[int](name, get), nil
	case TypeInt64:
		return funcOf[int64](name, get), nil
	case TypeFloat64:
		return funcOf[float64](name, get), nil
	case TypeString:
		return funcOf[string](name, get), nil
	case TypeBool:
		return funcOf[bool](name, get), nil
	default:
		return nil, fmt.Errorf("column %q: invalid column type %d", name, typ)
	}
}

func funcOf[T Scalar](name string, get func(row int) any) *Func[T] {
	return NewFunc(name, func(row int) T {
		v, _ := get(row).(T)
		return v
	})
}
