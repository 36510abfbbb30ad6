package table

// CalculatedColumn is a column derived from other columns of the same table. The owning table
// names it in every Update that names one of its dependencies.
type CalculatedColumn interface {
	Column
	Dependencies() []Column
}

// Calculated is a lazily computed column: the value is recomputed on every read.
type Calculated[T Scalar] struct {
	name    string
	deps    []Column
	compute func(row int) T
}

var _ CalculatedColumn = &Calculated[int]{}

// NewCalculated creates a calculated column. The dependencies are referenced, not owned.
func NewCalculated[T Scalar](name string, compute func(row int) T, deps ...Column) *Calculated[T] {
	return &Calculated[T]{name: name, deps: deps, compute: compute}
}

func (c *Calculated[T]) Name() string           { return c.name }
func (c *Calculated[T]) Type() ColumnType       { return TypeOf[T]() }
func (c *Calculated[T]) Get(row int) T          { return c.compute(row) }
func (c *Calculated[T]) Any(row int) any        { return c.compute(row) }
func (c *Calculated[T]) Dependencies() []Column { return c.deps }

func (c *Calculated[T]) Derive(name string, rowMap func(int) int) Column {
	return newMapped[T](c, name, rowMap)
}
