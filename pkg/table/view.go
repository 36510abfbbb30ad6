package table

import (
	"strconv"

	"github.com/go-logr/logr"
)

// View holds the plumbing every table shares: the column registry, calculated column
// dependencies and the event publisher. Tables embed it.
type View struct {
	name       string
	columns    []Column
	byName     map[string]int
	dependents map[string][]string // column -> calculated columns reading it
	pub        Publisher
	log        logr.Logger
}

// NewView creates an empty view.
func NewView(name string, log logr.Logger) *View {
	return &View{
		name:       name,
		byName:     map[string]int{},
		dependents: map[string][]string{},
		log:        log,
	}
}

func (v *View) Name() string          { return v.name }
func (v *View) Log() logr.Logger      { return v.log }
func (v *View) Columns() []Column     { return v.columns }
func (v *View) Publisher() *Publisher { return &v.pub }

// Column looks up a column by name.
func (v *View) Column(name string) (Column, error) {
	i, ok := v.byName[name]
	if !ok {
		return nil, NewUnknownColumnError(v.name, name)
	}
	return v.columns[i], nil
}

// ColumnAt looks up a column by position.
func (v *View) ColumnAt(i int) (Column, error) {
	if i < 0 || i >= len(v.columns) {
		return nil, NewUnknownColumnError(v.name, "#"+strconv.Itoa(i))
	}
	return v.columns[i], nil
}

// HasColumn reports whether a column is registered.
func (v *View) HasColumn(name string) bool {
	_, ok := v.byName[name]
	return ok
}

// RegisterColumn adds a column to the registry. Calculated columns must name registered
// dependencies.
func (v *View) RegisterColumn(c Column) error {
	if _, ok := v.byName[c.Name()]; ok {
		return NewDuplicateColumnError(v.name, c.Name())
	}
	if calc, ok := c.(CalculatedColumn); ok {
		for _, dep := range calc.Dependencies() {
			if !v.HasColumn(dep.Name()) {
				return NewUnknownColumnError(v.name, dep.Name())
			}
		}
		for _, dep := range calc.Dependencies() {
			v.dependents[dep.Name()] = append(v.dependents[dep.Name()], c.Name())
		}
	}
	v.byName[c.Name()] = len(v.columns)
	v.columns = append(v.columns, c)
	return nil
}

// AddCalculatedColumn registers a calculated column on the table.
func (v *View) AddCalculatedColumn(c CalculatedColumn) error {
	return v.RegisterColumn(c)
}

// Subscribe registers an observer.
func (v *View) Subscribe(o Observer) *Subscription {
	s := v.pub.Subscribe(o)
	v.log.V(2).Info("subscribed", "table", v.name, "subscription", s.ID())
	return s
}

// Emit publishes an event. Update events are extended with the calculated columns depending on
// any of the named columns.
func (v *View) Emit(ev Event) error {
	if ev.Kind == Update && len(v.dependents) > 0 {
		ev.Columns = v.expand(ev.Columns)
	}
	v.log.V(4).Info("emit", "table", v.name, "event", ev.String())
	return v.pub.Publish(ev)
}

func (v *View) expand(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	ret := make([]string, 0, len(columns))
	queue := append([]string{}, columns...)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if seen[c] {
			continue
		}
		seen[c] = true
		ret = append(ret, c)
		queue = append(queue, v.dependents[c]...)
	}
	return ret
}
