package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/table"
	"github.com/l7mp/dtable/pkg/util"
)

// Decoder applies messages to a local base table.
type Decoder struct {
	table *table.Base
	rows  map[int]int // remote row -> local row
	log   logr.Logger
}

// NewDecoder creates a decoder writing into t.
func NewDecoder(t *table.Base, log logr.Logger) *Decoder {
	return &Decoder{table: t, rows: map[int]int{}, log: log.WithName("decoder").WithValues("table", t.Name())}
}

// LocalRow returns the local row mirroring a remote row, or -1.
func (d *Decoder) LocalRow(remote int) int {
	if r, ok := d.rows[remote]; ok {
		return r
	}
	return -1
}

// Apply applies a single message. Values are coerced to the column types of the local table.
// Columns unknown to the local table and calculated columns are ignored.
func (d *Decoder) Apply(m Message) error {
	d.log.V(4).Info("applying", "message", m.String())

	switch m.Kind {
	case KindAdd:
		if _, ok := d.rows[m.Row]; ok {
			return fmt.Errorf("decoder %q: add for known remote row %d", d.table.Name(), m.Row)
		}
		local, err := d.table.AddRow()
		if err != nil {
			return err
		}
		d.rows[m.Row] = local
		return d.set(local, m.Values)

	case KindUpdate:
		local, ok := d.rows[m.Row]
		if !ok {
			return table.NewInvalidRowError(d.table.Name(), m.Row)
		}
		return d.set(local, m.Values)

	case KindDelete:
		local, ok := d.rows[m.Row]
		if !ok {
			return table.NewInvalidRowError(d.table.Name(), m.Row)
		}
		delete(d.rows, m.Row)
		return d.table.DeleteRow(local)
	}
	return fmt.Errorf("decoder %q: unknown message kind %q", d.table.Name(), m.Kind)
}

// set writes values in column name order so the resulting events are deterministic.
func (d *Decoder) set(row int, values map[string]any) error {
	for _, name := range util.Keys(values) {
		c, err := d.table.Column(name)
		if err != nil {
			continue
		}
		if _, ok := c.(table.CalculatedColumn); ok {
			continue
		}
		v, err := c.Type().Coerce(values[name])
		if err != nil {
			return fmt.Errorf("decoder %q: column %q: %w", d.table.Name(), name, err)
		}
		if err := d.table.Set(name, row, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom applies newline-delimited JSON messages until EOF.
func (d *Decoder) ReadFrom(r io.Reader) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	for {
		var m Message
		if err := dec.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoder %q: %w", d.table.Name(), err)
		}
		if err := d.Apply(m); err != nil {
			return err
		}
	}
}
