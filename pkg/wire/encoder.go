package wire

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/table"
)

// Sink receives encoded messages.
type Sink interface {
	Send(Message) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Message) error

func (f SinkFunc) Send(m Message) error { return f(m) }

// StreamSink writes messages as newline-delimited JSON.
func StreamSink(w io.Writer) Sink {
	enc := json.NewEncoder(w)
	return SinkFunc(func(m Message) error { return enc.Encode(m) })
}

// Encoder turns the events of a table into messages. Messages of a positional table, like a sorted
// view, name the stable rows of the table it orders, since positions shift without events.
type Encoder struct {
	table   table.Table
	sink    Sink
	tracker *table.PositionTracker
	sub     *table.Subscription
	log     logr.Logger
}

// NewEncoder creates an encoder. Nothing is sent until Start.
func NewEncoder(t table.Table, sink Sink, log logr.Logger) *Encoder {
	e := &Encoder{table: t, sink: sink, log: log.WithName("encoder").WithValues("table", t.Name())}
	if p, ok := t.(table.Positional); ok {
		e.tracker = table.NewPositionTracker(p)
	}
	return e
}

// Start sends an Add message per live row and then follows the table.
func (e *Encoder) Start() error {
	if err := e.table.ReplayRows(e); err != nil {
		return fmt.Errorf("encoder %q: replay: %w", e.table.Name(), err)
	}
	e.sub = e.table.Subscribe(e)
	e.log.V(2).Info("encoder started", "rows", e.table.RowCount())
	return nil
}

// Close stops following the table.
func (e *Encoder) Close() {
	if e.sub != nil {
		e.sub.Close()
	}
}

// OnEvent implements table.Observer.
func (e *Encoder) OnEvent(ev table.Event) error {
	m, err := Encode(e.table, ev)
	if err != nil {
		return err
	}
	if e.tracker != nil {
		stable, err := e.tracker.Translate(ev)
		if err != nil {
			return err
		}
		m.Row = stable.Row
	}
	e.log.V(4).Info("sending", "message", m.String())
	return e.sink.Send(m)
}

// Encode builds the message of an event, reading the values it refers to from t.
func Encode(t table.Table, ev table.Event) (Message, error) {
	kind, err := kindOf(ev.Kind)
	if err != nil {
		return Message{}, err
	}
	m := Message{Table: t.Name(), Kind: kind, Row: ev.Row}

	switch ev.Kind {
	case table.Add:
		m.Values = make(map[string]any, len(t.Columns()))
		for _, c := range t.Columns() {
			m.Values[c.Name()] = c.Any(ev.Row)
		}
	case table.Update:
		m.Values = make(map[string]any, len(ev.Columns))
		for _, name := range ev.Columns {
			c, err := t.Column(name)
			if err != nil {
				return Message{}, err
			}
			m.Values[name] = c.Any(ev.Row)
		}
	}
	return m, nil
}
