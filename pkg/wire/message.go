// Package wire serializes table change events into self-contained JSON messages and applies them
// to a writable table on the other end.
//
// An Encoder captures the values an event refers to at the time the event is delivered: Add
// messages carry every column, Update messages the named columns and Delete messages none. A
// Decoder maps the row ids of the sender to the row ids of its local table, so the two sides never
// need to agree on row allocation.
package wire

import (
	"fmt"

	"github.com/l7mp/dtable/pkg/table"
)

// Kind is the message kind.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Message is one change event on the wire.
type Message struct {
	Table  string         `json:"table"`
	Kind   Kind           `json:"kind"`
	Row    int            `json:"row"`
	Values map[string]any `json:"values,omitempty"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s/%s(row=%d, values=%v)", m.Table, m.Kind, m.Row, m.Values)
}

func kindOf(k table.EventKind) (Kind, error) {
	switch k {
	case table.Add:
		return KindAdd, nil
	case table.Update:
		return KindUpdate, nil
	case table.Delete:
		return KindDelete, nil
	}
	return "", fmt.Errorf("unknown event kind %d", k)
}
