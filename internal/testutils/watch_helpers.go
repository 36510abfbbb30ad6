package testutils

import (
	"time"

	. "github.com/onsi/gomega"

	"github.com/l7mp/dtable/pkg/table"
)

// TryRecv attempts to receive a value from a channel within the specified timeout. Returns the
// value and true if successful, or the zero value and false if timeout occurs.
func TryRecv[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// MatchEvent validates that an event matches the expected kind, row and, for updates, columns.
func MatchEvent(ev table.Event, kind table.EventKind, row int, columns ...string) {
	Expect(ev.Kind).To(Equal(kind), "event %s", ev.String())
	Expect(ev.Row).To(Equal(row), "event %s", ev.String())
	if kind == table.Update {
		Expect(ev.Columns).To(ConsistOf(columns), "event %s", ev.String())
	}
}
