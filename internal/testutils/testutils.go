package testutils

import (
	"fmt"
	"sync"

	"github.com/l7mp/dtable/pkg/table"
)

// Recorder is an observer that records every event it receives. It also tracks the set of rows
// that are live according to the Add and Delete events seen so far.
type Recorder struct {
	mu     sync.Mutex
	events []table.Event
	live   map[int]bool
	// rows are positions: Add and Delete shift the rows behind them
	positional bool
	count      int
	// Fail, when set, is returned by OnEvent.
	Fail error
}

var _ table.Observer = &Recorder{}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{live: map[int]bool{}}
}

// NewPositionalRecorder creates a recorder for a table whose row ids are positions. Add events must
// name a position in 0..Live and Delete and Update events a position in 0..Live-1.
func NewPositionalRecorder() *Recorder {
	return &Recorder{live: map[int]bool{}, positional: true}
}

// OnEvent implements table.Observer.
func (r *Recorder) OnEvent(ev table.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Columns = append([]string(nil), ev.Columns...)
	r.events = append(r.events, ev)
	if r.positional {
		return r.shift(ev)
	}
	switch ev.Kind {
	case table.Add:
		if r.live[ev.Row] {
			return fmt.Errorf("recorder: add for live row %d", ev.Row)
		}
		r.live[ev.Row] = true
	case table.Delete:
		if !r.live[ev.Row] {
			return fmt.Errorf("recorder: delete for unknown row %d", ev.Row)
		}
		delete(r.live, ev.Row)
	}
	return r.Fail
}

func (r *Recorder) shift(ev table.Event) error {
	switch {
	case ev.Kind == table.Add && ev.Row >= 0 && ev.Row <= r.count:
		r.count++
	case ev.Kind == table.Delete && ev.Row >= 0 && ev.Row < r.count:
		r.count--
	case ev.Kind == table.Update && ev.Row >= 0 && ev.Row < r.count:
	default:
		return fmt.Errorf("recorder: %s out of range, %d rows", ev, r.count)
	}
	return r.Fail
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []table.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]table.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events.
func (r *Recorder) Kinds() []table.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]table.EventKind, len(r.events))
	for i, ev := range r.events {
		ret[i] = ev.Kind
	}
	return ret
}

// Count returns the number of events of the given kind.
func (r *Recorder) Count(kind table.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Live returns the number of rows added and not yet deleted.
func (r *Recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.positional {
		return r.count
	}
	return len(r.live)
}

// Last returns the last recorded event.
func (r *Recorder) Last() table.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return table.Event{}
	}
	return r.events[len(r.events)-1]
}

// Reset forgets the recorded events but keeps the live row set.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
