// Package batch decouples a consumer from the synchronous event cascade of a table.
//
// An Adapter subscribes to a table, queues the events it receives under a lock and delivers them
// to a target observer in their original order when flushed, either on demand or periodically from
// a goroutine started with Start. The adapter only moves events: a target running on another
// goroutine must not read the table without synchronizing with the writer.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/dtable/pkg/table"
)

// DefaultPeriod is the flush period used when none is configured.
const DefaultPeriod = 100 * time.Millisecond

// Options configures an adapter.
type Options struct {
	// Period is the flush period of Start.
	Period time.Duration
	// Logger is the logger, defaults to a discarding logger.
	Logger *logr.Logger
}

// Adapter queues table events for deferred delivery.
type Adapter struct {
	mu      sync.Mutex
	queue   []table.Event
	flushMu sync.Mutex
	target  table.Observer
	period  time.Duration
	sub     *table.Subscription
	log     logr.Logger
}

// New creates an adapter forwarding the events of src to target.
func New(src table.Table, target table.Observer, opts Options) *Adapter {
	log := logr.Discard()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	period := opts.Period
	if period <= 0 {
		period = DefaultPeriod
	}

	a := &Adapter{
		target: target,
		period: period,
		log:    log.WithName("batch").WithValues("table", src.Name()),
	}
	a.sub = src.Subscribe(a)
	return a
}

// OnEvent queues an event. It never fails.
func (a *Adapter) OnEvent(ev table.Event) error {
	ev.Columns = append([]string(nil), ev.Columns...)
	a.mu.Lock()
	a.queue = append(a.queue, ev)
	a.mu.Unlock()
	return nil
}

// Pending returns the number of queued events.
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Flush delivers the queued events to the target in order. Delivery stops at the first error, the
// undelivered events are dropped.
func (a *Adapter) Flush() error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	events := a.queue
	a.queue = nil
	a.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	a.log.V(4).Info("flushing events", "count", len(events))
	for i, ev := range events {
		if err := a.target.OnEvent(ev); err != nil {
			a.log.Error(err, "target failed, dropping events", "dropped", len(events)-i-1)
			return err
		}
	}
	return nil
}

// Start flushes periodically until the context is canceled, then flushes a last time and detaches
// from the table. Target errors are logged and do not stop the loop.
func (a *Adapter) Start(ctx context.Context) error {
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	a.log.V(2).Info("starting", "period", a.period.String())
	for {
		select {
		case <-ctx.Done():
			a.Close()
			err := a.Flush()
			a.log.V(2).Info("stopped")
			return errors.Join(err, ignoreCanceled(ctx.Err()))
		case <-ticker.C:
			_ = a.Flush()
		}
	}
}

// Close detaches the adapter from the table. Queued events stay available to Flush.
func (a *Adapter) Close() { a.sub.Close() }

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
