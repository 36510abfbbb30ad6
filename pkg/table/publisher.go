package table

import (
	"github.com/google/uuid"
)

// Subscription is the handle returned by Subscribe. Closing it unregisters the observer.
type Subscription struct {
	id       uuid.UUID
	observer Observer
	pub      *Publisher
	closed   bool
}

// ID returns a unique identifier for the subscription.
func (s *Subscription) ID() string { return s.id.String() }

// Close unregisters the observer. It is safe to call Close more than once, and from inside an
// event callback.
func (s *Subscription) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	s.pub.remove(s)
}

// Publisher fans out events synchronously to the registered observers in subscription order.
type Publisher struct {
	// copy-on-write so that subscribing or closing during a dispatch does not disturb the
	// iteration in progress
	subs        []*Subscription
	dispatching int
}

// Subscribe registers an observer.
func (p *Publisher) Subscribe(o Observer) *Subscription {
	s := &Subscription{id: uuid.New(), observer: o, pub: p}
	subs := make([]*Subscription, len(p.subs), len(p.subs)+1)
	copy(subs, p.subs)
	p.subs = append(subs, s)
	return s
}

func (p *Publisher) remove(s *Subscription) {
	subs := make([]*Subscription, 0, len(p.subs))
	for _, w := range p.subs {
		if w != s {
			subs = append(subs, w)
		}
	}
	p.subs = subs
}

// Publish delivers the event to every current observer, stopping at the first error.
func (p *Publisher) Publish(ev Event) error {
	p.dispatching++
	defer func() { p.dispatching-- }()

	for _, s := range p.subs {
		if s.closed {
			continue
		}
		if err := s.observer.OnEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered observers.
func (p *Publisher) Len() int { return len(p.subs) }

// Dispatching reports whether an event is being delivered.
func (p *Publisher) Dispatching() bool { return p.dispatching > 0 }
