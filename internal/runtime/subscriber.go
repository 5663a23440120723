package runtime

import (
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

// Activation is called once per channel a subscriber observes, with the
// channel's subject and a registrar for the receptors that should receive
// the channel's emissions.
type Activation[E any] func(channel *Subject, registrar *Registrar[E])

// Subscriber is a reusable activation callback bound to one circuit. Closing
// it closes every subscription made from it.
type Subscriber[E any] struct {
	circuit    *Circuit
	name       *name.Name
	activation Activation[E]
	subject    lazySubject

	closed        atomic.Bool
	mu            sync.Mutex
	subscriptions map[*Subscription]struct{}
}

// NewSubscriber creates a subscriber owned by c.
func NewSubscriber[E any](c *Circuit, n *name.Name, activation Activation[E]) (*Subscriber[E], error) {
	if c == nil {
		return nil, errspkg.ErrCircuitRequired
	}
	if activation == nil {
		return nil, errspkg.ErrReceptorRequired
	}
	return &Subscriber[E]{
		circuit:       c,
		name:          n,
		activation:    activation,
		subscriptions: make(map[*Subscription]struct{}),
	}, nil
}

// Circuit returns the owning circuit.
func (s *Subscriber[E]) Circuit() *Circuit { return s.circuit }

// Subject returns the subscriber's identity.
func (s *Subscriber[E]) Subject() *Subject {
	return s.subject.get(KindSubscriber, s.name, s.circuit.Subject)
}

// Closed reports whether Close has been called.
func (s *Subscriber[E]) Closed() bool { return s.closed.Load() }

// Close marks the subscriber closed and closes its subscriptions. Removal
// from each conduit is asynchronous, as for Subscription.Close.
func (s *Subscriber[E]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subscriptions))
	for sub := range s.subscriptions {
		subs = append(subs, sub)
	}
	s.subscriptions = nil
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

// track records sub so Close can cascade to it. It returns false once the
// subscriber is closed.
func (s *Subscriber[E]) track(sub *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriptions == nil {
		return false
	}
	s.subscriptions[sub] = struct{}{}
	return true
}

func (s *Subscriber[E]) untrack(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, sub)
}
