package runtime

import (
	"sync/atomic"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

// Tap is a mapped view of a conduit. It mirrors the source's channels: an
// emission passing through source channel "x" is mapped and dispatched on
// the tap's own channel "x", which tap subscribers observe the same way they
// observe conduit channels. Tap channels appear as the source activates them.
type Tap[T any] struct {
	circuit *Circuit
	name    *name.Name
	label   string
	source  interface{ Subject() *Subject }
	subject lazySubject

	roster   roster[T]
	channels map[*name.Name]*Channel[T] // worker only

	detach func() error
	closed atomic.Bool
}

// NewTap maps every emission of src through mapper. n may be nil.
func NewTap[P, E, T any](src *Conduit[P, E], n *name.Name, mapper func(E) T) (*Tap[T], error) {
	if src == nil {
		return nil, errspkg.ErrConduitRequired
	}
	if mapper == nil {
		return nil, errspkg.ErrMapperRequired
	}
	tap := &Tap[T]{
		circuit:  src.circuit,
		name:     n,
		source:   src,
		channels: make(map[*name.Name]*Channel[T]),
	}
	tap.label = tap.Subject().Path()

	feed, err := NewSubscriber[E](src.circuit, n, func(channel *Subject, reg *Registrar[E]) {
		target := tap.channel(channel.Name)
		_ = reg.Register(func(v E) {
			if tap.closed.Load() {
				return
			}
			target.dispatch(mapper(v))
		})
	})
	if err != nil {
		return nil, err
	}
	if _, err := src.Subscribe(feed); err != nil {
		return nil, err
	}
	tap.detach = feed.Close
	return tap, nil
}

func (t *Tap[T]) channel(n *name.Name) *Channel[T] {
	ch, ok := t.channels[n]
	if !ok {
		ch = newChannel[T](t.circuit, &t.roster, t, t.label, n)
		t.channels[n] = ch
	}
	return ch
}

// Circuit returns the source conduit's circuit.
func (t *Tap[T]) Circuit() *Circuit { return t.circuit }

// Name returns the tap's name, nil when anonymous.
func (t *Tap[T]) Name() *name.Name { return t.name }

// Subject returns the tap's identity, enclosed by the source conduit's.
func (t *Tap[T]) Subject() *Subject {
	return t.subject.get(KindTap, t.name, t.source.Subject)
}

// Subscribe adds s to every channel of the tap, present and future.
func (t *Tap[T]) Subscribe(s *Subscriber[T]) (*Subscription, error) {
	if t.closed.Load() {
		return nil, errspkg.ErrTapClosed
	}
	return join(t.circuit, &t.roster, t, s)
}

// Reservoir captures every mapped emission until it is closed.
func (t *Tap[T]) Reservoir() (*Reservoir[T], error) {
	if t.closed.Load() {
		return nil, errspkg.ErrTapClosed
	}
	return newReservoir(t.circuit, t, t.Subscribe)
}

// Closed reports whether Close has been called.
func (t *Tap[T]) Closed() bool { return t.closed.Load() }

// Close detaches the tap from its source. Tap subscribers stay subscribed but
// receive nothing further.
func (t *Tap[T]) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.detach()
}
