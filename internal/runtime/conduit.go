package runtime

import (
	"sort"
	"sync/atomic"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

// Composer builds the percept handed out for a channel.
type Composer[P, E any] func(channel *Channel[E]) P

// PipeComposer hands out each channel's pipe as its percept.
func PipeComposer[E any]() Composer[*Pipe[E], E] {
	return func(ch *Channel[E]) *Pipe[E] { return ch.Pipe() }
}

// ChannelComposer hands out the channel itself.
func ChannelComposer[E any]() Composer[*Channel[E], E] {
	return func(ch *Channel[E]) *Channel[E] { return ch }
}

type perceptEntry[P, E any] struct {
	percept P
	channel *Channel[E]
}

type perceptTable[P, E any] map[*name.Name]*perceptEntry[P, E]

// Conduit is a named registry of channels sharing one subscriber list. The
// percept table is published copy-on-write and may be read from any
// goroutine; the subscriber list belongs to the circuit worker.
type Conduit[P, E any] struct {
	circuit  *Circuit
	name     *name.Name
	label    string
	composer Composer[P, E]
	subject  lazySubject

	percepts atomic.Pointer[perceptTable[P, E]]
	roster   roster[E]
}

// NewConduit creates a conduit on c. n may be nil.
func NewConduit[P, E any](c *Circuit, n *name.Name, composer Composer[P, E]) (*Conduit[P, E], error) {
	if c == nil {
		return nil, errspkg.ErrCircuitRequired
	}
	if composer == nil {
		return nil, errspkg.ErrComposerRequired
	}
	cd := &Conduit[P, E]{
		circuit:  c,
		name:     n,
		composer: composer,
	}
	cd.label = cd.Subject().Path()
	cd.percepts.Store(&perceptTable[P, E]{})
	return cd, nil
}

// Circuit returns the owning circuit.
func (cd *Conduit[P, E]) Circuit() *Circuit { return cd.circuit }

// Name returns the conduit's name, nil when anonymous.
func (cd *Conduit[P, E]) Name() *name.Name { return cd.name }

// Subject returns the conduit's identity.
func (cd *Conduit[P, E]) Subject() *Subject {
	return cd.subject.get(KindConduit, cd.name, cd.circuit.Subject)
}

// Percept returns the percept for channel n, creating the channel on first
// use. Concurrent first calls for the same name all receive the same
// percept; the composer may run more than once, but only one result is kept.
func (cd *Conduit[P, E]) Percept(n *name.Name) (P, error) {
	if n == nil {
		var zero P
		return zero, errspkg.ErrNameRequired
	}
	return cd.lookup(n).percept, nil
}

// Channel returns the channel behind Percept(n).
func (cd *Conduit[P, E]) Channel(n *name.Name) (*Channel[E], error) {
	if n == nil {
		return nil, errspkg.ErrNameRequired
	}
	return cd.lookup(n).channel, nil
}

func (cd *Conduit[P, E]) lookup(n *name.Name) *perceptEntry[P, E] {
	var created *perceptEntry[P, E]
	for {
		cur := cd.percepts.Load()
		if e, ok := (*cur)[n]; ok {
			return e
		}
		if created == nil {
			ch := newChannel[E](cd.circuit, &cd.roster, cd, cd.label, n)
			created = &perceptEntry[P, E]{percept: cd.composer(ch), channel: ch}
		}
		next := make(perceptTable[P, E], len(*cur)+1)
		for k, v := range *cur {
			next[k] = v
		}
		next[n] = created
		if cd.percepts.CompareAndSwap(cur, &next) {
			return created
		}
	}
}

// Channels returns the channels created so far, ordered by name.
func (cd *Conduit[P, E]) Channels() []*Channel[E] {
	table := *cd.percepts.Load()
	out := make([]*Channel[E], 0, len(table))
	for _, e := range table {
		out = append(out, e.channel)
	}
	sort.Slice(out, func(i, j int) bool { return name.Compare(out[i].name, out[j].name) < 0 })
	return out
}

// Subscribe adds s to every channel of the conduit, present and future. The
// addition is queued on the circuit; s is activated on a channel when that
// channel next delivers. s must belong to the conduit's circuit.
func (cd *Conduit[P, E]) Subscribe(s *Subscriber[E]) (*Subscription, error) {
	return join(cd.circuit, &cd.roster, cd, s)
}

// Reservoir subscribes a subscriber that captures every emission on every
// channel of the conduit until the reservoir is closed.
func (cd *Conduit[P, E]) Reservoir() (*Reservoir[E], error) {
	return newReservoir(cd.circuit, cd, cd.Subscribe)
}

// join queues s onto r and returns the subscription that takes it off again.
func join[E any](c *Circuit, r *roster[E], owner interface{ Subject() *Subject }, s *Subscriber[E]) (*Subscription, error) {
	if s == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if s.circuit != c {
		return nil, errspkg.ErrCircuitMismatch
	}
	if s.Closed() {
		return nil, errspkg.ErrSubscriberClosed
	}
	if c.State() == CircuitClosed {
		return nil, errspkg.ErrCircuitClosed
	}

	m := &membership[E]{subscriber: s}
	c.Submit(func() { r.add(m) })

	sub := &Subscription{owner: owner}
	sub.cancel = func() {
		c.tidy(func() { r.remove(m) })
		s.untrack(sub)
	}
	if !s.track(sub) {
		_ = sub.Close()
	}
	return sub, nil
}
