package runtime

import "sync"

// Capture is one emission recorded by a reservoir, with the subject of the
// channel it passed through.
type Capture[E any] struct {
	Subject  *Subject
	Emission E
}

// Reservoir records emissions from a conduit. Captures are appended on the
// circuit worker and may be drained from any goroutine.
type Reservoir[E any] struct {
	owner        interface{ Subject() *Subject }
	subject      lazySubject
	subscriber   *Subscriber[E]
	subscription *Subscription

	mu       sync.Mutex
	captures []Capture[E]
}

// Subject returns the reservoir's identity.
func (r *Reservoir[E]) Subject() *Subject {
	return r.subject.get(KindReservoir, nil, r.owner.Subject)
}

func (r *Reservoir[E]) capture(channel *Subject, v E) {
	r.mu.Lock()
	r.captures = append(r.captures, Capture[E]{Subject: channel, Emission: v})
	r.mu.Unlock()
}

// Drain returns the captures recorded since the last Drain, oldest first.
func (r *Reservoir[E]) Drain() []Capture[E] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.captures
	r.captures = nil
	return out
}

// Close stops capturing.
func (r *Reservoir[E]) Close() error {
	return r.subscriber.Close()
}

func newReservoir[E any](c *Circuit, owner interface{ Subject() *Subject }, subscribe func(*Subscriber[E]) (*Subscription, error)) (*Reservoir[E], error) {
	r := &Reservoir[E]{owner: owner}
	s, err := NewSubscriber[E](c, nil, func(channel *Subject, reg *Registrar[E]) {
		_ = reg.Register(func(v E) { r.capture(channel, v) })
	})
	if err != nil {
		return nil, err
	}
	sub, err := subscribe(s)
	if err != nil {
		return nil, err
	}
	r.subscriber = s
	r.subscription = sub
	return r, nil
}
