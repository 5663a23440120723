package runtime

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/signalflow/internal/runtime/name"
)

// roster is a conduit's live subscriber list. Only the worker reads or
// writes it; version increases on every change.
type roster[E any] struct {
	members []*membership[E]
	version uint64
}

type membership[E any] struct {
	subscriber *Subscriber[E]
}

func (r *roster[E]) add(m *membership[E]) {
	r.members = append(r.members, m)
	r.version++
}

func (r *roster[E]) remove(m *membership[E]) {
	for i, cur := range r.members {
		if cur == m {
			r.members = append(r.members[:i:i], r.members[i+1:]...)
			r.version++
			return
		}
	}
}

// Channel is a named delivery endpoint inside a conduit. Its dispatch table
// is built lazily from the conduit's roster: a subscriber is activated on a
// channel the first time an emission passes through it after the subscriber
// joined.
type Channel[E any] struct {
	circuit *Circuit
	roster  *roster[E]
	owner   interface{ Subject() *Subject }
	conduit string
	name    *name.Name
	subject lazySubject
	pipe    *Pipe[E]

	// Worker-only dispatch state.
	built      uint64
	receptors  []Receptor[E]
	active     map[*Subscriber[E]][]Receptor[E]
	rebuilding bool
}

func newChannel[E any](c *Circuit, r *roster[E], owner interface{ Subject() *Subject }, conduit string, n *name.Name) *Channel[E] {
	ch := &Channel[E]{
		circuit: c,
		roster:  r,
		owner:   owner,
		conduit: conduit,
		name:    n,
	}
	ch.pipe = newPipe[E](c, n, ch.dispatch)
	return ch
}

// Name returns the channel's name.
func (ch *Channel[E]) Name() *name.Name { return ch.name }

// Subject returns the channel's identity, enclosed by its conduit's.
func (ch *Channel[E]) Subject() *Subject {
	return ch.subject.get(KindChannel, ch.name, ch.owner.Subject)
}

// Pipe returns the pipe that emits into this channel.
func (ch *Channel[E]) Pipe() *Pipe[E] { return ch.pipe }

// Emit sends value through the channel's pipe.
func (ch *Channel[E]) Emit(value E) { ch.pipe.Emit(value) }

// dispatch runs on the worker for every emission through the channel.
func (ch *Channel[E]) dispatch(value E) {
	if ch.built != ch.roster.version && !ch.rebuilding {
		ch.rebuild()
	}
	for _, r := range ch.receptors {
		ch.deliver(r, value)
	}
}

func (ch *Channel[E]) deliver(r Receptor[E], value E) {
	defer func() {
		if p := recover(); p != nil {
			ch.circuit.fail(ch.context(nil, value), p)
		}
	}()
	r(value)
}

func (ch *Channel[E]) context(s *Subscriber[E], value any) DeliveryContext {
	ctx := DeliveryContext{
		Circuit: ch.circuit.label,
		Conduit: ch.conduit,
		Channel: ch.name.Path(),
		Value:   value,
	}
	if s != nil {
		ctx.Subscriber = s.Subject().Path()
	}
	return ctx
}

// rebuild brings the dispatch table in line with the roster: subscribers new
// to this channel are activated once, departed ones lose their receptors,
// and the survivors are flattened in roster order. A fresh slice is built
// each time so a dispatch loop further up the stack keeps iterating the
// table it started with.
func (ch *Channel[E]) rebuild() {
	ch.rebuilding = true
	defer func() { ch.rebuilding = false }()

	members := ch.roster.members
	_, span := ch.circuit.tracer.Start(context.Background(), "signalflow.channel.rebuild",
		trace.WithAttributes(
			attribute.String("signalflow.circuit", ch.circuit.label),
			attribute.String("signalflow.conduit", ch.conduit),
			attribute.String("signalflow.channel", ch.name.Path()),
			attribute.Int("signalflow.subscribers", len(members)),
		))
	defer span.End()

	target := ch.roster.version
	next := make(map[*Subscriber[E]][]Receptor[E], len(members))
	var flat []Receptor[E]
	for _, m := range members {
		s := m.subscriber
		if _, seen := next[s]; seen {
			continue
		}
		rs, ok := ch.active[s]
		if !ok {
			rs = ch.activate(s)
		}
		next[s] = rs
		flat = append(flat, rs...)
	}

	ch.active = next
	ch.receptors = flat
	ch.built = target
	ch.circuit.rebuilt()
}

func (ch *Channel[E]) activate(s *Subscriber[E]) []Receptor[E] {
	return activate(ch.circuit, s, ch.Subject(), ch.context(s, nil))
}

// activate runs s's activation callback for channel with a fresh registrar.
// A closed subscriber, or one whose callback panics, contributes no
// receptors but is still considered activated.
func activate[E any](c *Circuit, s *Subscriber[E], channel *Subject, ctx DeliveryContext) (receptors []Receptor[E]) {
	if s.Closed() {
		return nil
	}
	reg := &Registrar[E]{}
	defer func() {
		reg.closed.Store(true)
		if p := recover(); p != nil {
			c.fail(ctx, p)
			receptors = nil
		}
	}()

	s.activation(channel, reg)
	c.activated(ctx)
	return reg.receptors
}
