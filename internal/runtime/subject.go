package runtime

import (
	"strings"
	"sync/atomic"

	"github.com/drblury/signalflow/internal/runtime/ids"
	"github.com/drblury/signalflow/internal/runtime/name"
	"github.com/drblury/signalflow/internal/runtime/state"
)

// Kind classifies what a Subject identifies.
type Kind string

const (
	KindCortex       Kind = "cortex"
	KindCircuit      Kind = "circuit"
	KindConduit      Kind = "conduit"
	KindChannel      Kind = "channel"
	KindPipe         Kind = "pipe"
	KindSubscriber   Kind = "subscriber"
	KindSubscription Kind = "subscription"
	KindReservoir    Kind = "reservoir"
	KindTap          Kind = "tap"
	KindCell         Kind = "cell"
)

// Subject is the identity of a component: a unique id, an optional interned
// name, the component kind, attached state and the enclosing subject.
type Subject struct {
	ID        string
	Name      *name.Name
	Kind      Kind
	State     state.State
	Enclosure *Subject
}

func newSubject(kind Kind, n *name.Name, enclosure *Subject) *Subject {
	return &Subject{
		ID:        ids.CreateULID(),
		Name:      n,
		Kind:      kind,
		Enclosure: enclosure,
	}
}

// Path renders the subject's name, falling back to its id when anonymous.
func (s *Subject) Path() string {
	if s.Name != nil {
		return s.Name.Path()
	}
	return s.ID
}

// String renders the chain of enclosing subjects, outermost first, e.g.
// "circuit:app/conduit:metrics/channel:requests".
func (s *Subject) String() string {
	var parts []string
	for c := s; c != nil; c = c.Enclosure {
		parts = append(parts, string(c.Kind)+":"+c.Path())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// lazySubject materialises a subject on first use so hot emission paths never
// pay for id generation.
type lazySubject struct {
	p atomic.Pointer[Subject]
}

func (l *lazySubject) get(kind Kind, n *name.Name, enclosure func() *Subject) *Subject {
	if s := l.p.Load(); s != nil {
		return s
	}
	var parent *Subject
	if enclosure != nil {
		parent = enclosure()
	}
	s := newSubject(kind, n, parent)
	if l.p.CompareAndSwap(nil, s) {
		return s
	}
	return l.p.Load()
}
