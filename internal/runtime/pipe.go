package runtime

import (
	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

// Receptor receives emissions of type E.
type Receptor[E any] func(E)

// Pipe is the handle producers emit through. A pipe bound to a circuit hands
// every value to Circuit.Emit; a direct pipe calls its receptor on the
// emitting goroutine.
type Pipe[E any] struct {
	circuit  *Circuit
	name     *name.Name
	receptor Receptor[E]
	deliver  func(any)
	subject  lazySubject
}

// NewPipe binds receptor to circuit. n may be nil.
func NewPipe[E any](c *Circuit, n *name.Name, receptor Receptor[E]) (*Pipe[E], error) {
	if c == nil {
		return nil, errspkg.ErrCircuitRequired
	}
	if receptor == nil {
		return nil, errspkg.ErrReceptorRequired
	}
	return newPipe(c, n, receptor), nil
}

// DirectPipe returns a pipe with no circuit: Emit calls receptor inline.
func DirectPipe[E any](n *name.Name, receptor Receptor[E]) (*Pipe[E], error) {
	if receptor == nil {
		return nil, errspkg.ErrReceptorRequired
	}
	return newPipe(nil, n, receptor), nil
}

func newPipe[E any](c *Circuit, n *name.Name, receptor Receptor[E]) *Pipe[E] {
	return &Pipe[E]{
		circuit:  c,
		name:     n,
		receptor: receptor,
		deliver:  func(v any) { receptor(v.(E)) },
	}
}

// Emit sends value down the pipe.
func (p *Pipe[E]) Emit(value E) {
	if p.circuit == nil {
		p.receptor(value)
		return
	}
	p.circuit.Emit(p.deliver, value)
}

// Circuit returns the owning circuit, nil for a direct pipe.
func (p *Pipe[E]) Circuit() *Circuit { return p.circuit }

// Subject returns the pipe's identity, enclosed by its circuit's.
func (p *Pipe[E]) Subject() *Subject {
	var enclosure func() *Subject
	if p.circuit != nil {
		enclosure = p.circuit.Subject
	}
	return p.subject.get(KindPipe, p.name, enclosure)
}
