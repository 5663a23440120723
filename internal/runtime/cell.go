package runtime

import (
	"sync"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

// Cell is a node in a tree of emitters on one circuit. What a child cell
// receives flows upward: each ancestor's subscribers observe it on the
// channel of the child it arrived through, and the root hands it to its
// receptor. What the root receives goes straight to the receptor.
type Cell[E any] struct {
	circuit  *Circuit
	name     *name.Name
	parent   *Cell[E]
	receptor Receptor[E]
	subject  lazySubject
	pipe     *Pipe[E]

	mu       sync.Mutex
	children map[*name.Name]*Cell[E]

	// Worker-only observer state, keyed by subscriber then child name.
	roster roster[E]
	built  uint64
	order  []*Subscriber[E]
	active map[*Subscriber[E]]map[*name.Name][]Receptor[E]
}

// NewCell creates a root cell on c. n may be nil.
func NewCell[E any](c *Circuit, n *name.Name, receptor Receptor[E]) (*Cell[E], error) {
	if c == nil {
		return nil, errspkg.ErrCircuitRequired
	}
	if receptor == nil {
		return nil, errspkg.ErrReceptorRequired
	}
	return newCell(c, n, nil, receptor), nil
}

func newCell[E any](c *Circuit, n *name.Name, parent *Cell[E], receptor Receptor[E]) *Cell[E] {
	cell := &Cell[E]{
		circuit:  c,
		name:     n,
		parent:   parent,
		receptor: receptor,
		children: make(map[*name.Name]*Cell[E]),
		active:   make(map[*Subscriber[E]]map[*name.Name][]Receptor[E]),
	}
	cell.pipe = newPipe[E](c, n, cell.receive)
	return cell
}

// CellInput returns a pipe that maps each value through fn and hands it to
// cell, for cells fed with a different input type.
func CellInput[I, E any](cell *Cell[E], fn func(I) E) (*Pipe[I], error) {
	if cell == nil {
		return nil, errspkg.ErrPipeRequired
	}
	if fn == nil {
		return nil, errspkg.ErrMapperRequired
	}
	return NewPipe[I](cell.circuit, cell.name, func(v I) { cell.receive(fn(v)) })
}

// Circuit returns the owning circuit.
func (cell *Cell[E]) Circuit() *Circuit { return cell.circuit }

// Name returns the cell's name, nil for an anonymous root.
func (cell *Cell[E]) Name() *name.Name { return cell.name }

// Enclosure returns the parent cell, nil for a root.
func (cell *Cell[E]) Enclosure() *Cell[E] { return cell.parent }

// Subject returns the cell's identity, enclosed by its parent's or, for a
// root, by the circuit's.
func (cell *Cell[E]) Subject() *Subject {
	enclosure := cell.circuit.Subject
	if cell.parent != nil {
		enclosure = cell.parent.Subject
	}
	return cell.subject.get(KindCell, cell.name, enclosure)
}

// Percept returns the child cell n, creating it on first use.
func (cell *Cell[E]) Percept(n *name.Name) (*Cell[E], error) {
	if n == nil {
		return nil, errspkg.ErrNameRequired
	}
	cell.mu.Lock()
	defer cell.mu.Unlock()
	child, ok := cell.children[n]
	if !ok {
		child = newCell(cell.circuit, n, cell, nil)
		cell.children[n] = child
	}
	return child, nil
}

// Receive queues v on the circuit.
func (cell *Cell[E]) Receive(v E) { cell.pipe.Emit(v) }

// Subscribe lets s observe what arrives through this cell's children. s is
// activated once per child, on that child's first emission after s joined.
func (cell *Cell[E]) Subscribe(s *Subscriber[E]) (*Subscription, error) {
	return join(cell.circuit, &cell.roster, cell, s)
}

// Reservoir captures everything arriving through this cell's children.
func (cell *Cell[E]) Reservoir() (*Reservoir[E], error) {
	return newReservoir(cell.circuit, cell, cell.Subscribe)
}

func (cell *Cell[E]) receive(v E) {
	if cell.parent != nil {
		cell.parent.arrive(cell, v)
		return
	}
	cell.receptor(v)
}

// arrive handles v coming up from child: local observers first, then the
// ancestors, then the receptor.
func (cell *Cell[E]) arrive(child *Cell[E], v E) {
	cell.observe(child, v)
	if cell.parent != nil {
		cell.parent.arrive(cell, v)
		return
	}
	cell.receptor(v)
}

func (cell *Cell[E]) observe(child *Cell[E], v E) {
	if cell.built != cell.roster.version {
		cell.resync()
	}
	for _, s := range cell.order {
		byChild := cell.active[s]
		rs, ok := byChild[child.name]
		if !ok {
			rs = activate(cell.circuit, s, child.Subject(), cell.context(s, child, nil))
			byChild[child.name] = rs
		}
		for _, r := range rs {
			cell.deliver(r, child, v)
		}
	}
}

// resync brings the observer list in line with the roster, forgetting the
// activations of departed subscribers.
func (cell *Cell[E]) resync() {
	order := make([]*Subscriber[E], 0, len(cell.roster.members))
	present := make(map[*Subscriber[E]]bool, len(cell.roster.members))
	for _, m := range cell.roster.members {
		s := m.subscriber
		if present[s] {
			continue
		}
		present[s] = true
		order = append(order, s)
		if cell.active[s] == nil {
			cell.active[s] = make(map[*name.Name][]Receptor[E])
		}
	}
	for s := range cell.active {
		if !present[s] {
			delete(cell.active, s)
		}
	}
	cell.order = order
	cell.built = cell.roster.version
}

func (cell *Cell[E]) deliver(r Receptor[E], child *Cell[E], v E) {
	defer func() {
		if p := recover(); p != nil {
			cell.circuit.fail(cell.context(nil, child, v), p)
		}
	}()
	r(v)
}

func (cell *Cell[E]) context(s *Subscriber[E], child *Cell[E], value any) DeliveryContext {
	ctx := DeliveryContext{
		Circuit: cell.circuit.label,
		Conduit: cell.Subject().Path(),
		Channel: child.name.Path(),
		Value:   value,
	}
	if s != nil {
		ctx.Subscriber = s.Subject().Path()
	}
	return ctx
}
