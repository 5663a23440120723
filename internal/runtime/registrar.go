package runtime

import (
	"sync/atomic"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
)

// Registrar collects the receptors a subscriber wants on one channel. It is
// only valid inside the activation callback it was passed to.
type Registrar[E any] struct {
	receptors []Receptor[E]
	closed    atomic.Bool
}

// Register adds receptor to the channel's dispatch table.
func (r *Registrar[E]) Register(receptor Receptor[E]) error {
	if receptor == nil {
		return errspkg.ErrReceptorRequired
	}
	if r.closed.Load() {
		return errspkg.ErrRegistrarClosed
	}
	r.receptors = append(r.receptors, receptor)
	return nil
}

// RegisterPipe forwards the channel's emissions into p. A pipe on the same
// circuit receives them as cascades, so a pipe that feeds back into its own
// channel forms a loop rather than unbounded recursion.
func (r *Registrar[E]) RegisterPipe(p *Pipe[E]) error {
	if p == nil {
		return errspkg.ErrPipeRequired
	}
	return r.Register(p.Emit)
}
