package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drblury/signalflow/internal/runtime/name"
)

func newTestCircuit(t *testing.T, opts ...CircuitOption) *Circuit {
	t.Helper()
	c := NewCircuit(nil, opts...)
	t.Cleanup(func() {
		_ = c.Close()
		<-c.Done()
	})
	return c
}

func newNamedCircuit(t *testing.T, path string, opts ...CircuitOption) *Circuit {
	t.Helper()
	c := NewCircuit(name.MustParse(path), opts...)
	t.Cleanup(func() {
		_ = c.Close()
		<-c.Done()
	})
	return c
}

func awaitCircuit(t *testing.T, c *Circuit) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Await(ctx); err != nil {
		t.Fatalf("await: %v", err)
	}
}

// recorder collects values from receptors. Receptors run on the worker but
// tests read from their own goroutine, so access is locked.
type recorder[E any] struct {
	mu     sync.Mutex
	values []E
}

func (r *recorder[E]) record(v E) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[E]) snapshot() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]E, len(r.values))
	copy(out, r.values)
	return out
}
