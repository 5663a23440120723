// Package scope ties the lifetime of closeable resources together.
package scope

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

// Scope closes registered resources in reverse registration order. Child
// scopes are closed before the parent's own resources.
type Scope struct {
	name   *name.Name
	parent *Scope

	mu        sync.Mutex
	resources []io.Closer
	children  []*Scope
	closed    bool
}

// New returns a root scope.
func New(n *name.Name) *Scope {
	return &Scope{name: n}
}

// Name returns the scope's name; it may be nil for anonymous scopes.
func (s *Scope) Name() *name.Name { return s.name }

// Register adds r to the scope. When the scope is already closed r is closed
// immediately and ErrScopeClosed is returned alongside any close error.
func (s *Scope) Register(r io.Closer) error {
	if r == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Join(errspkg.ErrScopeClosed, r.Close())
	}
	s.resources = append(s.resources, r)
	s.mu.Unlock()
	return nil
}

// Child opens a nested scope that closes with s.
func (s *Scope) Child(n *name.Name) (*Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errspkg.ErrScopeClosed
	}
	c := &Scope{name: n, parent: s}
	s.children = append(s.children, c)
	return c, nil
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes children newest first, then resources newest first. Every
// resource is closed even when earlier ones fail; the errors are joined.
// Subsequent calls return nil.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	children := s.children
	resources := s.resources
	s.children, s.resources = nil, nil
	s.mu.Unlock()

	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		errs = append(errs, children[i].Close())
	}
	for i := len(resources) - 1; i >= 0; i-- {
		errs = append(errs, resources[i].Close())
	}
	if s.parent != nil {
		s.parent.forget(s)
	}
	return errors.Join(errs...)
}

func (s *Scope) forget(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// release drops r from the resources without closing it.
func (s *Scope) release(r io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.resources {
		if cur == r {
			s.resources = append(s.resources[:i], s.resources[i+1:]...)
			return
		}
	}
}

// Closure is a single-use handle on a resource owned by a scope. Consume
// lends the resource to a block and closes it afterwards; a closure never
// consumed is closed with its scope.
type Closure[R io.Closer] struct {
	scope    *Scope
	resource R
	used     atomic.Bool
}

// NewClosure registers r with s behind a single-use handle.
func NewClosure[R io.Closer](s *Scope, r R) (*Closure[R], error) {
	if any(r) == nil {
		return nil, errspkg.ErrResourceRequired
	}
	c := &Closure[R]{scope: s, resource: r}
	if err := s.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Consume calls fn with the resource and then closes it, returning the close
// error. Once the closure was consumed, or its scope closed, it does nothing.
func (c *Closure[R]) Consume(fn func(R)) (err error) {
	if !c.used.CompareAndSwap(false, true) {
		return nil
	}
	c.scope.release(c)
	defer func() { err = c.resource.Close() }()
	fn(c.resource)
	return nil
}

// Close closes the resource unless Consume already did.
func (c *Closure[R]) Close() error {
	if !c.used.CompareAndSwap(false, true) {
		return nil
	}
	return c.resource.Close()
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }
