package runtime

import "sync/atomic"

// Subscription cancels one Conduit.Subscribe. Removal is queued on the
// circuit, so deliveries already in flight may still arrive after Close
// returns; each channel stops delivering at its next rebuild.
type Subscription struct {
	owner   interface{ Subject() *Subject }
	subject lazySubject
	closed  atomic.Bool
	cancel  func()
}

// Subject returns the subscription's identity, enclosed by the conduit's.
func (s *Subscription) Subject() *Subject {
	return s.subject.get(KindSubscription, nil, s.owner.Subject)
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool { return s.closed.Load() }

// Close queues the removal. Only the first call has an effect.
func (s *Subscription) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
	}
	return nil
}
