package runtime

import "sync/atomic"

const ingressChunkSize = 64

// emission is a receiver paired with the value it should receive.
type emission struct {
	fn  func(any)
	val any
}

type ingressSlot struct {
	emission
	ready atomic.Bool
}

type ingressChunk struct {
	slots   [ingressChunkSize]ingressSlot
	claimed atomic.Int64
	next    atomic.Pointer[ingressChunk]
}

// ingressQueue is an unbounded multi-producer, single-consumer queue.
//
// Producers claim a slot in the tail chunk with a single atomic add, fill it,
// and publish it by setting ready. When a chunk is exhausted the first
// producer to notice links a fresh chunk and the tail is moved forward with a
// CAS. Consumed chunks are left to the garbage collector rather than reused:
// a producer that stalled between loading the tail and claiming could
// otherwise claim a slot in a recycled chunk the consumer has already passed.
//
// Only the worker calls pop and pending.
type ingressQueue struct {
	tail atomic.Pointer[ingressChunk]

	head *ingressChunk
	read int
}

func newIngressQueue() *ingressQueue {
	c := &ingressChunk{}
	q := &ingressQueue{head: c}
	q.tail.Store(c)
	return q
}

func (q *ingressQueue) push(fn func(any), val any) {
	for {
		t := q.tail.Load()
		if i := t.claimed.Add(1) - 1; i < ingressChunkSize {
			s := &t.slots[i]
			s.fn = fn
			s.val = val
			s.ready.Store(true)
			return
		}
		next := t.next.Load()
		if next == nil {
			fresh := &ingressChunk{}
			if t.next.CompareAndSwap(nil, fresh) {
				next = fresh
			} else {
				next = t.next.Load()
			}
		}
		q.tail.CompareAndSwap(t, next)
	}
}

// pop returns the next published emission. A slot that has been claimed but
// not yet published ends the drain; its producer wakes the worker once it
// publishes.
func (q *ingressQueue) pop() (emission, bool) {
	for {
		if q.read == ingressChunkSize {
			next := q.head.next.Load()
			if next == nil {
				return emission{}, false
			}
			q.head = next
			q.read = 0
		}
		s := &q.head.slots[q.read]
		if !s.ready.Load() {
			return emission{}, false
		}
		e := s.emission
		s.emission = emission{}
		q.read++
		return e, true
	}
}

// pending reports whether pop would return an emission.
func (q *ingressQueue) pending() bool {
	c, i := q.head, q.read
	if i == ingressChunkSize {
		if c = c.next.Load(); c == nil {
			return false
		}
		i = 0
	}
	return c.slots[i].ready.Load()
}
