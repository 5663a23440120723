package runtime

import (
	"sync"
	"testing"
)

func TestIngressQueueFIFOAcrossChunks(t *testing.T) {
	q := newIngressQueue()
	if q.pending() {
		t.Fatal("new queue reports pending work")
	}

	const n = ingressChunkSize*3 + 7
	for i := 0; i < n; i++ {
		q.push(nil, i)
	}
	if !q.pending() {
		t.Fatal("expected pending work")
	}
	for i := 0; i < n; i++ {
		e, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if e.val.(int) != i {
			t.Fatalf("pop %d: got %v", i, e.val)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("expected empty queue")
	}
	if q.pending() {
		t.Fatal("drained queue reports pending work")
	}
}

func TestIngressQueueExactChunkBoundary(t *testing.T) {
	q := newIngressQueue()
	for i := 0; i < ingressChunkSize; i++ {
		q.push(nil, i)
	}
	for i := 0; i < ingressChunkSize; i++ {
		if _, ok := q.pop(); !ok {
			t.Fatalf("pop %d failed", i)
		}
	}
	if q.pending() {
		t.Fatal("pending after draining a full chunk")
	}

	q.push(nil, "next")
	if !q.pending() {
		t.Fatal("push into the second chunk not visible")
	}
	e, ok := q.pop()
	if !ok || e.val != "next" {
		t.Fatalf("got %v, %v", e.val, ok)
	}
}

func TestIngressQueueConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perThread = 5000
	)
	q := newIngressQueue()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				q.push(nil, tagged{producer: p, seq: i})
			}
		}(p)
	}

	next := make([]int, producers)
	received := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	finished := false
	for received < producers*perThread {
		e, ok := q.pop()
		if !ok {
			if finished {
				// Every push has completed, so an empty pop is final.
				break
			}
			select {
			case <-done:
				finished = true
			default:
			}
			continue
		}
		v := e.val.(tagged)
		if v.seq != next[v.producer] {
			t.Fatalf("producer %d: got seq %d, want %d", v.producer, v.seq, next[v.producer])
		}
		next[v.producer]++
		received++
	}
	if received != producers*perThread {
		t.Fatalf("received %d of %d", received, producers*perThread)
	}
}
