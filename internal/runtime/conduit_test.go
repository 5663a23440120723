package runtime

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	"github.com/drblury/signalflow/internal/runtime/name"
)

func newPipeConduit[E any](t *testing.T, c *Circuit, path string) *Conduit[*Pipe[E], E] {
	t.Helper()
	var n *name.Name
	if path != "" {
		n = name.MustParse(path)
	}
	cd, err := NewConduit(c, n, PipeComposer[E]())
	require.NoError(t, err)
	return cd
}

func percept[E any](t *testing.T, cd *Conduit[*Pipe[E], E], path string) *Pipe[E] {
	t.Helper()
	p, err := cd.Percept(name.MustParse(path))
	require.NoError(t, err)
	return p
}

func TestConduitPreservesPerProducerOrder(t *testing.T) {
	const (
		producers = 4
		perThread = 250
	)
	c := newTestCircuit(t)
	cd := newPipeConduit[tagged](t, c, "metrics")

	var got recorder[tagged]
	s1, err := NewSubscriber[tagged](c, name.MustParse("S1"), func(_ *Subject, reg *Registrar[tagged]) {
		assert.NoError(t, reg.Register(got.record))
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(s1)
	require.NoError(t, err)

	requests := percept(t, cd, "requests")
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				requests.Emit(tagged{producer: p, seq: i})
			}
		}(p)
	}
	wg.Wait()
	awaitCircuit(t, c)

	values := got.snapshot()
	require.Len(t, values, producers*perThread)
	next := make([]int, producers)
	for _, v := range values {
		if v.seq != next[v.producer] {
			t.Fatalf("producer %d delivered %d, want %d", v.producer, v.seq, next[v.producer])
		}
		next[v.producer]++
	}
	assert.Equal(t, uint64(1), c.Stats().Activations)
}

func TestReemitOnWorkerKeepsCauseBeforeEffect(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")
	a := percept(t, cd, "a")

	first, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(func(v int) {
			if v == 1 {
				a.Emit(2)
			}
		})
	})
	require.NoError(t, err)
	var second recorder[int]
	next, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(second.record)
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(first)
	require.NoError(t, err)
	_, err = cd.Subscribe(next)
	require.NoError(t, err)

	a.Emit(1)
	awaitCircuit(t, c)

	assert.Equal(t, []int{1, 2}, second.snapshot())
}

func TestCloseAfterCircuitClosedIsNotADrop(t *testing.T) {
	var drops atomic.Int32
	c := newTestCircuit(t, WithHooks(DeliveryHooks{OnDrop: func(DeliveryContext) { drops.Add(1) }}))
	cd := newPipeConduit[int](t, c, "")

	s, err := NewSubscriber[int](c, nil, func(*Subject, *Registrar[int]) {})
	require.NoError(t, err)
	sub, err := cd.Subscribe(s)
	require.NoError(t, err)
	res, err := cd.Reservoir()
	require.NoError(t, err)
	percept(t, cd, "x").Emit(1)
	awaitCircuit(t, c)

	require.NoError(t, c.Close())
	<-c.Done()
	require.NoError(t, sub.Close())
	require.NoError(t, res.Close())

	assert.Zero(t, c.Stats().Dropped)
	assert.Zero(t, drops.Load())
}

func TestNewConduitValidation(t *testing.T) {
	_, err := NewConduit[*Pipe[int], int](nil, nil, PipeComposer[int]())
	assert.ErrorIs(t, err, errspkg.ErrCircuitRequired)

	c := newTestCircuit(t)
	_, err = NewConduit[*Pipe[int], int](c, nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrComposerRequired)

	cd := newPipeConduit[int](t, c, "")
	_, err = cd.Percept(nil)
	assert.ErrorIs(t, err, errspkg.ErrNameRequired)
	_, err = cd.Channel(nil)
	assert.ErrorIs(t, err, errspkg.ErrNameRequired)
}

func TestPerceptIsSharedUnderConcurrency(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "metrics")
	n := name.MustParse("requests")

	const callers = 32
	results := make([]*Pipe[int], callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			p, err := cd.Percept(n)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	close(start)
	wg.Wait()

	for _, p := range results {
		assert.Same(t, results[0], p)
	}
	ch, err := cd.Channel(n)
	require.NoError(t, err)
	assert.Same(t, ch.Pipe(), results[0])
	assert.Len(t, cd.Channels(), 1)
}

func TestChannelsAreOrderedByName(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")
	for _, path := range []string{"b", "a.z", "a", "c"} {
		percept(t, cd, path)
	}

	var got []string
	for _, ch := range cd.Channels() {
		got = append(got, ch.Name().Path())
	}
	assert.Equal(t, []string{"a", "a.z", "b", "c"}, got)
}

func TestSubscriberActivatesOncePerChannel(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "sensors")

	var (
		activations recorder[string]
		values      recorder[string]
	)
	s, err := NewSubscriber[int](c, name.MustParse("audit"), func(channel *Subject, reg *Registrar[int]) {
		activations.record(channel.Path())
		path := channel.Path()
		assert.NoError(t, reg.Register(func(v int) {
			values.record(path)
		}))
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(s)
	require.NoError(t, err)

	percept(t, cd, "a")
	awaitCircuit(t, c)
	assert.Empty(t, activations.snapshot(), "activation waits for the first emission")

	a, b := percept(t, cd, "a"), percept(t, cd, "b")
	a.Emit(1)
	a.Emit(2)
	b.Emit(3)
	a.Emit(4)
	awaitCircuit(t, c)

	assert.Equal(t, []string{"a", "b"}, activations.snapshot())
	assert.Equal(t, []string{"a", "a", "b", "a"}, values.snapshot())
	assert.Equal(t, uint64(2), c.Stats().Activations)
}

func TestLateSubscriberSeesOnlyLaterEmissions(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")
	pipe := percept(t, cd, "x")

	pipe.Emit(1)
	var got recorder[int]
	s, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(got.record)
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(s)
	require.NoError(t, err)
	pipe.Emit(2)
	awaitCircuit(t, c)

	assert.Equal(t, []int{2}, got.snapshot())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")
	pipe := percept(t, cd, "x")

	var got recorder[int]
	s, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(got.record)
	})
	require.NoError(t, err)
	sub, err := cd.Subscribe(s)
	require.NoError(t, err)

	pipe.Emit(1)
	awaitCircuit(t, c)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.True(t, sub.Closed())

	pipe.Emit(2)
	awaitCircuit(t, c)
	assert.Equal(t, []int{1}, got.snapshot())
	assert.False(t, s.Closed(), "closing a subscription leaves the subscriber usable")
}

func TestSubscriberCloseCascades(t *testing.T) {
	c := newTestCircuit(t)
	first := newPipeConduit[int](t, c, "first")
	second := newPipeConduit[int](t, c, "second")

	s, err := NewSubscriber[int](c, nil, func(*Subject, *Registrar[int]) {})
	require.NoError(t, err)
	sub1, err := first.Subscribe(s)
	require.NoError(t, err)
	sub2, err := second.Subscribe(s)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, sub1.Closed())
	assert.True(t, sub2.Closed())

	_, err = first.Subscribe(s)
	assert.ErrorIs(t, err, errspkg.ErrSubscriberClosed)
}

func TestSubscribeValidation(t *testing.T) {
	c := newTestCircuit(t)
	other := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")

	_, err := cd.Subscribe(nil)
	assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)

	var foreignActivations atomic.Int32
	foreign, err := NewSubscriber[int](other, nil, func(*Subject, *Registrar[int]) {
		foreignActivations.Add(1)
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(foreign)
	assert.ErrorIs(t, err, errspkg.ErrCircuitMismatch)
	percept(t, cd, "x").Emit(1)
	awaitCircuit(t, c)
	assert.Zero(t, foreignActivations.Load(), "a rejected subscriber is never added")

	_, err = NewSubscriber[int](nil, nil, func(*Subject, *Registrar[int]) {})
	assert.ErrorIs(t, err, errspkg.ErrCircuitRequired)
	_, err = NewSubscriber[int](c, nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrReceptorRequired)

	local, err := NewSubscriber[int](c, nil, func(*Subject, *Registrar[int]) {})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	<-c.Done()
	_, err = cd.Subscribe(local)
	assert.ErrorIs(t, err, errspkg.ErrCircuitClosed)
}

func TestRegistrarClosesAfterActivation(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")

	registrars := make(chan *Registrar[int], 1)
	s, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		assert.ErrorIs(t, reg.Register(nil), errspkg.ErrReceptorRequired)
		assert.ErrorIs(t, reg.RegisterPipe(nil), errspkg.ErrPipeRequired)
		registrars <- reg
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(s)
	require.NoError(t, err)

	percept(t, cd, "x").Emit(1)
	awaitCircuit(t, c)

	reg := <-registrars
	assert.ErrorIs(t, reg.Register(func(int) {}), errspkg.ErrRegistrarClosed)
}

func TestRegisterPipeFeedbackLoop(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")
	counter := percept(t, cd, "countdown")

	countdown, err := NewPipe[int](c, nil, func(v int) {
		if v > 0 {
			counter.Emit(v - 1)
		}
	})
	require.NoError(t, err)

	var got recorder[int]
	s, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		assert.NoError(t, reg.Register(got.record))
		assert.NoError(t, reg.RegisterPipe(countdown))
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(s)
	require.NoError(t, err)

	counter.Emit(3)
	counter.Emit(10)
	awaitCircuit(t, c)

	assert.Equal(t, []int{3, 2, 1, 0, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, got.snapshot())
	assert.NotZero(t, c.Stats().Cascaded)
}

func TestRegisterPipeAcrossCircuits(t *testing.T) {
	src := newTestCircuit(t)
	dst := newTestCircuit(t)
	cd := newPipeConduit[string](t, src, "")

	var got recorder[string]
	forward, err := NewPipe[string](dst, nil, got.record)
	require.NoError(t, err)

	s, err := NewSubscriber[string](src, nil, func(_ *Subject, reg *Registrar[string]) {
		assert.NoError(t, reg.RegisterPipe(forward))
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(s)
	require.NoError(t, err)

	percept(t, cd, "x").Emit("hello")
	awaitCircuit(t, src)
	awaitCircuit(t, dst)
	assert.Equal(t, []string{"hello"}, got.snapshot())
}

func TestDuplicateSubscriptionDeliversOnce(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")

	var got recorder[int]
	s, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(got.record)
	})
	require.NoError(t, err)
	first, err := cd.Subscribe(s)
	require.NoError(t, err)
	_, err = cd.Subscribe(s)
	require.NoError(t, err)

	pipe := percept(t, cd, "x")
	pipe.Emit(1)
	awaitCircuit(t, c)
	assert.Equal(t, []int{1}, got.snapshot())

	// The remaining subscription keeps the subscriber attached.
	require.NoError(t, first.Close())
	pipe.Emit(2)
	awaitCircuit(t, c)
	assert.Equal(t, []int{1, 2}, got.snapshot())
}

func TestActivationPanicIsContained(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")

	bad, err := NewSubscriber[int](c, nil, func(*Subject, *Registrar[int]) { panic("activation") })
	require.NoError(t, err)
	var got recorder[int]
	good, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(got.record)
	})
	require.NoError(t, err)

	_, err = cd.Subscribe(bad)
	require.NoError(t, err)
	_, err = cd.Subscribe(good)
	require.NoError(t, err)

	pipe := percept(t, cd, "x")
	pipe.Emit(1)
	pipe.Emit(2)
	awaitCircuit(t, c)

	assert.Equal(t, []int{1, 2}, got.snapshot())
	assert.Equal(t, uint64(1), c.Stats().Failed, "a failed activation is not retried")
}

func TestSubscribeDuringDispatch(t *testing.T) {
	c := newTestCircuit(t)
	cd := newPipeConduit[int](t, c, "")

	var late recorder[int]
	lateSub, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(late.record)
	})
	require.NoError(t, err)

	var once sync.Once
	s, err := NewSubscriber[int](c, nil, func(_ *Subject, reg *Registrar[int]) {
		_ = reg.Register(func(int) {
			once.Do(func() {
				_, err := cd.Subscribe(lateSub)
				assert.NoError(t, err)
			})
		})
	})
	require.NoError(t, err)
	_, err = cd.Subscribe(s)
	require.NoError(t, err)

	pipe := percept(t, cd, "x")
	pipe.Emit(1)
	pipe.Emit(2)
	awaitCircuit(t, c)

	assert.Equal(t, []int{2}, late.snapshot())
}

func TestChannelComposer(t *testing.T) {
	c := newTestCircuit(t)
	cd, err := NewConduit(c, name.MustParse("raw"), ChannelComposer[int]())
	require.NoError(t, err)

	ch, err := cd.Percept(name.MustParse("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", ch.Name().Path())
	assert.Same(t, c, cd.Circuit())
	assert.Equal(t, "raw", cd.Name().Path())
	assert.Equal(t, "circuit:"+c.Subject().ID+"/conduit:raw/channel:x", ch.Subject().String())
}
