package runtime

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/signalflow/internal/runtime/config"
	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/signalflow/internal/runtime/logging"
	"github.com/drblury/signalflow/internal/runtime/name"
)

const tracerName = "github.com/drblury/signalflow"

// CircuitState is the lifecycle of a circuit: open, then closing once Close
// is called, then closed when the worker has processed the close marker.
type CircuitState int32

const (
	CircuitOpen CircuitState = iota
	CircuitClosing
	CircuitClosed
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitClosing:
		return "closing"
	case CircuitClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CircuitState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = CircuitOpen
	case "closing":
		*s = CircuitClosing
	case "closed":
		*s = CircuitClosed
	default:
		return fmt.Errorf("signalflow: unknown circuit state %q", text)
	}
	return nil
}

// CircuitOption configures a circuit.
type CircuitOption func(*circuitOptions)

type circuitOptions struct {
	logger    loggingpkg.ServiceLogger
	hooks     DeliveryHooks
	metrics   *Metrics
	tracer    trace.Tracer
	spinCount int
}

// WithLogger sets the logger used for lifecycle events and recovered panics.
func WithLogger(logger loggingpkg.ServiceLogger) CircuitOption {
	return func(o *circuitOptions) { o.logger = logger }
}

// WithHooks adds delivery hooks. Repeated options are merged in order.
func WithHooks(hooks DeliveryHooks) CircuitOption {
	return func(o *circuitOptions) { o.hooks = o.hooks.Merge(hooks) }
}

// WithMetrics records the circuit's activity on m.
func WithMetrics(m *Metrics) CircuitOption {
	return func(o *circuitOptions) { o.metrics = m }
}

// WithTracer overrides the OpenTelemetry tracer (the global provider's tracer
// by default).
func WithTracer(t trace.Tracer) CircuitOption {
	return func(o *circuitOptions) { o.tracer = t }
}

// WithSpinCount sets how many idle polls the worker makes before parking.
// Zero parks immediately.
func WithSpinCount(n int) CircuitOption {
	return func(o *circuitOptions) {
		if n >= 0 {
			o.spinCount = n
		}
	}
}

// Circuit is a single-consumer execution engine. Every emission, cascade and
// subscriber-table mutation for the conduits it owns runs on its one worker
// goroutine, in the order described on Emit and Submit.
type Circuit struct {
	name    *name.Name
	label   string
	subject lazySubject
	created time.Time

	logger      loggingpkg.ServiceLogger
	hooks       DeliveryHooks
	tracer      trace.Tracer
	instruments circuitInstruments
	spinCount   int

	ingress *ingressQueue
	transit transitQueue

	state    atomic.Int32
	inflight atomic.Int64
	parked   atomic.Bool
	busy     atomic.Bool
	workerID atomic.Uint64
	wake     chan struct{}
	done     chan struct{}

	closeMarker func(any)
	stats       circuitCounters
}

// NewCircuit starts a circuit. n may be nil for an anonymous circuit.
func NewCircuit(n *name.Name, opts ...CircuitOption) *Circuit {
	o := circuitOptions{spinCount: configpkg.DefaultSpinCount}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = loggingpkg.NopLogger()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	c := &Circuit{
		name:      n,
		created:   time.Now(),
		hooks:     o.hooks,
		tracer:    o.tracer,
		spinCount: o.spinCount,
		ingress:   newIngressQueue(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	c.label = c.Subject().Path()
	c.logger = o.logger.With(loggingpkg.LogFields{"circuit": c.label})
	c.instruments = o.metrics.bind(c.label)
	c.closeMarker = func(any) { c.state.Store(int32(CircuitClosed)) }

	c.instruments.opened()
	go c.run()
	c.logger.Debug("Circuit started", nil)
	return c
}

// Name returns the circuit's name, nil when anonymous.
func (c *Circuit) Name() *name.Name { return c.name }

// Subject returns the circuit's identity.
func (c *Circuit) Subject() *Subject {
	return c.subject.get(KindCircuit, c.name, nil)
}

// State returns the current lifecycle state.
func (c *Circuit) State() CircuitState {
	return CircuitState(c.state.Load())
}

// Done is closed once the worker has exited.
func (c *Circuit) Done() <-chan struct{} { return c.done }

// Stats returns a snapshot of the circuit's counters.
func (c *Circuit) Stats() CircuitStats {
	s := c.stats.snapshot()
	s.Name = c.label
	s.ID = c.Subject().ID
	s.State = c.State()
	s.CreatedAt = c.created
	return s
}

// onWorker reports whether the caller is running on this circuit's worker.
// busy is only set while the worker is inside a delivery, and only then is
// the goroutine id worth computing: outside a delivery no caller can be the
// worker.
func (c *Circuit) onWorker() bool {
	if !c.busy.Load() {
		return false
	}
	return goroutineID() == c.workerID.Load()
}

// Emit delivers value to receiver. Called on the worker (a cascade), the pair
// is queued on transit and runs once the current delivery returns, ahead of
// any ingress work, so every receptor of a dispatch sees the cause before the
// effect. Called from any other goroutine, the pair is queued on ingress and
// Emit returns immediately; values from one goroutine are delivered in the
// order emitted. Emissions offered after the circuit has closed are dropped.
// A nil receiver is ignored.
func (c *Circuit) Emit(receiver func(any), value any) {
	if receiver == nil {
		return
	}
	c.route(receiver, value)
}

// Submit runs task on the worker. It is routed like Emit.
func (c *Circuit) Submit(task func()) {
	if task == nil {
		return
	}
	c.route(runTask, task)
}

func runTask(v any) { v.(func())() }

// route queues on transit when on the worker and on ingress otherwise.
func (c *Circuit) route(receiver func(any), value any) {
	if c.onWorker() {
		c.cascade(receiver, value)
		return
	}
	c.enqueue(receiver, value)
}

// cascade queues on transit. Worker only.
func (c *Circuit) cascade(receiver func(any), value any) {
	c.stats.emitted.Add(1)
	c.stats.cascaded.Add(1)
	inc(c.instruments.transit)
	c.transit.push(receiver, value)
}

func (c *Circuit) enqueue(receiver func(any), value any) bool {
	return c.offer(receiver, value, true)
}

// tidy runs a teardown task on the worker. Once the circuit has closed the
// task is discarded and not counted as a drop.
func (c *Circuit) tidy(task func()) {
	if c.onWorker() {
		c.cascade(runTask, task)
		return
	}
	c.offer(runTask, task, false)
}

// offer is bracketed by inflight so the worker, once closed, can wait for
// producers that saw the circuit still open to finish their push.
func (c *Circuit) offer(receiver func(any), value any, counted bool) bool {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)
	if c.State() == CircuitClosed {
		if counted {
			c.drop(value)
		}
		return false
	}
	c.ingress.push(receiver, value)
	c.stats.emitted.Add(1)
	inc(c.instruments.ingress)
	c.signal()
	return true
}

func (c *Circuit) signal() {
	if c.parked.Load() {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

func (c *Circuit) drop(value any) {
	c.stats.dropped.Add(1)
	inc(c.instruments.dropped)
	if c.hooks.OnDrop != nil {
		c.hooks.OnDrop(DeliveryContext{Circuit: c.label, Value: value, At: time.Now()})
	}
}

// Await blocks until every emission queued before the call, and everything
// those emissions cascade into, has been delivered. Once the circuit is
// closed it waits for the worker to exit instead. Calling Await from the
// worker would deadlock and returns ErrAwaitOnWorker.
func (c *Circuit) Await(ctx context.Context) error {
	if c.onWorker() {
		return errspkg.ErrAwaitOnWorker
	}

	ctx, span := c.tracer.Start(ctx, "signalflow.circuit.await",
		trace.WithAttributes(attribute.String("signalflow.circuit", c.label)))
	defer span.End()

	start := time.Now()
	defer func() { c.instruments.awaited(time.Since(start)) }()

	var reached <-chan struct{}
	if c.State() != CircuitClosed {
		marker := make(chan struct{})
		if c.enqueue(closeSignal, marker) {
			reached = marker
		}
	}

	select {
	case <-reached:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return ctx.Err()
	}
}

func closeSignal(v any) { close(v.(chan struct{})) }

// Close stops the circuit. Work queued before Close is still delivered; the
// worker exits once the queues are empty. Close never blocks; use Await or
// Done to observe the drain. Calling Close more than once is a no-op.
func (c *Circuit) Close() error {
	if !c.state.CompareAndSwap(int32(CircuitOpen), int32(CircuitClosing)) {
		return nil
	}
	c.ingress.push(c.closeMarker, nil)
	c.signal()
	c.logger.Debug("Circuit closing", nil)
	return nil
}

func (c *Circuit) run() {
	c.workerID.Store(goroutineID())
	defer func() {
		c.instruments.exited()
		c.logger.Debug("Circuit worker exited", loggingpkg.LogFields{"delivered": c.stats.delivered.Load()})
		close(c.done)
	}()

	idle := 0
	for {
		if c.drain() {
			idle = 0
			continue
		}
		if c.State() == CircuitClosed {
			c.settle()
			return
		}
		if idle < c.spinCount {
			idle++
			runtime.Gosched()
			continue
		}
		idle = 0

		c.parked.Store(true)
		if c.ingress.pending() {
			c.parked.Store(false)
			continue
		}
		<-c.wake
		c.parked.Store(false)
		c.stats.parks.Add(1)
		inc(c.instruments.parks)
	}
}

// settle delivers whatever producers pushed while the close marker was in
// flight. Producers arriving later observe CircuitClosed and drop.
func (c *Circuit) settle() {
	for c.inflight.Load() != 0 {
		runtime.Gosched()
	}
	c.drain()
}

// drain delivers until both queues are empty, resolving each ingress item's
// cascades before taking the next one. It reports whether anything ran.
func (c *Circuit) drain() bool {
	worked := c.drainTransit()
	for {
		e, ok := c.ingress.pop()
		if !ok {
			return worked
		}
		worked = true
		c.invoke(e.fn, e.val)
		c.drainTransit()
	}
}

func (c *Circuit) drainTransit() bool {
	worked := false
	for {
		e, ok := c.transit.pop()
		if !ok {
			return worked
		}
		worked = true
		c.invoke(e.fn, e.val)
	}
}

func (c *Circuit) invoke(fn func(any), value any) {
	c.busy.Store(true)
	defer func() {
		if r := recover(); r != nil {
			c.fail(DeliveryContext{Circuit: c.label, Value: value}, r)
		}
		c.busy.Store(false)
	}()
	fn(value)
	c.stats.delivered.Add(1)
	inc(c.instruments.deliveries)
}

// fail records a recovered panic. The worker carries on with the next item.
func (c *Circuit) fail(ctx DeliveryContext, recovered any) {
	err := &errspkg.PanicError{Value: recovered, Stack: debug.Stack()}
	ctx.At = time.Now()

	c.stats.failed.Add(1)
	inc(c.instruments.failures)
	c.logger.Error("Receptor panicked", err, loggingpkg.LogFields{
		"conduit":    ctx.Conduit,
		"channel":    ctx.Channel,
		"subscriber": ctx.Subscriber,
	})
	if c.hooks.OnFailure != nil {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Failure hook panicked", &errspkg.PanicError{Value: r}, nil)
			}
		}()
		c.hooks.OnFailure(ctx, err)
	}
}

func (c *Circuit) activated(ctx DeliveryContext) {
	c.stats.activations.Add(1)
	inc(c.instruments.activations)
	if c.hooks.OnActivate != nil {
		ctx.At = time.Now()
		c.hooks.OnActivate(ctx)
	}
}

func (c *Circuit) rebuilt() {
	c.stats.rebuilds.Add(1)
	inc(c.instruments.rebuilds)
}
