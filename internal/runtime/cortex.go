package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/signalflow/internal/runtime/config"
	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/signalflow/internal/runtime/logging"
	"github.com/drblury/signalflow/internal/runtime/name"
	"github.com/drblury/signalflow/internal/runtime/scope"
	transportpkg "github.com/drblury/signalflow/transport"
	_ "github.com/drblury/signalflow/transport/channel"
	_ "github.com/drblury/signalflow/transport/io"
)

// shutdownTimeout bounds how long Start waits for HTTP servers to finish
// in-flight requests.
const shutdownTimeout = 5 * time.Second

// CortexDependencies holds the optional collaborators of a Cortex. Leave
// fields nil to use the defaults.
type CortexDependencies struct {
	// Registerer and Gatherer default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Hooks are installed on every circuit the cortex creates.
	Hooks DeliveryHooks
	// Tracer defaults to the global OpenTelemetry provider's tracer.
	Tracer trace.Tracer
	// TransportRegistry defaults to transport.DefaultRegistry.
	TransportRegistry *transportpkg.Registry
}

// Cortex is the process-level registry of circuits. Named circuits are
// created on first use and shared afterwards; every circuit, transport and
// child scope the cortex hands out is closed with it.
type Cortex struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	metrics    *Metrics
	gatherer   prometheus.Gatherer
	hooks      DeliveryHooks
	tracer     trace.Tracer
	transports *transportpkg.Registry
	subject    lazySubject
	created    time.Time

	mu        sync.RWMutex
	circuits  map[*name.Name]*Circuit
	anonymous []*Circuit
	root      *scope.Scope

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	resourceTracker *resourceTracker
}

// NewCortex constructs a Cortex and panics if the configuration is invalid.
func NewCortex(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps CortexDependencies) *Cortex {
	c, err := TryNewCortex(conf, log, deps)
	if err != nil {
		panic(err)
	}
	return c
}

// TryNewCortex constructs a Cortex, returning an error instead of panicking.
func TryNewCortex(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps CortexDependencies) (*Cortex, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating cortex", loggingpkg.LogFields{
		"transport": conf.EffectiveTransport(),
		"config":    conf,
	})

	c := &Cortex{
		Conf:            conf,
		Logger:          log,
		gatherer:        deps.Gatherer,
		hooks:           deps.Hooks,
		tracer:          deps.Tracer,
		transports:      deps.TransportRegistry,
		created:         time.Now(),
		circuits:        make(map[*name.Name]*Circuit),
		root:            scope.New(nil),
		resourceTracker: newResourceTracker(),
	}
	if c.gatherer == nil {
		c.gatherer = prometheus.DefaultGatherer
	}
	if c.transports == nil {
		c.transports = transportpkg.DefaultRegistry
	}

	if conf.MetricsEnabled {
		c.metrics = NewMetrics(deps.Registerer)
		if err := c.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// Subject returns the cortex's identity.
func (c *Cortex) Subject() *Subject {
	return c.subject.get(KindCortex, nil, nil)
}

// Metrics returns the shared collectors, nil when metrics are disabled.
func (c *Cortex) Metrics() *Metrics { return c.metrics }

func (c *Cortex) circuitOptions() []CircuitOption {
	opts := []CircuitOption{
		WithLogger(c.Logger),
		WithHooks(c.hooks),
		WithMetrics(c.metrics),
		WithSpinCount(c.Conf.EffectiveSpinCount()),
	}
	if c.tracer != nil {
		opts = append(opts, WithTracer(c.tracer))
	}
	return opts
}

// Circuit returns the circuit named n, starting it on first use. Concurrent
// first calls receive the same circuit.
func (c *Cortex) Circuit(n *name.Name) (*Circuit, error) {
	if n == nil {
		return nil, errspkg.ErrNameRequired
	}

	c.mu.RLock()
	circuit, ok := c.circuits[n]
	c.mu.RUnlock()
	if ok {
		return circuit, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if circuit, ok := c.circuits[n]; ok {
		return circuit, nil
	}
	circuit, err := c.start(n)
	if err != nil {
		return nil, err
	}
	c.circuits[n] = circuit
	return circuit, nil
}

// NewAnonymousCircuit starts a circuit that is tracked and closed by the
// cortex but never shared by name.
func (c *Cortex) NewAnonymousCircuit() (*Circuit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	circuit, err := c.start(nil)
	if err != nil {
		return nil, err
	}
	c.anonymous = append(c.anonymous, circuit)
	return circuit, nil
}

// start must be called with mu held.
func (c *Cortex) start(n *name.Name) (*Circuit, error) {
	if c.root.Closed() {
		return nil, errspkg.ErrCircuitClosed
	}
	circuit := NewCircuit(n, c.circuitOptions()...)
	if err := c.root.Register(circuit); err != nil {
		return nil, err
	}
	c.Logger.Debug("Circuit registered", loggingpkg.LogFields{"circuit": circuit.label})
	return circuit, nil
}

// Circuits returns every circuit started by the cortex, ordered by label.
func (c *Cortex) Circuits() []*Circuit {
	c.mu.RLock()
	out := make([]*Circuit, 0, len(c.circuits)+len(c.anonymous))
	for _, circuit := range c.circuits {
		out = append(out, circuit)
	}
	out = append(out, c.anonymous...)
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

// Scope returns a new child of the cortex's root scope. It is closed with
// the cortex unless closed earlier.
func (c *Cortex) Scope(n *name.Name) (*scope.Scope, error) {
	return c.root.Child(n)
}

// Transport builds the configured watermill transport. The transport is
// closed with the cortex.
func (c *Cortex) Transport(ctx context.Context) (transportpkg.Transport, error) {
	tr, err := c.transports.Build(ctx, c.Conf, loggingpkg.NewWatermillAdapter(c.Logger))
	if err != nil {
		return transportpkg.Transport{}, err
	}
	if err := c.root.Register(tr); err != nil {
		return transportpkg.Transport{}, err
	}
	return tr, nil
}

// TransportCapabilities reports what the configured transport guarantees.
func (c *Cortex) TransportCapabilities() transportpkg.Capabilities {
	return c.transports.GetCapabilities(c.Conf.EffectiveTransport())
}

// Start serves the metrics and introspection endpoints, blocks until ctx is
// done, then closes the cortex and waits for every circuit worker to exit.
func (c *Cortex) Start(ctx context.Context) error {
	if c.Conf.MetricsEnabled && c.Conf.MetricsPort > 0 {
		c.RegisterHTTPHandler(c.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}
	c.StartIntrospectionServer()
	servers := c.startHTTPServers()

	<-ctx.Done()
	c.Logger.Info("Stopping cortex", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}

	circuits := c.Circuits()
	errs = append(errs, c.Close())
	for _, circuit := range circuits {
		<-circuit.Done()
	}
	return errors.Join(errs...)
}

// Close closes every circuit, transport and scope handed out by the cortex.
// Circuits drain asynchronously; see Circuit.Close.
func (c *Cortex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root.Close()
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// with Start.
func (c *Cortex) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	c.httpServersMu.Lock()
	defer c.httpServersMu.Unlock()

	if c.httpServers == nil {
		c.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := c.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		c.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (c *Cortex) startHTTPServers() []*http.Server {
	c.httpServersMu.Lock()
	defer c.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(c.httpServers))
	for port, mux := range c.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		c.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		servers = append(servers, srv)
	}
	return servers
}
