package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports circuit activity to Prometheus. One Metrics value is shared
// by every circuit of a cortex; each circuit binds its label values once at
// construction so the hot path only touches pre-resolved counters.
type Metrics struct {
	mu sync.Mutex

	emissionsTotal   *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
	activationsTotal *prometheus.CounterVec
	rebuildsTotal    *prometheus.CounterVec
	parksTotal       *prometheus.CounterVec
	circuitsOpen     prometheus.Gauge
	awaitSeconds     *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

func newCircuitCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalflow",
			Subsystem: "circuit",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the collectors. A nil registerer selects the default
// Prometheus registerer. Call Register before serving them.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:       registerer,
		emissionsTotal:   newCircuitCounterVec("emissions_total", "Emissions accepted by a circuit, by path (ingress, transit)", []string{"circuit", "path"}),
		deliveriesTotal:  newCircuitCounterVec("deliveries_total", "Emissions executed by the circuit worker", []string{"circuit"}),
		failuresTotal:    newCircuitCounterVec("failures_total", "Receptor or activation panics recovered by the worker", []string{"circuit"}),
		droppedTotal:     newCircuitCounterVec("dropped_total", "Emissions offered after the circuit closed", []string{"circuit"}),
		activationsTotal: newCircuitCounterVec("activations_total", "Subscriber activations performed on channels", []string{"circuit"}),
		rebuildsTotal:    newCircuitCounterVec("rebuilds_total", "Channel dispatch table rebuilds", []string{"circuit"}),
		parksTotal:       newCircuitCounterVec("parks_total", "Times the worker parked after running out of work", []string{"circuit"}),
		circuitsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "signalflow",
			Subsystem: "circuit",
			Name:      "open",
			Help:      "Circuits whose worker is still running",
		}),
		awaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "signalflow",
			Subsystem: "circuit",
			Name:      "await_seconds",
			Help:      "Time callers spent in Await",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"circuit"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.emissionsTotal,
		m.deliveriesTotal,
		m.failuresTotal,
		m.droppedTotal,
		m.activationsTotal,
		m.rebuildsTotal,
		m.parksTotal,
		m.circuitsOpen,
		m.awaitSeconds,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// circuitInstruments are the collectors of one circuit with labels bound. The
// zero value (from a nil *Metrics) records nothing.
type circuitInstruments struct {
	ingress, transit prometheus.Counter
	deliveries       prometheus.Counter
	failures         prometheus.Counter
	dropped          prometheus.Counter
	activations      prometheus.Counter
	rebuilds         prometheus.Counter
	parks            prometheus.Counter
	open             prometheus.Gauge
	await            prometheus.Observer
}

func (m *Metrics) bind(circuit string) circuitInstruments {
	if m == nil {
		return circuitInstruments{}
	}
	return circuitInstruments{
		ingress:     m.emissionsTotal.WithLabelValues(circuit, "ingress"),
		transit:     m.emissionsTotal.WithLabelValues(circuit, "transit"),
		deliveries:  m.deliveriesTotal.WithLabelValues(circuit),
		failures:    m.failuresTotal.WithLabelValues(circuit),
		dropped:     m.droppedTotal.WithLabelValues(circuit),
		activations: m.activationsTotal.WithLabelValues(circuit),
		rebuilds:    m.rebuildsTotal.WithLabelValues(circuit),
		parks:       m.parksTotal.WithLabelValues(circuit),
		open:        m.circuitsOpen,
		await:       m.awaitSeconds.WithLabelValues(circuit),
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func (ci circuitInstruments) opened() {
	if ci.open != nil {
		ci.open.Inc()
	}
}

func (ci circuitInstruments) exited() {
	if ci.open != nil {
		ci.open.Dec()
	}
}

func (ci circuitInstruments) awaited(d time.Duration) {
	if ci.await != nil {
		ci.await.Observe(d.Seconds())
	}
}
