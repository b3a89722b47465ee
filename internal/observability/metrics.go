package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report companion activity.
type Metrics struct {
	inboundMessages *prometheus.CounterVec
	parseFailures   prometheus.Counter
	outboundSends   *prometheus.CounterVec
	spawns          *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	connected       prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered are reused; any other registration
// error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	inbound := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "bridge",
			Name:      "inbound_messages_total",
			Help:      "Inbound agent messages by type.",
		},
		[]string{"type"},
	)
	parseFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "bridge",
			Name:      "parse_failures_total",
			Help:      "Inbound lines that could not be decoded.",
		},
	)
	outbound := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "bridge",
			Name:      "outbound_sends_total",
			Help:      "Outbound messages handed to a connection, by result.",
		},
		[]string{"result"},
	)
	spawns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "supervisor",
			Name:      "spawns_total",
			Help:      "Agent process launches, by result.",
		},
		[]string{"result"},
	)
	turnDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "session",
			Name:      "turn_duration_seconds",
			Help:      "Agent-reported duration of completed turns.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	connected := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "companion",
			Subsystem: "bridge",
			Name:      "connected_sessions",
			Help:      "Sessions with a live agent connection.",
		},
	)

	collectors := []prometheus.Collector{inbound, parseFailures, outbound, spawns, turnDuration, connected}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch collector {
			case inbound:
				inbound = already.ExistingCollector.(*prometheus.CounterVec)
			case parseFailures:
				parseFailures = already.ExistingCollector.(prometheus.Counter)
			case outbound:
				outbound = already.ExistingCollector.(*prometheus.CounterVec)
			case spawns:
				spawns = already.ExistingCollector.(*prometheus.CounterVec)
			case turnDuration:
				turnDuration = already.ExistingCollector.(prometheus.Histogram)
			case connected:
				connected = already.ExistingCollector.(prometheus.Gauge)
			}
		}
	}

	return &Metrics{
		inboundMessages: inbound,
		parseFailures:   parseFailures,
		outboundSends:   outbound,
		spawns:          spawns,
		turnDuration:    turnDuration,
		connected:       connected,
	}
}

// IncInbound counts one decoded inbound message of the given type.
func (m *Metrics) IncInbound(messageType string) {
	if m == nil || m.inboundMessages == nil {
		return
	}
	m.inboundMessages.WithLabelValues(messageType).Inc()
}

func (m *Metrics) IncParseFailure() {
	if m == nil || m.parseFailures == nil {
		return
	}
	m.parseFailures.Inc()
}

// ObserveSend records an outbound send attempt.
func (m *Metrics) ObserveSend(err error) {
	if m == nil || m.outboundSends == nil {
		return
	}
	m.outboundSends.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveSpawn records an agent launch outcome.
func (m *Metrics) ObserveSpawn(err error) {
	if m == nil || m.spawns == nil {
		return
	}
	m.spawns.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) ObserveTurn(duration time.Duration) {
	if m == nil || m.turnDuration == nil || duration <= 0 {
		return
	}
	m.turnDuration.Observe(duration.Seconds())
}

// SetConnected reports the number of sessions with a live connection.
func (m *Metrics) SetConnected(count int) {
	if m == nil || m.connected == nil {
		return
	}
	m.connected.Set(float64(count))
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
