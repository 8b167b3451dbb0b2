package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the photo wall counters.
//
// All methods are safe to call on a nil *Metrics, so components can run
// without instrumentation in tests and in the CLI.
type Metrics struct {
	// ChangeEvents counts change events handled by live views.
	// Labels: kind (created|updated|unknown), result (applied|buffered|ignored|dropped)
	ChangeEvents *prometheus.CounterVec

	// OpenViews is the number of live views currently open.
	OpenViews prometheus.Gauge

	// ViewStates counts view state transitions.
	// Labels: state (live|stale|error|closed)
	ViewStates *prometheus.CounterVec

	// AllocationAttempts measures the probes needed per slug allocation.
	// Labels: outcome (ok|exhausted|race|error)
	AllocationAttempts *prometheus.HistogramVec

	// RotationTicks counts scheduler ticks that advanced a cursor.
	RotationTicks prometheus.Counter

	// PublishedChanges counts events published to the change feed.
	// Labels: kind
	PublishedChanges *prometheus.CounterVec

	// FeedConnections is the number of open websocket feed connections.
	FeedConnections prometheus.Gauge
}

// NewMetrics registers the metrics with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ChangeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_change_events_total",
			Help: "Change events handled by live views.",
		}, []string{"kind", "result"}),
		OpenViews: factory.NewGauge(prometheus.GaugeOpts{
			Name: "photowall_open_views",
			Help: "Live views currently open.",
		}),
		ViewStates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_view_state_transitions_total",
			Help: "Live view state transitions.",
		}, []string{"state"}),
		AllocationAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photowall_slug_allocation_attempts",
			Help:    "Namespace probes per slug allocation.",
			Buckets: []float64{1, 2, 3, 5, 10, 20},
		}, []string{"outcome"}),
		RotationTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "photowall_rotation_ticks_total",
			Help: "Rotation scheduler ticks.",
		}),
		PublishedChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowall_published_changes_total",
			Help: "Change events published to the feed.",
		}, []string{"kind"}),
		FeedConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "photowall_feed_connections",
			Help: "Open websocket feed connections.",
		}),
	}
}

func (m *Metrics) ChangeEvent(kind, result string) {
	if m == nil {
		return
	}
	m.ChangeEvents.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ViewOpened() {
	if m == nil {
		return
	}
	m.OpenViews.Inc()
}

func (m *Metrics) ViewClosed() {
	if m == nil {
		return
	}
	m.OpenViews.Dec()
}

func (m *Metrics) ViewState(state string) {
	if m == nil {
		return
	}
	m.ViewStates.WithLabelValues(state).Inc()
}

func (m *Metrics) Allocation(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.AllocationAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

func (m *Metrics) RotationTick() {
	if m == nil {
		return
	}
	m.RotationTicks.Inc()
}

func (m *Metrics) Published(kind string) {
	if m == nil {
		return
	}
	m.PublishedChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) FeedConnected() {
	if m == nil {
		return
	}
	m.FeedConnections.Inc()
}

func (m *Metrics) FeedDisconnected() {
	if m == nil {
		return
	}
	m.FeedConnections.Dec()
}
