package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nursecall"

// StoreMetrics records document store commands and live feed activity.
type StoreMetrics struct {
	commandDuration *prometheus.HistogramVec
	commands        *prometheus.CounterVec
	subscriptions   *prometheus.GaugeVec
	snapshots       *prometheus.CounterVec
	mirrors         *prometheus.GaugeVec
}

// NewStoreMetrics registers the store metrics on the provided registerer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "docstore_command_duration_seconds",
		Help:      "Duration of document store commands in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collection", "op"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "docstore_commands_total",
		Help:      "Document store commands by outcome.",
	}, []string{"collection", "op", "outcome"})
	subscriptions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "docstore_subscriptions_active",
		Help:      "Open document store subscriptions.",
	}, []string{"collection"})
	snapshots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_snapshots_total",
		Help:      "Snapshots applied by live mirrors.",
	}, []string{"collection"})
	mirrors := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mirrors_active",
		Help:      "Live mirrors currently attached.",
	}, []string{"collection"})
	reg.MustRegister(commandDuration, commands, subscriptions, snapshots, mirrors)
	return &StoreMetrics{
		commandDuration: commandDuration,
		commands:        commands,
		subscriptions:   subscriptions,
		snapshots:       snapshots,
		mirrors:         mirrors,
	}
}

// ObserveCommand records the outcome and latency of a store command.
func (m *StoreMetrics) ObserveCommand(collection, op string, started time.Time, err error) {
	if m == nil || m.commands == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	collection = normalizeLabel(collection)
	m.commands.WithLabelValues(collection, op, outcome).Inc()
	m.commandDuration.WithLabelValues(collection, op).Observe(time.Since(started).Seconds())
}

// SubscriptionOpened increments the active subscription gauge.
func (m *StoreMetrics) SubscriptionOpened(collection string) {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.WithLabelValues(normalizeLabel(collection)).Inc()
}

// SubscriptionClosed decrements the active subscription gauge.
func (m *StoreMetrics) SubscriptionClosed(collection string) {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.WithLabelValues(normalizeLabel(collection)).Dec()
}

// MirrorOpened increments the active mirror gauge.
func (m *StoreMetrics) MirrorOpened(collection string) {
	if m == nil || m.mirrors == nil {
		return
	}
	m.mirrors.WithLabelValues(normalizeLabel(collection)).Inc()
}

// MirrorClosed decrements the active mirror gauge.
func (m *StoreMetrics) MirrorClosed(collection string) {
	if m == nil || m.mirrors == nil {
		return
	}
	m.mirrors.WithLabelValues(normalizeLabel(collection)).Dec()
}

// SnapshotApplied counts a snapshot applied by a mirror.
func (m *StoreMetrics) SnapshotApplied(collection string) {
	if m == nil || m.snapshots == nil {
		return
	}
	m.snapshots.WithLabelValues(normalizeLabel(collection)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
