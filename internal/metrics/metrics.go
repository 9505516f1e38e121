// Package metrics exposes Prometheus collectors for the messaging core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "boilergroups"

// Metrics owns a registry and the collectors recorded by services and stores.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent     prometheus.Counter
	messagesDeleted  prometheus.Counter
	reactions        *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	membership       *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	storeConflicts   prometheus.Counter
	lockWait         prometheus.Histogram
	lockTimeouts     prometheus.Counter
	sseClients       prometheus.GaugeFunc
}

// New creates the collectors on a fresh registry. clientCount, when non-nil,
// reports connected SSE clients.
func New(clientCount func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages appended to group threads, status messages excluded.",
		}),
		messagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages removed from group threads.",
		}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reaction changes by kind and action.",
		}, []string{"kind", "action"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_marked_total",
			Help:      "Members added to a notification set, by reason.",
		}, []string{"reason"}),
		membership: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_changes_total",
			Help:      "Members added to or removed from groups.",
		}, []string{"event"}),
		mutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_mutation_duration_seconds",
			Help:      "Time spent in store group mutations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		storeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_conflicts_total",
			Help:      "Group mutations that gave up after repeated write conflicts.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_lock_wait_seconds",
			Help:      "Time spent waiting for a group lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3},
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_lock_timeouts_total",
			Help:      "Group lock acquisitions that timed out.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesSent,
		m.messagesDeleted,
		m.reactions,
		m.notifications,
		m.membership,
		m.mutationDuration,
		m.storeConflicts,
		m.lockWait,
		m.lockTimeouts,
	)

	if clientCount != nil {
		m.sseClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_clients",
			Help:      "Connected event stream clients.",
		}, func() float64 { return float64(clientCount()) })
		reg.MustRegister(m.sseClients)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MessageSent counts one user message.
func (m *Metrics) MessageSent() { m.messagesSent.Inc() }

// MessageDeleted counts one removed message.
func (m *Metrics) MessageDeleted() { m.messagesDeleted.Inc() }

// Reaction counts a reaction change. action is "added" or "removed".
func (m *Metrics) Reaction(kind, action string) {
	m.reactions.WithLabelValues(kind, action).Inc()
}

// NotificationMarked counts members newly added to a notification set.
func (m *Metrics) NotificationMarked(reason string, n int) {
	if n > 0 {
		m.notifications.WithLabelValues(reason).Add(float64(n))
	}
}

// MembershipChanged counts a join or leave.
func (m *Metrics) MembershipChanged(event string) {
	m.membership.WithLabelValues(event).Inc()
}

// ObserveLockWait records how long a lock took, and whether it timed out.
func (m *Metrics) ObserveLockWait(d time.Duration, timedOut bool) {
	m.lockWait.Observe(d.Seconds())
	if timedOut {
		m.lockTimeouts.Inc()
	}
}
