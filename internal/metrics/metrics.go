// Package metrics exposes Prometheus collectors for the settlement pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "claimd"

// Metrics groups every collector. A nil *Metrics records nothing.
type Metrics struct {
	ClaimsCreated      *prometheus.CounterVec
	ClaimsExpired      prometheus.Counter
	TipsForwarded      *prometheus.CounterVec
	TransfersStarted   *prometheus.CounterVec
	TransfersCompleted *prometheus.CounterVec
	TransferLatency    *prometheus.HistogramVec
	TransfersInFlight  prometheus.Gauge
	Verifications      *prometheus.CounterVec
	VerifyLatency      prometheus.Histogram
	LinksCommitted     prometheus.Counter
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.ClaimsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "claims",
		Name:      "created_total",
		Help:      "Claims escrowed for unlinked handles, by asset kind",
	}, []string{"kind"})

	m.ClaimsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "claims",
		Name:      "expired_total",
		Help:      "Expired claim ids pruned from pending buckets",
	})

	m.TipsForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tips",
		Name:      "forwarded_total",
		Help:      "Deposits forwarded straight to a linked account, by asset kind",
	}, []string{"kind"})

	m.TransfersStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transfers",
		Name:      "dispatched_total",
		Help:      "Outbound transfers dispatched, by asset kind",
	}, []string{"kind"})

	m.TransfersCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transfers",
		Name:      "completed_total",
		Help:      "Outbound transfer completions, by asset kind and outcome",
	}, []string{"kind", "outcome"})

	m.TransferLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "transfers",
		Name:      "latency_seconds",
		Help:      "Time from dispatch to completion",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	m.TransfersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transfers",
		Name:      "in_flight",
		Help:      "Transfers dispatched and not yet completed",
	})

	m.Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "proof",
		Name:      "verifications_total",
		Help:      "Proof verifications, by outcome",
	}, []string{"outcome"})

	m.VerifyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "proof",
		Name:      "latency_seconds",
		Help:      "Proof verification latency in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	m.LinksCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "links",
		Name:      "committed_total",
		Help:      "Handles linked to an account",
	})

	if registry != nil {
		registry.MustRegister(
			m.ClaimsCreated,
			m.ClaimsExpired,
			m.TipsForwarded,
			m.TransfersStarted,
			m.TransfersCompleted,
			m.TransferLatency,
			m.TransfersInFlight,
			m.Verifications,
			m.VerifyLatency,
			m.LinksCommitted,
		)
	}
	return m
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordClaimCreated counts a new escrowed claim.
func (m *Metrics) RecordClaimCreated(kind string) {
	if m == nil {
		return
	}
	m.ClaimsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ClaimsExpired.Add(float64(n))
}

func (m *Metrics) RecordForward(kind string) {
	if m == nil {
		return
	}
	m.TipsForwarded.WithLabelValues(kind).Inc()
}

// RecordDispatch counts an outbound transfer and marks it in flight.
func (m *Metrics) RecordDispatch(kind string) {
	if m == nil {
		return
	}
	m.TransfersStarted.WithLabelValues(kind).Inc()
	m.TransfersInFlight.Inc()
}

// RecordCompletion closes out a transfer started with RecordDispatch.
func (m *Metrics) RecordCompletion(kind string, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.TransfersInFlight.Dec()
	m.TransfersCompleted.WithLabelValues(kind, outcome(ok)).Inc()
	m.TransferLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordVerification(duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome(ok)).Inc()
	m.VerifyLatency.Observe(duration.Seconds())
}

func (m *Metrics) RecordLink() {
	if m == nil {
		return
	}
	m.LinksCommitted.Inc()
}
