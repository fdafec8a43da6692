package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics instruments the session pool.
type PoolMetrics struct {
	acquires   *prometheus.CounterVec
	leasesIn   prometheus.Gauge
	healthy    prometheus.Gauge
	reconnects *prometheus.CounterVec
}

// NewPoolMetrics creates and registers the pool collectors.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		acquires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibgate_pool_acquires_total",
				Help: "Lease acquisitions by outcome",
			},
			[]string{"outcome"}, // ok | exhausted | connect_failed
		),
		leasesIn: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ibgate_pool_leases_in_use",
				Help: "Sessions currently leased",
			},
		),
		healthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ibgate_pool_sessions_healthy",
				Help: "Sessions currently healthy",
			},
		),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibgate_pool_reconnects_total",
				Help: "Session repair attempts by result",
			},
			[]string{"result"}, // ok | failed
		),
	}

	reg.MustRegister(m.acquires, m.leasesIn, m.healthy, m.reconnects)
	return m
}

// ObserveAcquire records an acquire outcome.
func (m *PoolMetrics) ObserveAcquire(outcome string) {
	if m == nil {
		return
	}
	m.acquires.WithLabelValues(outcome).Inc()
}

// LeaseStarted records a lease handout.
func (m *PoolMetrics) LeaseStarted() {
	if m == nil {
		return
	}
	m.leasesIn.Inc()
}

// LeaseEnded records a lease return.
func (m *PoolMetrics) LeaseEnded() {
	if m == nil {
		return
	}
	m.leasesIn.Dec()
}

// SetHealthy records the current healthy-session count.
func (m *PoolMetrics) SetHealthy(n int) {
	if m == nil {
		return
	}
	m.healthy.Set(float64(n))
}

// ObserveReconnect records a repair result.
func (m *PoolMetrics) ObserveReconnect(result string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(result).Inc()
}

// ServerMetrics instruments the HTTP facade.
type ServerMetrics struct {
	durations *prometheus.HistogramVec
}

// NewServerMetrics creates and registers the facade collectors.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ibgate_request_duration_seconds",
				Help:    "HTTP request durations by endpoint and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
	}

	reg.MustRegister(m.durations)
	return m
}

// ObserveRequest records one handled request.
func (m *ServerMetrics) ObserveRequest(endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.durations.WithLabelValues(endpoint, status).Observe(d.Seconds())
}
