package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 后端调用指标
type Metrics struct {
	requests     *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
}

// NewMetrics 注册到指定 Registerer；reg 为 nil 时不注册（仍可正常记录）
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doorbell",
			Subsystem: "backend_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of session backend requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "doorbell",
			Subsystem: "backend_client",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.breakerState)
	}
	return m
}

func (m *Metrics) observe(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

func (m *Metrics) setBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}
