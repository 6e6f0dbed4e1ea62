package coordinator

import "github.com/prometheus/client_golang/prometheus"

// Metrics 信令指标
type Metrics struct {
	connections prometheus.Gauge
	calls       prometheus.Gauge
	requests    *prometheus.CounterVec
	rings       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorbell",
			Subsystem: "coordinator",
			Name:      "connections",
			Help:      "在线信令连接数",
		}),
		calls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorbell",
			Subsystem: "coordinator",
			Name:      "calls",
			Help:      "进行中的通话数",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doorbell",
			Subsystem: "coordinator",
			Name:      "requests_total",
			Help:      "信令请求数",
		}, []string{"method", "result"}),
		rings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doorbell",
			Subsystem: "coordinator",
			Name:      "rings_total",
			Help:      "成功投递的响铃事件数",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.calls, m.requests, m.rings)
	}
	return m
}
