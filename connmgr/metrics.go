package connmgr

import (
	"github.com/prometheus/client_golang/prometheus"
)

// plcMetrics bundles the Prometheus collectors registered for one
// PLC's executor. response time and counters mirror the fields the
// original connection manager tracked per PLC (total/successful/
// failed requests, average response time) surfaced as first-class
// metrics instead of ad-hoc dict fields.
type plcMetrics struct {
	requestsTotal   *prometheus.CounterVec
	responseSeconds prometheus.Histogram
	breakerState    prometheus.Gauge
}

func newPLCMetrics(reg prometheus.Registerer, plcID string) *plcMetrics {
	m := &plcMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "modgate",
			Subsystem:   "connmgr",
			Name:        "requests_total",
			Help:        "Operation attempts dispatched per PLC, labeled by outcome.",
			ConstLabels: prometheus.Labels{"plc": plcID},
		}, []string{"result"}),
		responseSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "modgate",
			Subsystem:   "connmgr",
			Name:        "response_seconds",
			Help:        "Wire round-trip time per successful operation.",
			ConstLabels: prometheus.Labels{"plc": plcID},
			Buckets:     prometheus.DefBuckets,
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "modgate",
			Subsystem:   "connmgr",
			Name:        "breaker_open",
			Help:        "1 if the circuit breaker for this PLC is open, 0 otherwise.",
			ConstLabels: prometheus.Labels{"plc": plcID},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.responseSeconds, m.breakerState)
	}

	return m
}
