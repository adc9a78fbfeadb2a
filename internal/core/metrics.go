package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OpMetric tracks counts and latencies for a named operation: a CounterVec
// labelled by "result" (plus any caller labels), and a SummaryVec of
// latencies in seconds.
type OpMetric struct {
	counters  *prometheus.CounterVec
	latencies *prometheus.SummaryVec
}

// NewOpMetric registers a new op metric under name, with the given extra
// labels beyond "result".
func NewOpMetric(name string, labels ...string) *OpMetric {
	labelsWithResult := append([]string{"result"}, labels...)
	return &OpMetric{
		counters:  promauto.NewCounterVec(prometheus.CounterOpts{Name: name}, labelsWithResult),
		latencies: promauto.NewSummaryVec(prometheus.SummaryOpts{Name: name + "_latency_seconds"}, labels),
	}
}

// Start begins measuring one call, identified by values (matching the extra
// labels passed to NewOpMetric).
func (m *OpMetric) Start(values ...string) *latencyMeasurer {
	return &latencyMeasurer{opm: m, values: values, start: time.Now()}
}

type latencyMeasurer struct {
	opm    *OpMetric
	values []string
	start  time.Time
	result string
}

// Failed marks this call as having ended in error.
func (lm *latencyMeasurer) Failed() { lm.result = "failed" }

// End records the result (default "ok") and the elapsed latency.
func (lm *latencyMeasurer) End() {
	result := lm.result
	if result == "" {
		result = "ok"
	}
	lm.opm.counters.WithLabelValues(append([]string{result}, lm.values...)...).Inc()
	lm.opm.latencies.WithLabelValues(lm.values...).Observe(time.Since(lm.start).Seconds())
}
