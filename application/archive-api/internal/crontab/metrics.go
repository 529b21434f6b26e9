package crontab

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type jobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newJobMetrics(reg prometheus.Registerer) *jobMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &jobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "crontab",
			Name:      "job_runs_total",
			Help:      "Crontab job runs by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "archive",
			Subsystem: "crontab",
			Name:      "job_duration_seconds",
			Help:      "Crontab job duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
	m.runs = registerOrReuse(reg, m.runs)
	m.duration = registerOrReuse(reg, m.duration)
	return m
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *jobMetrics) observe(job, result string, d time.Duration) {
	m.runs.WithLabelValues(job, result).Inc()
	if result != "skipped" {
		m.duration.WithLabelValues(job).Observe(d.Seconds())
	}
}
