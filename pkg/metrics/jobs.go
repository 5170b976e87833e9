package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records metadata for scheduled worker jobs.
type JobMetrics struct {
	duration      *prometheus.HistogramVec
	success       *prometheus.CounterVec
	failure       *prometheus.CounterVec
	snapshotBytes prometheus.Histogram
}

// NewJobMetrics registers the worker job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of scheduled jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful scheduled job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed scheduled job executions.",
	}, []string{"job"})
	snapshotBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_payload_bytes",
		Help:    "Serialized snapshot payload size in bytes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
	reg.MustRegister(duration, success, failure, snapshotBytes)
	return &JobMetrics{
		duration:      duration,
		success:       success,
		failure:       failure,
		snapshotBytes: snapshotBytes,
	}
}

// ObserveDuration records the duration for the named job.
func (m *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (m *JobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (m *JobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// ObserveSnapshotBytes records the size of a serialized snapshot payload.
func (m *JobMetrics) ObserveSnapshotBytes(size int) {
	if m == nil || m.snapshotBytes == nil {
		return
	}
	m.snapshotBytes.Observe(float64(size))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
