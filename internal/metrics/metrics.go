// Package metrics declares the Prometheus series a Scheduler publishes,
// grounded on the teacher's internal/metrics package, generalized from
// webhook-dispatch-specific names (job_execution_duration_seconds labeled
// by HTTP status) to the generic claim/dispatch/heartbeat/recovery/
// retention cycle spec.md defines. HTTP-request metrics are dropped along
// with the teacher's gin router — see DESIGN.md.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ClaimLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "monque",
		Name:      "job_claim_latency_seconds",
		Help:      "Time from a job becoming due to being claimed by a worker.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monque",
		Name:      "job_execution_duration_seconds",
		Help:      "Duration of a handler invocation.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"name", "outcome"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "monque",
		Name:      "worker_jobs_in_flight",
		Help:      "Number of jobs currently executing on this instance.",
	})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monque",
		Name:      "jobs_completed_total",
		Help:      "Total jobs finished, by outcome.",
	}, []string{"name", "outcome"})

	RecoveryRescuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monque",
		Name:      "recovery_rescued_total",
		Help:      "Total stale jobs handled by the recovery service.",
	}, []string{"action"})

	RecoveryCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "monque",
		Name:      "recovery_cycle_duration_seconds",
		Help:      "Time taken for one recovery cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	RetentionDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monque",
		Name:      "retention_deleted_total",
		Help:      "Total terminal jobs deleted by the retention service.",
	}, []string{"status"})

	InstanceStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "monque",
		Name:      "instance_start_time_seconds",
		Help:      "Unix timestamp when this scheduler instance started.",
	})

	InstanceShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "monque",
		Name:      "instance_shutdowns_total",
		Help:      "Number of times this scheduler instance has shut down cleanly.",
	})
)

// Register registers every series with the default Prometheus registerer.
// Call it at most once per process; tests should register against a fresh
// *prometheus.Registry instead (see internal/health's pattern).
func Register() {
	prometheus.MustRegister(
		ClaimLatency,
		JobExecutionDuration,
		JobsInFlight,
		JobsCompletedTotal,
		RecoveryRescuedTotal,
		RecoveryCycleDuration,
		RetentionDeletedTotal,
		InstanceStartTime,
		InstanceShutdownsTotal,
	)
}

// NewServer returns an HTTP server exposing /metrics, grounded on the
// teacher's metrics.NewServer.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
