// Package metrics is the observability sink for sync runs. Reporters are
// pluggable; the pipeline emits one event per completed run.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reachbox/reachbox/pkg/models"
)

// Reporter receives one event per completed sync run
type Reporter interface {
	RunCompleted(account *models.Account, run *models.SyncRun)
}

// Multi fans one event out to several reporters
type Multi []Reporter

func (m Multi) RunCompleted(account *models.Account, run *models.SyncRun) {
	for _, r := range m {
		r.RunCompleted(account, run)
	}
}

// LogReporter emits structured per-run log events
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a log-backed reporter
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With("component", "sync_reporter")}
}

func (r *LogReporter) RunCompleted(account *models.Account, run *models.SyncRun) {
	r.logger.Info("sync run completed",
		"run_id", run.RunID,
		"account_id", run.AccountID,
		"email", account.Email,
		"outcome", run.Outcome,
		"seen", run.Seen,
		"stored", run.Stored,
		"failed", run.Failed,
		"duration_ms", run.Duration,
	)
}

// PromReporter exports run counters and durations to Prometheus
type PromReporter struct {
	runs     *prometheus.CounterVec
	seen     prometheus.Counter
	stored   prometheus.Counter
	failed   prometheus.Counter
	duration prometheus.Histogram
}

// NewPromReporter registers the sync metrics on the given registerer
func NewPromReporter(reg prometheus.Registerer) *PromReporter {
	factory := promauto.With(reg)
	return &PromReporter{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reachbox_sync_runs_total",
			Help: "Completed sync runs by outcome.",
		}, []string{"outcome"}),
		seen: factory.NewCounter(prometheus.CounterOpts{
			Name: "reachbox_sync_messages_seen_total",
			Help: "Messages returned by mailbox searches.",
		}),
		stored: factory.NewCounter(prometheus.CounterOpts{
			Name: "reachbox_sync_messages_stored_total",
			Help: "Messages upserted into storage.",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "reachbox_sync_messages_failed_total",
			Help: "Messages skipped due to parse or persistence failures.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reachbox_sync_run_duration_seconds",
			Help:    "Wall-clock duration of account sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

func (r *PromReporter) RunCompleted(account *models.Account, run *models.SyncRun) {
	r.runs.WithLabelValues(string(run.Outcome)).Inc()
	r.seen.Add(float64(run.Seen))
	r.stored.Add(float64(run.Stored))
	r.failed.Add(float64(run.Failed))
	r.duration.Observe(time.Duration(run.Duration * int64(time.Millisecond)).Seconds())
}

// Serve exposes /metrics on addr. Blocks until the listener fails.
func Serve(addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics exporter listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
