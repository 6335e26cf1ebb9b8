// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ArchivesTotal       *prometheus.CounterVec // result=processed|failed
	LinesTotal          *prometheus.CounterVec // outcome=dropped|discarded|control|opened|appended
	ConversationsClosed prometheus.Counter
	ImportRuns          *prometheus.CounterVec // sink, result=ok|error

	// Histograms (seconds)
	FetchDuration   prometheus.Observer
	PersistDuration prometheus.Observer

	// Gauges
	IndexWordsGauge prometheus.Gauge
	UsersGauge      prometheus.Gauge
	ActiveConvGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ArchivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "irc_archives_total", Help: "Archives handled by the import driver"}, []string{"result"})
		LinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "irc_lines_total", Help: "Log lines fed to the chat session by outcome"}, []string{"outcome"})
		ConversationsClosed = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_conversations_closed_total", Help: "Conversations closed because no participant remained online"})
		ImportRuns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "irc_import_runs_total", Help: "Import runs by sink and result"}, []string{"sink", "result"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "irc_archive_fetch_duration_seconds", Help: "Archive fetch duration seconds", Buckets: prometheus.DefBuckets})
		PersistDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "irc_persist_duration_seconds", Help: "Duration of persisting one run's history", Buckets: prometheus.DefBuckets})
		IndexWordsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "irc_index_words", Help: "Distinct words in the current run's index"})
		UsersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "irc_users", Help: "Distinct nicknames seen in the current run"})
		ActiveConvGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "irc_active_conversations", Help: "Conversations still open in the current run"})
	})
}

// RecordArchive counts one archive as processed or failed.
func RecordArchive(ok bool) {
	if ArchivesTotal == nil {
		return
	}
	if ok {
		ArchivesTotal.WithLabelValues("processed").Inc()
	} else {
		ArchivesTotal.WithLabelValues("failed").Inc()
	}
}

// AddLines adds n lines with the given outcome label.
func AddLines(outcome string, n int) {
	if LinesTotal != nil && n > 0 {
		LinesTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// AddClosed counts conversations closed by quits.
func AddClosed(n int) {
	if ConversationsClosed != nil && n > 0 {
		ConversationsClosed.Add(float64(n))
	}
}

// SetSessionGauges records the current size of the run's state.
func SetSessionGauges(users, words, active int) {
	if UsersGauge != nil {
		UsersGauge.Set(float64(users))
	}
	if IndexWordsGauge != nil {
		IndexWordsGauge.Set(float64(words))
	}
	if ActiveConvGauge != nil {
		ActiveConvGauge.Set(float64(active))
	}
}

// RecordImportRun counts a finished run for the given sink.
func RecordImportRun(sink string, err error) {
	if ImportRuns == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	ImportRuns.WithLabelValues(sink, result).Inc()
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
