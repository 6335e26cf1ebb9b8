package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestHistogramsInitialized(t *testing.T) {
	Init()

	if FetchDuration == nil {
		t.Error("FetchDuration histogram not initialized")
	}
	if PersistDuration == nil {
		t.Error("PersistDuration histogram not initialized")
	}
}

func TestRecordArchive(t *testing.T) {
	Init()

	before := promtest.ToFloat64(ArchivesTotal.WithLabelValues("failed"))
	RecordArchive(false)
	RecordArchive(false)
	if got := promtest.ToFloat64(ArchivesTotal.WithLabelValues("failed")) - before; got != 2 {
		t.Errorf("failed archives delta = %v, want 2", got)
	}

	before = promtest.ToFloat64(ArchivesTotal.WithLabelValues("processed"))
	RecordArchive(true)
	if got := promtest.ToFloat64(ArchivesTotal.WithLabelValues("processed")) - before; got != 1 {
		t.Errorf("processed archives delta = %v, want 1", got)
	}
}

func TestAddLinesIgnoresZero(t *testing.T) {
	Init()

	before := promtest.ToFloat64(LinesTotal.WithLabelValues("opened"))
	AddLines("opened", 0)
	AddLines("opened", 3)
	if got := promtest.ToFloat64(LinesTotal.WithLabelValues("opened")) - before; got != 3 {
		t.Errorf("opened lines delta = %v, want 3", got)
	}
}

func TestRecordImportRun(t *testing.T) {
	Init()

	before := promtest.ToFloat64(ImportRuns.WithLabelValues("badger", "error"))
	RecordImportRun("badger", errors.New("boom"))
	if got := promtest.ToFloat64(ImportRuns.WithLabelValues("badger", "error")) - before; got != 1 {
		t.Errorf("error runs delta = %v, want 1", got)
	}
}

func TestSetSessionGauges(t *testing.T) {
	Init()

	SetSessionGauges(4, 120, 2)
	if got := promtest.ToFloat64(UsersGauge); got != 4 {
		t.Errorf("users gauge = %v, want 4", got)
	}
	if got := promtest.ToFloat64(IndexWordsGauge); got != 120 {
		t.Errorf("index words gauge = %v, want 120", got)
	}
	if got := promtest.ToFloat64(ActiveConvGauge); got != 2 {
		t.Errorf("active conversations gauge = %v, want 2", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
	})
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil {
		t.Fatal("Histogram metric is nil")
	}
	if metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestTimeFuncNilObserver(t *testing.T) {
	called := false
	TimeFunc(nil, func() { called = true })
	if !called {
		t.Error("TimeFunc did not run fn")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
