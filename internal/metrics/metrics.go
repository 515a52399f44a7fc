// Package metrics holds the Prometheus collectors for search, indexing
// and persistence.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/standardbeagle/findall/internal/types"
)

const namespace = "findall"

var (
	// QueryDuration measures query latency.
	// Labels: kind (search, burst, text)
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "query_duration_seconds",
		Help:      "Search query latency in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"kind"})

	// QueriesCancelled counts queries stopped through cancellation.
	QueriesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "cancelled_total",
		Help:      "Total queries cancelled before completion",
	})

	// CorpusItems tracks corpus size per scope.
	// Labels: scope
	CorpusItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "corpus",
		Name:      "items",
		Help:      "Number of searchable items by scope",
	}, []string{"scope"})

	// IndexDuration measures full index runs.
	// Labels: outcome (completed, cancelled, failed)
	IndexDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexing",
		Name:      "duration_seconds",
		Help:      "Full workspace index duration in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"outcome"})

	// FilesExtracted counts files handled by the extraction phase.
	// Labels: result (extracted, cached, failed)
	FilesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexing",
		Name:      "files_total",
		Help:      "Files processed by symbol extraction",
	}, []string{"result"})

	// WorkerFailures counts extraction workers retired after a failure.
	WorkerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexing",
		Name:      "worker_failures_total",
		Help:      "Extraction workers retired after a failure",
	})

	// WatchEvents counts incremental file events that passed filtering.
	// Labels: kind (create, change, delete)
	WatchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexing",
		Name:      "watch_events_total",
		Help:      "Incremental file system events applied",
	}, []string{"kind"})

	// StoreOperations counts persistence calls.
	// Labels: op (load_cache, save_cache, load_activity, save_activity), result (ok, error)
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Persistence operations by outcome",
	}, []string{"op", "result"})
)

// ObserveQuery records a query's latency.
func ObserveQuery(kind string, start time.Time) {
	QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// SetCorpusStats publishes per-scope corpus counts.
func SetCorpusStats(s types.IndexStats) {
	CorpusItems.WithLabelValues(types.ScopeFiles.String()).Set(float64(s.Files))
	CorpusItems.WithLabelValues(types.ScopeTypes.String()).Set(float64(s.Types))
	CorpusItems.WithLabelValues(types.ScopeSymbols.String()).Set(float64(s.Symbols))
	CorpusItems.WithLabelValues(types.ScopeProperties.String()).Set(float64(s.Properties))
	CorpusItems.WithLabelValues(types.ScopeEndpoints.String()).Set(float64(s.Endpoints))
	CorpusItems.WithLabelValues(types.ScopeText.String()).Set(float64(s.Text))
	CorpusItems.WithLabelValues(types.ScopeCommands.String()).Set(float64(s.Commands))
}

// RecordStoreOp counts a persistence call.
func RecordStoreOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(op, result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
