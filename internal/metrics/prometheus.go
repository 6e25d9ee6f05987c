package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gftdcojp/tier-workloads/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	TierBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tw_tier_bytes_written_total",
		Help: "Bytes written to each tier",
	}, []string{"tier"})

	TierBytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tw_tier_bytes_read_total",
		Help: "Bytes read from each tier",
	}, []string{"tier"})

	TierUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tw_tier_used_bytes",
		Help: "Bytes allocated in each tier",
	}, []string{"tier"})

	TierCapacityBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tw_tier_capacity_bytes",
		Help: "Configured capacity of each tier",
	}, []string{"tier"})

	TierSpills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tw_tier_spills_total",
		Help: "Chunks written below the cursor's preferred tier because it was full",
	}, []string{"from_tier", "to_tier"})

	ChunkReadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tw_chunk_read_latency_seconds",
		Help:    "Latency of a single chunk read",
		Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"tier"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tw_sync_duration_seconds",
		Help:    "Duration of global sync barriers",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	})

	ObjectsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tw_objects_created_total",
		Help: "Objects created, by preferred tier",
	}, []string{"tier"})

	OrphansCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tw_orphans_collected_total",
		Help: "Catalog entries dropped because their chunks were missing",
	})

	// Placement metrics
	PlacementDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tw_placement_decisions_total",
		Help: "Placement decisions by desired and actual tier",
	}, []string{"desired", "actual"})

	PlacementExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tw_placement_exhausted_total",
		Help: "Placements that found no tier with enough space",
	})

	// Workload metrics
	WorkloadReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tw_workload_reads_total",
		Help: "read_at calls issued by a workload",
	}, []string{"workload", "group"})

	WorkloadReadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tw_workload_read_latency_seconds",
		Help:    "Latency of workload read_at calls",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"workload"})

	WorkloadBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tw_workload_bytes_written_total",
		Help: "Bytes written by a workload",
	}, []string{"workload"})
)

// RunServer starts the Prometheus metrics HTTP server.
func RunServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
