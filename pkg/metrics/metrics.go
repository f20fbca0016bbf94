package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueBacklog is the number of mutations waiting in the sync queue.
	// The primary indicator of how far local state is ahead of the remote.
	QueueBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "caja_sync_queue_backlog",
		Help: "Current number of pending mutations in the sync queue",
	})

	// ItemsPushed counts drained queue items by outcome and entity type.
	ItemsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caja_sync_items_pushed_total",
		Help: "Total queue items pushed to the remote store",
	}, []string{"status", "entity"})

	// ItemsDropped counts mutations discarded after exhausting the retry
	// budget. Any growth here means remote data loss needing manual review.
	ItemsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caja_sync_items_dropped_total",
		Help: "Total queue items dropped after exhausting retries",
	}, []string{"entity"})

	// DrainDuration measures full queue drain passes.
	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caja_sync_drain_duration_seconds",
		Help:    "Duration of sync queue drain passes in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Online is 1 while the connectivity monitor reports the remote store
	// reachable, 0 otherwise.
	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "caja_online",
		Help: "Connectivity state (1 online, 0 offline)",
	})
)

// Serve exposes /metrics on addr. Blocks; run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
