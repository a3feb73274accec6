package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EntriesTotal is the total number of entries held in the master table.
	EntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirstore_entries_total",
			Help: "Total number of entries in the partition's master table",
		},
	)

	// IndexEntriesTotal reports the distinct-key count per index (system
	// and user indices alike).
	IndexEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dirstore_index_entries_total",
			Help: "Number of distinct keys held by an index",
		},
		[]string{"index"},
	)

	// CacheHitsTotal and CacheMissesTotal track an index's forward-lookup
	// LRU, keyed by index name.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirstore_cache_hits_total",
			Help: "Total forward-lookup cache hits by index",
		},
		[]string{"index"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirstore_cache_misses_total",
			Help: "Total forward-lookup cache misses by index",
		},
		[]string{"index"},
	)

	// MutationDuration records how long Add/Delete/Modify/Rename/Move take.
	MutationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirstore_mutation_duration_seconds",
			Help:    "Duration of a store mutation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// MutationsTotal counts mutations by op and outcome ("ok", "error").
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirstore_mutations_total",
			Help: "Total store mutations by operation and result",
		},
		[]string{"op", "result"},
	)

	// RecordCacheSize reports the record manager's resident page-cache size.
	RecordCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirstore_record_cache_size",
			Help: "Number of blobs currently resident in the record manager's read cache",
		},
	)

	// StoreInconsistent is 1 once the store has been latched into its
	// poisoned state by a partial index failure, 0 otherwise.
	StoreInconsistent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirstore_store_inconsistent",
			Help: "Whether the store has been latched inconsistent by a failed index write (1 = inconsistent)",
		},
	)
)

func init() {
	prometheus.MustRegister(EntriesTotal)
	prometheus.MustRegister(IndexEntriesTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(MutationDuration)
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(RecordCacheSize)
	prometheus.MustRegister(StoreInconsistent)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveMutation records both the duration and outcome of a store
// mutation in one call, the pattern every partition.Store entry point uses.
func ObserveMutation(op string, start time.Time, err error) {
	MutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	MutationsTotal.WithLabelValues(op, result).Inc()
}
