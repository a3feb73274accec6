/*
Package metrics provides Prometheus metrics collection and health/readiness
reporting for a dirstore partition.

Metrics are defined and registered at package init using the Prometheus
client library, then exposed via HTTP for scraping. A Collector polls a
partition.Store on an interval and keeps the package's gauges current;
counters and histograms are updated inline by the store and its indices as
operations happen.

# Metrics Catalog

dirstore_entries_total:
  - Type: Gauge
  - Description: Total entries in the partition's master table

dirstore_index_entries_total{index}:
  - Type: Gauge
  - Description: Distinct-key count per index (ndn, updn, hierarchy,
    presence, alias, oneAlias, subAlias, userindex_<oid>)

dirstore_cache_hits_total{index} / dirstore_cache_misses_total{index}:
  - Type: Counter
  - Description: Forward-lookup LRU hit/miss counts per index

dirstore_mutation_duration_seconds{op}:
  - Type: Histogram
  - Description: Duration of add/delete/modify/rename/move

dirstore_mutations_total{op,result}:
  - Type: Counter
  - Description: Mutation outcomes, result is "ok" or "error"

dirstore_record_cache_size:
  - Type: Gauge
  - Description: Blobs resident in the record manager's read cache

dirstore_store_inconsistent:
  - Type: Gauge
  - Description: 1 once the store has been latched inconsistent by a
    partial index write, 0 otherwise

# Usage

	import "github.com/cuemby/dirstore/pkg/metrics"

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

Timing a mutation directly (the pattern internal/partition uses via
ObserveMutation):

	start := time.Now()
	_, err := store.Add(dn, e)
	metrics.ObserveMutation("add", start, err)

# Health and Readiness

RegisterComponent/UpdateComponent record a named component's health.
GetReadiness checks a fixed critical-component list ("store") and reports
"not_ready" until every critical component has been registered healthy.
*/
package metrics
