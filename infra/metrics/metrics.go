// Package metrics exposes the node's Prometheus registry: counters and
// histograms for import throughput, DAG computation cost and storage
// conflicts, scraped over HTTP on METRICS_EXPORTER_ADDRESS.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var factory = promauto.With(registry)

var (
	ImportOnlineDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name: "stratus_import_online_duration_seconds",
		Help: "Time to import a single block via the online importer.",
	})

	ImportBlockNumber = factory.NewGauge(prometheus.GaugeOpts{
		Name: "stratus_import_block_number",
		Help: "Number of the most recently imported block.",
	})

	TransactionsImported = factory.NewCounter(prometheus.CounterOpts{
		Name: "stratus_transactions_imported_total",
		Help: "Total number of transactions imported.",
	})

	ExecutionMismatches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "stratus_execution_mismatch_total",
		Help: "Reconciliation failures between local replay and upstream receipts, by kind.",
	}, []string{"kind"})

	StorageConflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "stratus_storage_conflict_total",
		Help: "Optimistic-concurrency conflicts detected at save_block, by kind and backend.",
	}, []string{"kind", "backend"})

	DagComputeDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name: "stratus_relayer_dag_compute_duration_seconds",
		Help: "Time to build the transaction dependency DAG for one block.",
	})

	RelayerForwardDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name: "stratus_relayer_forward_duration_seconds",
		Help: "Time to forward one wave of transactions to the leader.",
	})

	RpcRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name: "stratus_rpc_request_duration_seconds",
		Help: "JSON-RPC request handling duration, by method.",
	}, []string{"method"})
)

// IncImportOnline records one completed online-import iteration.
func IncImportOnline(number uint64, txCount int, elapsed time.Duration) {
	ImportOnlineDuration.Observe(elapsed.Seconds())
	ImportBlockNumber.Set(float64(number))
	TransactionsImported.Add(float64(txCount))
}

// IncExecutionMismatch records a reconciliation failure of the given kind.
func IncExecutionMismatch(kind string) {
	ExecutionMismatches.WithLabelValues(kind).Inc()
}

// IncStorageConflict records a save_block optimistic-concurrency conflict.
func IncStorageConflict(kind, backend string) {
	StorageConflicts.WithLabelValues(kind, backend).Inc()
}

// Handler returns the HTTP handler to mount at the metrics exporter address.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
