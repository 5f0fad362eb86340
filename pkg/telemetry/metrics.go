package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paperpigeon"

var (
	StoreRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_requests_total",
		Help:      "The total number of requests sent to the source store, by table and operation.",
	}, []string{"table", "op"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "The total number of failed source store requests, by table and operation.",
	}, []string{"table", "op"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_cache_lookups_total",
		Help:      "Read-through cache lookups by collection and outcome (hit or miss).",
	}, []string{"collection", "outcome"})

	Rebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graph_rebuilds_total",
		Help:      "Graph rebuilds by result (success, build_failed, persist_failed).",
	}, []string{"result"})

	RebuildAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graph_build_attempts_total",
		Help:      "Individual graph build attempts, including retries.",
	})

	RebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "graph_rebuild_duration_seconds",
		Help:      "Wall time of a rebuild from first build attempt to persisted artifact.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"result"})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "graph_nodes",
		Help:      "Number of nodes in the graph currently being served.",
	})

	GraphLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "graph_links",
		Help:      "Number of links in the graph currently being served.",
	})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_errors_total",
		Help:      "Failed calls to external services, by service and operation.",
	}, []string{"service", "op"})
)
