package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// HTTP surface.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmakg_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmakg_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Ingestion pipeline.
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmakg_records_ingested_total",
			Help: "Variant records accepted into the graph",
		},
		[]string{"source"},
	)

	MalformedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmakg_records_malformed_total",
			Help: "Variant records rejected during normalization",
		},
		[]string{"source"},
	)

	AnnotationConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmakg_annotation_conflicts_total",
			Help: "Curated-source annotation conflicts detected during merging",
		},
	)

	IntegrityViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmakg_integrity_violations_total",
			Help: "Graph mutations rejected for schema violations",
		},
	)

	// Graph size.
	GraphNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pharmakg_graph_nodes",
			Help: "Current node count per type",
		},
		[]string{"type"},
	)

	GraphEdges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pharmakg_graph_edges",
			Help: "Current edge count per type",
		},
		[]string{"type"},
	)

	// Evidence queries.
	EvidenceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmakg_evidence_query_duration_seconds",
			Help:    "Duration of evidence aggregation queries",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	// Journal.
	JournalRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmakg_journal_records_total",
			Help: "Mutation records appended to the journal",
		},
	)

	JournalRewrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmakg_journal_rewrites_total",
			Help: "Journal compaction rewrites completed",
		},
	)
)
