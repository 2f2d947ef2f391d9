package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Indexing API Metrics
	indexerCallsTotal   *prometheus.CounterVec
	indexerCallDuration *prometheus.HistogramVec

	// Extraction Metrics
	transactionsFetchedTotal *prometheus.CounterVec
	transfersExtractedTotal  *prometheus.CounterVec
	transactionsSkippedTotal *prometheus.CounterVec

	// Report Metrics
	reportBuildsTotal   *prometheus.CounterVec
	reportBuildDuration *prometheus.HistogramVec

	// Rate Metrics
	rateLookupsTotal *prometheus.CounterVec
	rateCacheTotal   *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		indexerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_api_calls_total",
				Help: "Total number of indexing API page requests by status",
			},
			[]string{"status"},
		),
		indexerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_api_call_duration_seconds",
				Help:    "Duration of indexing API page requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"status"},
		),

		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of raw transactions fetched by source",
			},
			[]string{"source"},
		),
		transfersExtractedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_extracted_total",
				Help: "Total number of normalized transfers by record shape",
			},
			[]string{"shape"},
		),
		transactionsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_skipped_total",
				Help: "Total number of transactions skipped during normalization",
			},
			[]string{"source", "reason"},
		),

		reportBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_builds_total",
				Help: "Total number of wallet reports built by source and status",
			},
			[]string{"source", "status"},
		),
		reportBuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_build_duration_seconds",
				Help:    "Duration of wallet report builds in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source"},
		),

		rateLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiat_rate_lookups_total",
				Help: "Total number of fiat rate lookups by status",
			},
			[]string{"status"},
		),
		rateCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiat_rate_cache_total",
				Help: "Fiat rate cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10, 30},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"wallet_address"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	if m == nil {
		return
	}
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	if m == nil {
		return
	}
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Indexing API metric helpers

// RecordIndexerCall records one indexing API page request.
func (m *Metrics) RecordIndexerCall(status string, duration float64) {
	if m == nil {
		return
	}
	m.indexerCallsTotal.WithLabelValues(status).Inc()
	m.indexerCallDuration.WithLabelValues(status).Observe(duration)
}

// Extraction metric helpers

// RecordTransactionsFetched records raw transactions returned by a source.
func (m *Metrics) RecordTransactionsFetched(source string, count int) {
	if m == nil {
		return
	}
	m.transactionsFetchedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordTransferExtracted records one normalized transfer.
func (m *Metrics) RecordTransferExtracted(shape string) {
	if m == nil {
		return
	}
	m.transfersExtractedTotal.WithLabelValues(shape).Inc()
}

// RecordTransactionSkipped records a transaction dropped during normalization.
func (m *Metrics) RecordTransactionSkipped(source, reason string) {
	if m == nil {
		return
	}
	m.transactionsSkippedTotal.WithLabelValues(source, reason).Inc()
}

// Report metric helpers

// RecordReportBuild records a report build attempt with its duration.
func (m *Metrics) RecordReportBuild(source, status string, duration float64) {
	if m == nil {
		return
	}
	m.reportBuildsTotal.WithLabelValues(source, status).Inc()
	m.reportBuildDuration.WithLabelValues(source).Observe(duration)
}

// Rate metric helpers

// RecordRateLookup records a fiat rate lookup ("success" or "error").
func (m *Metrics) RecordRateLookup(status string) {
	if m == nil {
		return
	}
	m.rateLookupsTotal.WithLabelValues(status).Inc()
}

// RecordRateCache records a rate cache access ("hit", "miss" or "error").
func (m *Metrics) RecordRateCache(result string) {
	if m == nil {
		return
	}
	m.rateCacheTotal.WithLabelValues(result).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(walletAddress string, delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.WithLabelValues(walletAddress).Add(delta)
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
