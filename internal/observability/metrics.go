package observability

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "HTTP requests served, by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern. Question routes include model calls.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route", "status"},
	)
	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of questions handled, by classified intent and outcome status.",
		},
		[]string{"intent", "outcome"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_llm_request_duration_seconds",
			Help:    "Language model completion latency by pipeline stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"stage", "outcome"},
	)
	sqlExecutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_sql_execution_duration_seconds",
			Help:    "Read-only statement execution latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	sqlRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_sql_rejected_total",
			Help: "Total number of statements rejected by the read-only gate.",
		},
	)
	conversationStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_conversation_store_errors_total",
			Help: "Total number of conversation store failures by operation.",
		},
		[]string{"op"},
	)
	schemaCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_schema_cache_total",
			Help: "Schema cache lookups by result.",
		},
		[]string{"result"},
	)
)

// DBPoolStats is a point-in-time view of the database connection pool.
type DBPoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

var dbPoolSource atomic.Pointer[func() DBPoolStats]

// SetDBPoolSource selects the pool reported by askdb_db_pool_connections.
// nil detaches it and the gauges read zero.
func SetDBPoolSource(source func() DBPoolStats) {
	if source == nil {
		dbPoolSource.Store(nil)
		return
	}
	dbPoolSource.Store(&source)
}

func currentDBPoolStats() DBPoolStats {
	source := dbPoolSource.Load()
	if source == nil {
		return DBPoolStats{}
	}
	return (*source)()
}

func newDBPoolGauge(state string, read func(DBPoolStats) int32) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "askdb_db_pool_connections",
			Help:        "Database pool connections by state.",
			ConstLabels: prometheus.Labels{"state": state},
		},
		func() float64 { return float64(read(currentDBPoolStats())) },
	)
}

var dbPoolGauges = []prometheus.GaugeFunc{
	newDBPoolGauge("acquired", func(s DBPoolStats) int32 { return s.Acquired }),
	newDBPoolGauge("idle", func(s DBPoolStats) int32 { return s.Idle }),
	newDBPoolGauge("total", func(s DBPoolStats) int32 { return s.Total }),
	newDBPoolGauge("max", func(s DBPoolStats) int32 { return s.Max }),
}

func init() {
	for _, gauge := range dbPoolGauges {
		prometheus.MustRegister(gauge)
	}
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpRequestsInFlight,
		questionsTotal,
		llmRequestDurationSeconds,
		sqlExecutionDurationSeconds,
		sqlRejectedTotal,
		conversationStoreErrorsTotal,
		schemaCacheTotal,
	)
}

func ObserveQuestion(intent, outcome string) {
	if intent == "" {
		intent = "unknown"
	}
	questionsTotal.WithLabelValues(intent, outcome).Inc()
}

func ObserveLLMRequest(stage string, elapsed time.Duration, err error) {
	llmRequestDurationSeconds.WithLabelValues(stage, outcomeLabel(err)).Observe(elapsed.Seconds())
}

func ObserveSQLExecution(elapsed time.Duration, err error) {
	sqlExecutionDurationSeconds.WithLabelValues(outcomeLabel(err)).Observe(elapsed.Seconds())
}

func IncrementSQLRejected() {
	sqlRejectedTotal.Inc()
}

func IncrementConversationStoreError(op string) {
	conversationStoreErrorsTotal.WithLabelValues(op).Inc()
}

func ObserveSchemaCache(hit bool) {
	if hit {
		schemaCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	schemaCacheTotal.WithLabelValues("miss").Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
