package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendingrisk_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lendingrisk_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lendingrisk_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	AnalysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendingrisk_analysis_runs_total",
			Help: "Total number of health factor analysis runs",
		},
		[]string{"chain_id", "status"}, // status: success|error|skipped
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lendingrisk_analysis_duration_seconds",
			Help:    "Health factor analysis duration in seconds, fetch included",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"chain_id"},
	)

	AnalysisUsers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lendingrisk_analysis_users",
			Help: "Users in the latest analysis by category",
		},
		[]string{"chain_id", "category"}, // category: total|with_debt|at_risk|excluded
	)

	SimulatedLiquidatable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lendingrisk_simulated_liquidatable_users",
			Help: "Users liquidatable under each price shock scenario",
		},
		[]string{"chain_id", "scenario"},
	)

	SubgraphCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendingrisk_subgraph_calls_total",
			Help: "Total number of subgraph GraphQL calls",
		},
		[]string{"chain_id", "query", "status"},
	)

	SubgraphLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lendingrisk_subgraph_latency_seconds",
			Help:    "Subgraph call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"chain_id", "query"},
	)

	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendingrisk_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lendingrisk_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendingrisk_kafka_messages_total",
			Help: "Total Kafka messages produced/consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: produced|consumed
	)

	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lendingrisk_protocol_events_ingested_total",
			Help: "Protocol events newly stored",
		},
		[]string{"chain_id", "event_type"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			WorkerExecutions, WorkerDuration, WorkerLastRun,
			AnalysisRuns, AnalysisDuration, AnalysisUsers, SimulatedLiquidatable,
			SubgraphCalls, SubgraphLatency,
			DBQueries, DBQueryDuration,
			KafkaMessages, EventsIngested,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordAnalysis records one analysis run
func RecordAnalysis(chainID string, duration time.Duration, err error) {
	AnalysisRuns.WithLabelValues(chainID, status(err)).Inc()
	AnalysisDuration.WithLabelValues(chainID).Observe(duration.Seconds())
}

// RecordAnalysisSkipped counts a run skipped because another holds the lock
func RecordAnalysisSkipped(chainID string) {
	AnalysisRuns.WithLabelValues(chainID, "skipped").Inc()
}

// SetAnalysisUsers publishes the user counts of the latest analysis
func SetAnalysisUsers(chainID string, total, withDebt, atRisk, excluded int) {
	AnalysisUsers.WithLabelValues(chainID, "total").Set(float64(total))
	AnalysisUsers.WithLabelValues(chainID, "with_debt").Set(float64(withDebt))
	AnalysisUsers.WithLabelValues(chainID, "at_risk").Set(float64(atRisk))
	AnalysisUsers.WithLabelValues(chainID, "excluded").Set(float64(excluded))
}

// SetSimulatedLiquidatable publishes one shock scenario count
func SetSimulatedLiquidatable(chainID, scenario string, users int) {
	SimulatedLiquidatable.WithLabelValues(chainID, scenario).Set(float64(users))
}

// RecordSubgraphCall records a GraphQL call
func RecordSubgraphCall(chainID, query string, latency time.Duration, err error) {
	SubgraphCalls.WithLabelValues(chainID, query, status(err)).Inc()
	SubgraphLatency.WithLabelValues(chainID, query).Observe(latency.Seconds())
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced or consumed message
func RecordKafkaMessage(topic, direction string, err error) {
	KafkaMessages.WithLabelValues(topic, direction, status(err)).Inc()
}

// RecordEventsIngested counts newly stored protocol events
func RecordEventsIngested(chainID, eventType string, n int) {
	EventsIngested.WithLabelValues(chainID, eventType).Add(float64(n))
}
