package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_risk"

// Metrics holds the Prometheus collectors of the ETL pipeline, the view refresh and the query API.
type Metrics struct {
	// Pipeline metrics. labels: variable, ssp
	BatchesTotal        *prometheus.CounterVec // labels: variable, status={succeeded,failed}
	BatchDuration       *prometheus.HistogramVec
	StageDuration       *prometheus.HistogramVec // labels: stage={extract,reduce,aggregate,load}
	RowsUpserted        *prometheus.CounterVec
	FeaturesWithoutData *prometheus.CounterVec
	PipelineRunning     prometheus.Gauge

	// View refresh metrics. labels: category
	RefreshTotal    *prometheus.CounterVec // labels: category, status
	RefreshDuration *prometheus.HistogramVec
	ViewRows        *prometheus.GaugeVec

	// Query API metrics.
	QueryRequests *prometheus.CounterVec   // labels: category, format, outcome={ok,offloaded,error}
	QueryCache    *prometheus.CounterVec   // labels: result={hit,miss}
	QueryDuration *prometheus.HistogramVec // labels: category
	QueryRows     prometheus.Histogram
}

func newCollectors() *Metrics {
	return &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "etl_batches_total",
			Help:      "ETL batches by variable and final status.",
		}, []string{"variable", "status"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "etl_batch_duration_seconds",
			Help:      "Duration of one (variable, ssp) batch from extract to commit.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"variable", "ssp"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "etl_stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"stage"}),
		RowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "etl_rows_upserted_total",
			Help:      "Fact rows inserted or updated.",
		}, []string{"variable", "ssp"}),
		FeaturesWithoutData: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "etl_features_without_data_total",
			Help:      "Features that intersected no cell with a finite value.",
		}, []string{"variable", "ssp"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "etl_batches_running",
			Help:      "Batches currently in flight.",
		}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_refresh_total",
			Help:      "Materialized view rebuilds by category and status.",
		}, []string{"category", "status"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_refresh_duration_seconds",
			Help:      "Duration of one materialized view rebuild.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"category"}),
		ViewRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_rows",
			Help:      "Row count of each consolidated view after its last rebuild.",
		}, []string{"category"}),
		QueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_requests_total",
			Help:      "Data queries by category, format and outcome.",
		}, []string{"category", "format", "outcome"}),
		QueryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_total",
			Help:      "Query response cache lookups by result.",
		}, []string{"result"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Data query duration including serialization.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"category"}),
		QueryRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_rows",
			Help:      "Rows returned by the data query before condensation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BatchesTotal,
		m.BatchDuration,
		m.StageDuration,
		m.RowsUpserted,
		m.FeaturesWithoutData,
		m.PipelineRunning,
		m.RefreshTotal,
		m.RefreshDuration,
		m.ViewRows,
		m.QueryRequests,
		m.QueryCache,
		m.QueryDuration,
		m.QueryRows,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newCollectors()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newCollectors()
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
