package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "epicenter"

// Metrics holds the Prometheus counters, histograms, and gauges for analysis
// runs and the request pipeline.
type Metrics struct {
	// Analysis metrics, recorded by every Analyzer run.
	Analyses          *prometheus.CounterVec // labels: outcome={completed,failed}
	AnalysisDuration  prometheus.Histogram
	FramesProcessed   prometheus.Counter
	FramesSkipped     prometheus.Counter
	CandidatesPerRun  prometheus.Histogram
	ActiveAnalyses    prometheus.Gauge
	MotionEstimations *prometheus.CounterVec // labels: estimator

	// Request pipeline metrics.
	RequestsConsumed        prometheus.Counter
	ResultsProduced         prometheus.Counter
	RequestErrors           prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith creates metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Video analyses by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a single video analysis.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames whose motion field was accumulated.",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames skipped by the analysis stride.",
		}),
		CandidatesPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_analysis",
			Help:      "Epicenter candidates found per analysis, before the top-K cut.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		ActiveAnalyses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_analyses",
			Help:      "Analyses currently running.",
		}),
		MotionEstimations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_estimations_total",
			Help:      "Dense motion fields estimated, by estimator.",
		}, []string{"estimator"}),
		RequestsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_consumed_total",
			Help:      "Total analysis requests read from the request topic.",
		}),
		ResultsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_produced_total",
			Help:      "Total analysis results written to the result sinks.",
		}),
		RequestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Requests dropped because they could not be parsed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of requests per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-analyze-load cycle.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),
	}

	reg.MustRegister(
		m.Analyses,
		m.AnalysisDuration,
		m.FramesProcessed,
		m.FramesSkipped,
		m.CandidatesPerRun,
		m.ActiveAnalyses,
		m.MotionEstimations,
		m.RequestsConsumed,
		m.ResultsProduced,
		m.RequestErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)

	return m
}
