package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

// PipelineMetrics records RAG graph telemetry and circuit breaker
// transitions. It satisfies ports.PipelineObserver.
type PipelineMetrics struct {
	service string

	nodeDuration    *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	complexityTotal *prometheus.CounterVec
	iterations      *prometheus.HistogramVec
	qualityScore    *prometheus.HistogramVec
	clarifications  *prometheus.CounterVec
	followUps       *prometheus.CounterVec
	rerankTotal     *prometheus.CounterVec
	rerankKept      *prometheus.HistogramVec
	breakerTransits *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		service: service,
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "node_duration_seconds",
				Help:      "Graph node execution time by node and status.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service", "node", "status"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "runs_total",
				Help:      "Completed graph invocations by mode and outcome.",
			},
			[]string{"service", "mode", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "run_duration_seconds",
				Help:      "Whole graph invocation time by mode.",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
			},
			[]string{"service", "mode"},
		),
		complexityTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "complexity_total",
				Help:      "Classified questions by complexity.",
			},
			[]string{"service", "complexity"},
		),
		iterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "refinement_iterations",
				Help:      "Refinement iterations per successful invocation.",
				Buckets:   []float64{0, 1, 2},
			},
			[]string{"service", "mode"},
		),
		qualityScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "quality_score",
				Help:      "Final judged answer quality.",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
			[]string{"service", "mode"},
		),
		clarifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "conversation",
				Name:      "clarifications_total",
				Help:      "Turns answered with a clarification request.",
			},
			[]string{"service"},
		),
		followUps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "conversation",
				Name:      "followups_total",
				Help:      "Turns detected as follow-up questions.",
			},
			[]string{"service"},
		),
		rerankTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rerank",
				Name:      "calls_total",
				Help:      "Rerank calls by outcome.",
			},
			[]string{"service", "outcome"},
		),
		rerankKept: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rerank",
				Name:      "kept_ratio",
				Help:      "Share of input documents returned by the reranker.",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.5, 0.7, 1},
			},
			[]string{"service"},
		),
		breakerTransits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state changes by operation.",
			},
			[]string{"service", "operation", "from", "to"},
		),
	}

	registerer.MustRegister(
		m.nodeDuration,
		m.runsTotal,
		m.runDuration,
		m.complexityTotal,
		m.iterations,
		m.qualityScore,
		m.clarifications,
		m.followUps,
		m.rerankTotal,
		m.rerankKept,
		m.breakerTransits,
	)
	return m
}

func (m *PipelineMetrics) ObserveNode(node string, duration time.Duration, err error) {
	m.nodeDuration.WithLabelValues(m.service, node, statusOf(err)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveRun(mode string, answer *domain.Answer, duration time.Duration, err error) {
	m.runDuration.WithLabelValues(m.service, mode).Observe(duration.Seconds())

	switch {
	case errors.Is(err, domain.ErrTimeout):
		m.runsTotal.WithLabelValues(m.service, mode, "timeout").Inc()
		return
	case err != nil:
		m.runsTotal.WithLabelValues(m.service, mode, "error").Inc()
		return
	case answer == nil:
		m.runsTotal.WithLabelValues(m.service, mode, "ok").Inc()
		return
	}

	if answer.IsFollowUp {
		m.followUps.WithLabelValues(m.service).Inc()
	}
	if answer.NeedsClarification {
		m.runsTotal.WithLabelValues(m.service, mode, "clarification").Inc()
		m.clarifications.WithLabelValues(m.service).Inc()
		return
	}

	m.runsTotal.WithLabelValues(m.service, mode, "ok").Inc()
	if answer.Complexity != "" {
		m.complexityTotal.WithLabelValues(m.service, string(answer.Complexity)).Inc()
	}
	m.iterations.WithLabelValues(m.service, mode).Observe(float64(answer.Iterations))
	m.qualityScore.WithLabelValues(m.service, mode).Observe(answer.QualityScore)
}

func (m *PipelineMetrics) ObserveRerank(outcome string, inputDocs, outputDocs int) {
	m.rerankTotal.WithLabelValues(m.service, outcome).Inc()
	if inputDocs > 0 {
		m.rerankKept.WithLabelValues(m.service).Observe(float64(outputDocs) / float64(inputDocs))
	}
}

// BreakerStateChanged matches resilience.StateListener.
func (m *PipelineMetrics) BreakerStateChanged(operation, from, to string) {
	m.breakerTransits.WithLabelValues(m.service, operation, from, to).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
