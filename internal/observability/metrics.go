package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so components can take it as an optional dependency.
type Metrics struct {
	gatherer prometheus.Gatherer

	workflowsStarted  *prometheus.CounterVec
	workflowsFinished *prometheus.CounterVec
	admissionRejected *prometheus.CounterVec
	templateMatches   *prometheus.CounterVec
	shotOutcomes      *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	inflightWorkflows prometheus.Gauge
}

// NewMetrics registers collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		workflowsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_workflows_started_total",
				Help: "Workflows started, by kind",
			},
			[]string{"kind"},
		),
		workflowsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_workflows_finished_total",
				Help: "Workflows that reached a terminal state, by kind and state",
			},
			[]string{"kind", "state"},
		),
		admissionRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_admission_rejected_total",
				Help: "Requests rejected by admission control, by reason",
			},
			[]string{"reason"},
		),
		templateMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_template_matches_total",
				Help: "Template routing outcomes, by template id (\"none\" for no match)",
			},
			[]string{"template_id"},
		),
		shotOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_shot_outcomes_total",
				Help: "Per-shot render outcomes, by status",
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"stage"},
		),
		inflightWorkflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prism_workflows_inflight",
			Help: "Workflows currently executing",
		}),
	}
	reg.MustRegister(
		m.workflowsStarted,
		m.workflowsFinished,
		m.admissionRejected,
		m.templateMatches,
		m.shotOutcomes,
		m.stageDuration,
		m.inflightWorkflows,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) WorkflowStarted(kind string) {
	if m == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(kind).Inc()
	m.inflightWorkflows.Inc()
}

func (m *Metrics) WorkflowFinished(kind, state string) {
	if m == nil {
		return
	}
	m.workflowsFinished.WithLabelValues(kind, state).Inc()
	m.inflightWorkflows.Dec()
}

func (m *Metrics) AdmissionRejected(reason string) {
	if m == nil {
		return
	}
	m.admissionRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) TemplateMatched(templateID string) {
	if m == nil {
		return
	}
	if templateID == "" {
		templateID = "none"
	}
	m.templateMatches.WithLabelValues(templateID).Inc()
}

func (m *Metrics) ShotOutcome(status string) {
	if m == nil {
		return
	}
	m.shotOutcomes.WithLabelValues(status).Inc()
}

// ObserveStage records how long stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
