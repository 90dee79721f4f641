// Package metrics provides Prometheus metrics for the pick pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics collects and exposes pipeline-related Prometheus metrics.
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Consensus metrics
	RecordsTotal   *prometheus.CounterVec
	RowsDropped    *prometheus.CounterVec
	SourceFailures *prometheus.CounterVec
	SourceLatency  *prometheus.HistogramVec

	// Generation metrics
	BackendCalls    *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	CandidatesTotal *prometheus.CounterVec

	// Validation metrics
	PicksAccepted *prometheus.CounterVec
	PicksRejected *prometheus.CounterVec

	// Settlement metrics
	Settlements    *prometheus.CounterVec
	PendingPicks   *prometheus.GaugeVec
	SettleSkipped  *prometheus.CounterVec

	// Pipeline metrics
	StageLatency *prometheus.HistogramVec
	RunsTotal    *prometheus.CounterVec
}

// NewPipelineMetrics creates a new pipeline metrics collector.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	pm := &PipelineMetrics{
		registry: registry,

		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_consensus_records_total",
				Help: "Canonical consensus records produced per source",
			},
			[]string{"source", "sport"},
		),
		RowsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_consensus_rows_dropped_total",
				Help: "Source rows dropped during normalization",
			},
			[]string{"source", "reason"},
		),
		SourceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_source_failures_total",
				Help: "Whole-source fetch failures",
			},
			[]string{"source"},
		),
		SourceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pickline_source_fetch_seconds",
				Help:    "Consensus source fetch latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"source"},
		),
		BackendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_backend_calls_total",
				Help: "Generation backend attempts by outcome",
			},
			[]string{"backend", "status"},
		),
		BackendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pickline_backend_latency_seconds",
				Help:    "Generation backend call latency",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"backend"},
		),
		CandidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_candidates_total",
				Help: "Candidate picks parsed from backend output",
			},
			[]string{"sport", "market"},
		),
		PicksAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_picks_accepted_total",
				Help: "Candidates accepted by validation",
			},
			[]string{"sport", "market"},
		),
		PicksRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_picks_rejected_total",
				Help: "Candidates rejected by validation, by reason",
			},
			[]string{"sport", "reason"},
		),
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_settlements_total",
				Help: "Picks settled, by result",
			},
			[]string{"sport", "result"},
		),
		PendingPicks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pickline_pending_picks",
				Help: "Unsettled picks awaiting results",
			},
			[]string{"sport"},
		),
		SettleSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_settlement_skipped_total",
				Help: "Settlement passes that left a pick pending, by reason",
			},
			[]string{"reason"},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pickline_stage_latency_seconds",
				Help:    "Pipeline stage execution time",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"stage"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pickline_pipeline_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"},
		),
	}

	pm.registerAll()
	return pm
}

func (pm *PipelineMetrics) registerAll() {
	pm.registry.MustRegister(
		pm.RecordsTotal,
		pm.RowsDropped,
		pm.SourceFailures,
		pm.SourceLatency,
		pm.BackendCalls,
		pm.BackendLatency,
		pm.CandidatesTotal,
		pm.PicksAccepted,
		pm.PicksRejected,
		pm.Settlements,
		pm.PendingPicks,
		pm.SettleSkipped,
		pm.StageLatency,
		pm.RunsTotal,
	)
}

// Registry returns the Prometheus registry for HTTP exposure.
func (pm *PipelineMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// RecordSource records the outcome of one source fetch.
func (pm *PipelineMetrics) RecordSource(source string, latencySec float64, failed bool) {
	pm.SourceLatency.WithLabelValues(source).Observe(latencySec)
	if failed {
		pm.SourceFailures.WithLabelValues(source).Inc()
	}
}

// RecordNormalized records canonical records and dropped rows for a source.
func (pm *PipelineMetrics) RecordNormalized(source, sport string, records int) {
	pm.RecordsTotal.WithLabelValues(source, sport).Add(float64(records))
}

// RecordDropped records a malformed row dropped during normalization.
func (pm *PipelineMetrics) RecordDropped(source, reason string) {
	pm.RowsDropped.WithLabelValues(source, reason).Inc()
}

// RecordBackend records one generation backend attempt.
func (pm *PipelineMetrics) RecordBackend(backend, status string, latencySec float64) {
	pm.BackendCalls.WithLabelValues(backend, status).Inc()
	pm.BackendLatency.WithLabelValues(backend).Observe(latencySec)
}

// RecordCandidate records a parsed candidate pick.
func (pm *PipelineMetrics) RecordCandidate(sport, market string) {
	pm.CandidatesTotal.WithLabelValues(sport, market).Inc()
}

// RecordAcceptance records a validation decision.
func (pm *PipelineMetrics) RecordAcceptance(sport, market string, accepted bool, reason string) {
	if accepted {
		pm.PicksAccepted.WithLabelValues(sport, market).Inc()
		return
	}
	pm.PicksRejected.WithLabelValues(sport, reason).Inc()
}

// RecordSettlement records a settled pick.
func (pm *PipelineMetrics) RecordSettlement(sport, result string) {
	pm.Settlements.WithLabelValues(sport, result).Inc()
}

// RecordSettleSkip records a pick left pending after a settlement pass.
func (pm *PipelineMetrics) RecordSettleSkip(reason string) {
	pm.SettleSkipped.WithLabelValues(reason).Inc()
}

// UpdatePending sets the pending-pick gauge for a sport.
func (pm *PipelineMetrics) UpdatePending(sport string, count int) {
	pm.PendingPicks.WithLabelValues(sport).Set(float64(count))
}

// RecordStage records a pipeline stage duration.
func (pm *PipelineMetrics) RecordStage(stage string, durationSec float64) {
	pm.StageLatency.WithLabelValues(stage).Observe(durationSec)
}

// RecordRun records a pipeline run outcome.
func (pm *PipelineMetrics) RecordRun(status string) {
	pm.RunsTotal.WithLabelValues(status).Inc()
}

var (
	defaultMetrics *PipelineMetrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics collector.
func Default() *PipelineMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewPipelineMetrics()
	})
	return defaultMetrics
}
