package sentinel

import (
	"sync"
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
)

// Metrics is the Prometheus-style counter/gauge bundle of §6.5, built on
// go-ethereum's own metrics registry so Sentinel's counters surface on
// the same /debug/metrics endpoint the node already exposes.
type Metrics struct {
	BlocksScanned         *gethmetrics.Counter
	TxsScanned            *gethmetrics.Counter
	TxsFlagged            *gethmetrics.Counter
	DeepAnalyses          *gethmetrics.Counter
	AlertsEmittedInfo     *gethmetrics.Counter
	AlertsEmittedWarning  *gethmetrics.Counter
	AlertsEmittedCritical *gethmetrics.Counter
	MempoolTxsScanned     *gethmetrics.Counter
	MempoolTxsFlagged     *gethmetrics.Counter
	MempoolAlertsEmitted  *gethmetrics.Counter
	PipelineStepsExecuted *gethmetrics.Counter
	PipelineStepsDismissed *gethmetrics.Counter
	DroppedBlocks         *gethmetrics.Counter
	AnalysisErrors        *gethmetrics.Counter

	PrefilterLatencyUs  gethmetrics.Histogram
	DeepAnalysisLatency gethmetrics.Histogram
	PipelineDuration    gethmetrics.Histogram

	mu               sync.Mutex
	stepDurationsSum map[string]time.Duration
	stepDurationsN   map[string]int64
}

// NewMetrics registers every counter under the "sentinel/" namespace in
// the default geth metrics registry.
func NewMetrics() *Metrics {
	sample := func() gethmetrics.Sample { return gethmetrics.NewExpDecaySample(1028, 0.015) }
	return &Metrics{
		BlocksScanned:          gethmetrics.NewRegisteredCounter("sentinel/blocks_scanned", nil),
		TxsScanned:             gethmetrics.NewRegisteredCounter("sentinel/txs_scanned", nil),
		TxsFlagged:             gethmetrics.NewRegisteredCounter("sentinel/txs_flagged", nil),
		DeepAnalyses:           gethmetrics.NewRegisteredCounter("sentinel/deep_analyses", nil),
		AlertsEmittedInfo:      gethmetrics.NewRegisteredCounter("sentinel/alerts_emitted/info", nil),
		AlertsEmittedWarning:   gethmetrics.NewRegisteredCounter("sentinel/alerts_emitted/warning", nil),
		AlertsEmittedCritical:  gethmetrics.NewRegisteredCounter("sentinel/alerts_emitted/critical", nil),
		MempoolTxsScanned:      gethmetrics.NewRegisteredCounter("sentinel/mempool_txs_scanned", nil),
		MempoolTxsFlagged:      gethmetrics.NewRegisteredCounter("sentinel/mempool_txs_flagged", nil),
		MempoolAlertsEmitted:   gethmetrics.NewRegisteredCounter("sentinel/mempool_alerts_emitted", nil),
		PipelineStepsExecuted:  gethmetrics.NewRegisteredCounter("sentinel/pipeline_steps_executed", nil),
		PipelineStepsDismissed: gethmetrics.NewRegisteredCounter("sentinel/pipeline_steps_dismissed", nil),
		DroppedBlocks:          gethmetrics.NewRegisteredCounter("sentinel/dropped_blocks", nil),
		AnalysisErrors:         gethmetrics.NewRegisteredCounter("sentinel/analysis_errors", nil),

		PrefilterLatencyUs:  gethmetrics.NewRegisteredHistogram("sentinel/prefilter_latency_us", nil, sample()),
		DeepAnalysisLatency: gethmetrics.NewRegisteredHistogram("sentinel/deep_analysis_latency_ms", nil, sample()),
		PipelineDuration:    gethmetrics.NewRegisteredHistogram("sentinel/pipeline_duration_ms", nil, sample()),

		stepDurationsSum: make(map[string]time.Duration),
		stepDurationsN:   make(map[string]int64),
	}
}

// RecordAlert increments the per-level alerts_emitted counter.
func (m *Metrics) RecordAlert(level AlertLevel) {
	switch level {
	case LevelCritical:
		m.AlertsEmittedCritical.Inc(1)
	case LevelWarning:
		m.AlertsEmittedWarning.Inc(1)
	default:
		m.AlertsEmittedInfo.Inc(1)
	}
}

// RecordStepDurations folds a completed pipeline run's per-step
// durations into the running pipeline_step_durations gauge set (§6.5).
func (m *Metrics) RecordStepDurations(durations map[string]time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, d := range durations {
		m.stepDurationsSum[name] += d
		m.stepDurationsN[name]++
		m.PipelineStepsExecuted.Inc(1)
	}
}

// AverageStepDuration returns the running mean duration for a named
// step, used by tests and the admin status surface.
func (m *Metrics) AverageStepDuration(name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.stepDurationsN[name]
	if n == 0 {
		return 0
	}
	return m.stepDurationsSum[name] / time.Duration(n)
}
