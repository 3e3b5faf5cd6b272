// Package config loads and hot-reloads the sentinel.toml document
// described by §6.4, using the teacher's own naoina/toml parser so
// unknown fields are rejected at parse time exactly as the node's own
// config loader rejects them.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/sentinel-watch/sentinel/sentinel"
)

// File is the top-level TOML document shape (§6.4).
type File struct {
	Prefilter PrefilterSection `toml:"prefilter"`
	Analysis  AnalysisSection  `toml:"analysis"`
	Alert     AlertSection     `toml:"alert"`
	Mempool   MempoolSection   `toml:"mempool"`
	AutoPause AutoPauseSection `toml:"auto_pause"`
	Pipeline  PipelineSection  `toml:"pipeline"`
}

type PrefilterSection struct {
	SuspicionThreshold float64 `toml:"suspicion_threshold"`
	MinValueWei        string  `toml:"min_value_wei"`
	MinGasUsed         uint64  `toml:"min_gas_used"`
	MinErc20Transfers  uint32  `toml:"min_erc20_transfers"`
	GasRatioThreshold  float64 `toml:"gas_ratio_threshold"`
}

type AnalysisSection struct {
	MaxSteps             uint32  `toml:"max_steps"`
	MinConfidence        float64 `toml:"min_confidence"`
	PatternWeight        float64 `toml:"pattern_weight"`
	AnomalyWeight        float64 `toml:"anomaly_weight"`
	PrefilterWeight      float64 `toml:"prefilter_weight"`
	FundFlowWeight       float64 `toml:"fund_flow_weight"`
	PerStepTimeoutMs     uint64  `toml:"per_step_timeout_ms"`
	TotalPipelineMs      uint64  `toml:"total_pipeline_ms"`
	MaxAnalysisLagBlocks uint64  `toml:"max_analysis_lag_blocks"`
}

type AlertSection struct {
	RateLimitPerMin   float64 `toml:"rate_limit_per_min"`
	DedupWindowBlocks uint64  `toml:"dedup_window_blocks"`
	AvgBlockTimeSecs  float64 `toml:"avg_block_time_secs"`
	DedupeStorePath   string  `toml:"dedupe_store_path"`
}

type MempoolSection struct {
	Enabled     bool    `toml:"enabled"`
	MinValueWei string  `toml:"min_value"`
	MinGasLimit uint64  `toml:"min_gas"`
}

type AutoPauseSection struct {
	Enabled            bool    `toml:"enabled"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	PriorityThreshold  string  `toml:"priority_threshold"`
	AutoResumeSecs     uint64  `toml:"auto_resume_secs"`
}

type PipelineSection struct {
	Enabled     bool   `toml:"enabled"`
	ModelPath   string `toml:"model_path"`
	MaxPipelineMs uint64 `toml:"max_pipeline_ms"`
}

// Default returns a File populated entirely from sentinel's own
// defaults, used when no config file is supplied.
func Default() File {
	sc := sentinel.DefaultSentinelConfig()
	ac := sentinel.DefaultAnalysisConfig()
	mc := sentinel.DefaultMempoolConfig()
	return File{
		Prefilter: PrefilterSection{
			SuspicionThreshold: sc.SuspicionThreshold,
			MinValueWei:        sc.MinValueWei.Dec(),
			MinGasUsed:         sc.MinGasUsed,
			MinErc20Transfers:  sc.MinErc20Transfers,
			GasRatioThreshold:  sc.GasRatioThreshold,
		},
		Analysis: AnalysisSection{
			MaxSteps:             ac.MaxSteps,
			MinConfidence:        ac.MinConfidence,
			PatternWeight:        ac.PatternWeight,
			AnomalyWeight:        ac.AnomalyWeight,
			PrefilterWeight:      ac.PrefilterWeight,
			FundFlowWeight:       ac.FundFlowWeight,
			PerStepTimeoutMs:     uint64(ac.PerStepTimeout / time.Millisecond),
			TotalPipelineMs:      uint64(ac.TotalPipelineBudget / time.Millisecond),
			MaxAnalysisLagBlocks: ac.MaxAnalysisLagBlocks,
		},
		Alert: AlertSection{
			RateLimitPerMin:   600,
			DedupWindowBlocks: 10,
			AvgBlockTimeSecs:  12,
			DedupeStorePath:   "",
		},
		Mempool: MempoolSection{
			Enabled:     mc.Enabled,
			MinValueWei: mc.MinValue.Dec(),
			MinGasLimit: mc.MinGasLimit,
		},
		AutoPause: AutoPauseSection{
			Enabled:             true,
			ConfidenceThreshold: 0.8,
			PriorityThreshold:   "critical",
			AutoResumeSecs:      3600,
		},
		Pipeline: PipelineSection{
			Enabled:       true,
			MaxPipelineMs: 500,
		},
	}
}

// Load reads and parses a TOML document from path. Unknown fields are
// rejected per §6.4 — naoina/toml's decoder errors on them by default
// when the destination struct has no catch-all field.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return f, nil
}
