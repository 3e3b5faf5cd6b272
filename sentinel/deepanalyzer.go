package sentinel

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// DeepAnalyzer is the thin orchestrator §4.9 describes: given a
// suspicious transaction, it either delegates to a configured adaptive
// pipeline or runs a fixed fallback chain (Replay -> AttackClassifier ->
// FundFlowTracer -> Alert) when no pipeline is configured, guaranteeing
// functionality in minimal builds.
type DeepAnalyzer struct {
	store       Store
	replay      *ReplayEngine
	classifier  *AttackClassifier
	fundFlow    *FundFlowTracer
	anomaly     AnomalyModel
	pipeline    *AdaptivePipeline
	maxLag      uint64
	metrics     *Metrics
}

// NewDeepAnalyzer wires a DeepAnalyzer. pipeline may be nil, in which
// case Analyze always runs the fixed fallback chain. metrics may be
// nil, in which case per-analysis latency is not recorded.
func NewDeepAnalyzer(store Store, replay *ReplayEngine, classifier *AttackClassifier, fundFlow *FundFlowTracer, anomaly AnomalyModel, pipeline *AdaptivePipeline, maxAnalysisLagBlocks uint64, metrics *Metrics) *DeepAnalyzer {
	return &DeepAnalyzer{
		store:      store,
		replay:     replay,
		classifier: classifier,
		fundFlow:   fundFlow,
		anomaly:    anomaly,
		pipeline:   pipeline,
		maxLag:     maxAnalysisLagBlocks,
		metrics:    metrics,
	}
}

// Analyze replays and classifies a single suspicious transaction,
// returning (nil, nil) when the context was dismissed with no alert
// warranted, matching §3.2's "a dismissed context produces no alert".
func (d *DeepAnalyzer) Analyze(ctx context.Context, header *types.Header, txs []*types.Transaction, tx SuspiciousTx, currentBlock uint64, cfg AnalysisConfig) (*SentinelAlert, error) {
	if d.metrics != nil {
		start := time.Now()
		defer func() { d.metrics.DeepAnalysisLatency.Update(time.Since(start).Milliseconds()) }()
	}
	if d.maxLag > 0 && currentBlock > header.Number.Uint64() && currentBlock-header.Number.Uint64() > d.maxLag {
		return nil, newErr(ErrStateMissing, errAnalysisLagExceeded)
	}

	block := BlockRef{Number: header.Number.Uint64(), Hash: header.Hash()}
	replayInput := ReplayInput{
		ParentHash:  header.ParentHash,
		Header:      header,
		Txs:         txs,
		TargetIndex: tx.TxIndex,
		GasLimit:    header.GasLimit,
	}

	if d.pipeline != nil {
		return d.pipeline.Run(block, tx, replayInput, cfg)
	}
	return d.fallback(ctx, block, tx, replayInput, cfg)
}

// fallback runs the fixed Replay -> AttackClassifier -> FundFlowTracer
// -> Alert chain for minimal builds where the adaptive pipeline is
// disabled (§4.9).
func (d *DeepAnalyzer) fallback(ctx context.Context, block BlockRef, tx SuspiciousTx, replay ReplayInput, cfg AnalysisConfig) (*SentinelAlert, error) {
	rr, err := d.replay.Replay(ctx, replay.ParentHash, replay.Header, replay.Txs, replay.TargetIndex, cfg)
	if err != nil {
		return nil, err
	}
	patterns := d.classifier.Classify(rr.Steps)
	flows := d.fundFlow.Trace(rr.Steps)

	actx := newAnalysisContext(block, tx)
	actx.ReplayResult = rr
	actx.Patterns = patterns
	actx.FundFlows = flows

	patternConf := actx.MaxPatternConfidence()
	final := cfg.PatternWeight*patternConf + cfg.PrefilterWeight*tx.SuspicionScore
	if final > 1 {
		final = 1
	}
	actx.FinalConfidence = &final

	if final < cfg.MinConfidence {
		return nil, nil
	}
	return alertFromContext(actx, false), nil
}

var errAnalysisLagExceeded = stateMissingErr("transaction is older than max_analysis_lag_blocks; state likely pruned")

func stateMissingErr(msg string) error { return simpleErr(msg) }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
