package sentinel

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// NewDefaultSteps returns the default pipeline chain in the order §4.7
// specifies: TraceAnalyzer, PatternMatcher, FundFlowAnalyzer,
// AnomalyDetector, ConfidenceScorer, ReportGenerator.
func NewDefaultSteps() []AnalysisStep {
	return []AnalysisStep{
		&TraceAnalyzer{},
		&PatternMatcher{},
		&FundFlowAnalyzer{},
		&AnomalyDetector{},
		&ConfidenceScorer{},
		&ReportGenerator{},
	}
}

// TraceAnalyzer invokes the Replay Engine and populates
// ctx.ReplayResult (§4.7 step 1).
type TraceAnalyzer struct{}

func (s *TraceAnalyzer) Name() string { return "trace_analyzer" }

func (s *TraceAnalyzer) Execute(ctx *AnalysisContext, deps *StepDeps, cfg AnalysisConfig) (StepOutcome, error) {
	rr, err := deps.Replay.Replay(context.Background(), ctx.Replay.ParentHash, ctx.Replay.Header, ctx.Replay.Txs, ctx.Replay.TargetIndex, cfg)
	if err != nil {
		return StepOutcome{Kind: StepDismiss}, err
	}
	ctx.ReplayResult = rr
	return StepOutcome{Kind: StepContinue}, nil
}

// PatternMatcher runs AttackClassifier and dismisses early if no CALL
// opcodes appear in the trace, short-cutting reentrancy/flash-loan
// detectors that can never fire without one (§4.7 step 2).
type PatternMatcher struct{}

func (s *PatternMatcher) Name() string { return "pattern_matcher" }

func (s *PatternMatcher) Execute(ctx *AnalysisContext, deps *StepDeps, cfg AnalysisConfig) (StepOutcome, error) {
	if ctx.ReplayResult == nil {
		return StepOutcome{Kind: StepDismiss}, nil
	}
	if !HasCallOpcodes(ctx.ReplayResult.Steps) {
		return StepOutcome{Kind: StepDismiss}, nil
	}
	ctx.Patterns = deps.Classifier.Classify(ctx.ReplayResult.Steps)
	return StepOutcome{Kind: StepContinue}, nil
}

// FundFlowAnalyzer runs FundFlowTracer over the replayed steps (§4.7
// step 3).
type FundFlowAnalyzer struct{}

func (s *FundFlowAnalyzer) Name() string { return "fund_flow_analyzer" }

func (s *FundFlowAnalyzer) Execute(ctx *AnalysisContext, deps *StepDeps, cfg AnalysisConfig) (StepOutcome, error) {
	if ctx.ReplayResult == nil {
		return StepOutcome{Kind: StepContinue}, nil
	}
	ctx.FundFlows = deps.FundFlow.Trace(ctx.ReplayResult.Steps)
	return StepOutcome{Kind: StepContinue}, nil
}

// AnomalyDetector extracts a FeatureVector and invokes the configured
// AnomalyModel (§4.7 step 4).
type AnomalyDetector struct{}

func (s *AnomalyDetector) Name() string { return "anomaly_detector" }

func (s *AnomalyDetector) Execute(ctx *AnalysisContext, deps *StepDeps, cfg AnalysisConfig) (StepOutcome, error) {
	if ctx.ReplayResult == nil {
		return StepOutcome{Kind: StepContinue}, nil
	}
	calldata := ctx.Replay.Txs[ctx.Replay.TargetIndex].Data()
	fv := ExtractFeatureVector(ctx.ReplayResult.Steps, ctx.ReplayResult.GasUsed, ctx.Replay.GasLimit, calldata)
	ctx.Features = &fv
	score := deps.Anomaly.Predict(fv)
	ctx.AnomalyScore = &score
	return StepOutcome{Kind: StepContinue}, nil
}

// ConfidenceScorer computes final_confidence from the weighted
// combination of pattern confidence, anomaly score, prefilter score,
// and fund-flow value-at-risk (§4.7 step 5).
type ConfidenceScorer struct{}

func (s *ConfidenceScorer) Name() string { return "confidence_scorer" }

func (s *ConfidenceScorer) Execute(ctx *AnalysisContext, deps *StepDeps, cfg AnalysisConfig) (StepOutcome, error) {
	patternConf := ctx.MaxPatternConfidence()
	anomaly := 0.0
	if ctx.AnomalyScore != nil {
		anomaly = *ctx.AnomalyScore
	}
	prefilter := ctx.Tx.SuspicionScore
	if prefilter > 1 {
		prefilter = 1
	}

	ffTerm := 0.0
	valueAtRisk := ctx.TotalValueAtRisk()
	if !valueAtRisk.IsZero() {
		thresholdLog := math.Log(1e18) // 1 ETH in wei, the §4.7 threshold denominator
		valueF, _ := valueAtRisk.ToBig().Float64()
		if valueF > 1 {
			ffTerm = math.Log(valueF) / thresholdLog
			if ffTerm > 1 {
				ffTerm = 1
			}
			if ffTerm < 0 {
				ffTerm = 0
			}
		}
	}

	final := cfg.PatternWeight*patternConf + cfg.AnomalyWeight*anomaly + cfg.PrefilterWeight*prefilter + cfg.FundFlowWeight*ffTerm
	if final > 1 {
		final = 1
	}
	if final < 0 {
		final = 0
	}
	ctx.FinalConfidence = &final

	if ctx.Dismissed {
		return StepOutcome{Kind: StepDismiss}, nil
	}
	if final < cfg.MinConfidence {
		return StepOutcome{Kind: StepDismiss}, nil
	}
	return StepOutcome{Kind: StepContinue}, nil
}

// ReportGenerator builds the final SentinelAlert (§4.7 step 6). It
// performs no scoring of its own; alertFromContext does the actual
// construction so the total-pipeline-budget timeout path in
// AdaptivePipeline.Run can build a partial alert the same way.
type ReportGenerator struct{}

func (s *ReportGenerator) Name() string { return "report_generator" }

func (s *ReportGenerator) Execute(ctx *AnalysisContext, deps *StepDeps, cfg AnalysisConfig) (StepOutcome, error) {
	return StepOutcome{Kind: StepContinue}, nil
}

// alertFromContext builds a SentinelAlert from a finished (or
// timed-out, if partial) AnalysisContext.
func alertFromContext(ctx *AnalysisContext, partial bool) *SentinelAlert {
	score := ctx.Tx.SuspicionScore
	if ctx.FinalConfidence != nil {
		score = *ctx.FinalConfidence
	}
	summary := summarize(ctx)
	return &SentinelAlert{
		ID:               uuid.New(),
		BlockNumber:      ctx.Block.Number,
		BlockHash:        ctx.Block.Hash,
		TxHash:           ctx.Tx.TxHash,
		TxIndex:          ctx.Tx.TxIndex,
		AlertLevel:       LevelForScore(score),
		SuspicionScore:   score,
		DetectedPatterns: ctx.Patterns,
		FundFlows:        ctx.FundFlows,
		TotalValueAtRisk: ctx.TotalValueAtRisk(),
		Summary:          summary,
		FeatureVector:    ctx.Features,
		Partial:          partial,
		Evidence:         ctx.Evidence,
	}
}

func summarize(ctx *AnalysisContext) string {
	if len(ctx.Patterns) == 0 {
		return fmt.Sprintf("tx %s flagged by pre-filter (score %.2f), no pattern confirmed by replay", ctx.Tx.TxHash.Hex(), ctx.Tx.SuspicionScore)
	}
	best := ctx.Patterns[0]
	for _, p := range ctx.Patterns[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return fmt.Sprintf("tx %s: %s detected (confidence %.2f)", ctx.Tx.TxHash.Hex(), best.Kind, best.Confidence)
}
