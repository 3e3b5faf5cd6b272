package sentinel

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// SentinelConfig tunes the PreFilter (§3.1).
type SentinelConfig struct {
	SuspicionThreshold float64
	MinValueWei        *uint256.Int
	MinGasUsed         uint64
	MinErc20Transfers  uint32
	GasRatioThreshold  float64
}

// DefaultSentinelConfig returns the §3.1 defaults.
func DefaultSentinelConfig() SentinelConfig {
	return SentinelConfig{
		SuspicionThreshold: 0.5,
		MinValueWei:        oneEther(),
		MinGasUsed:         100_000,
		MinErc20Transfers:  5,
		GasRatioThreshold:  0.95,
	}
}

func oneEther() *uint256.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	v, _ := uint256.FromBig(wei)
	return v
}

func errWeightSum(sum float64) error {
	return fmt.Errorf("scorer weights must sum to 1.0, got %.4f", sum)
}

// AnalysisConfig tunes the adaptive pipeline (§3.1). Weights must sum to
// 1.0; this is validated by Validate, called at config load per the
// invariant in §3.2.
type AnalysisConfig struct {
	MaxSteps              uint32
	MinConfidence         float64
	PatternWeight         float64
	AnomalyWeight         float64
	PrefilterWeight       float64
	FundFlowWeight        float64
	PerStepTimeout        time.Duration
	TotalPipelineBudget   time.Duration
	MaxAnalysisLagBlocks  uint64 // supplemented per SPEC_FULL.md Open Question
}

// DefaultAnalysisConfig returns the §3.1 defaults.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MaxSteps:             1_000_000,
		MinConfidence:        0.3,
		PatternWeight:        0.4,
		AnomalyWeight:        0.3,
		PrefilterWeight:      0.2,
		FundFlowWeight:       0.1,
		PerStepTimeout:       50 * time.Millisecond,
		TotalPipelineBudget:  500 * time.Millisecond,
		MaxAnalysisLagBlocks: 256,
	}
}

// Validate enforces the §3.2 invariant that scorer weights sum to 1.0.
func (c AnalysisConfig) Validate() error {
	sum := c.PatternWeight + c.AnomalyWeight + c.PrefilterWeight + c.FundFlowWeight
	if sum < 0.999 || sum > 1.001 {
		return newErr(ErrPreFilterFailure, errWeightSum(sum))
	}
	return nil
}

// FeatureVector is the 16-field numeric summary of a replayed step
// sequence used by AnomalyModel.Predict (§3.1).
type FeatureVector struct {
	TotalSteps        uint64
	UniqueAddresses    uint32
	MaxCallDepth       uint32
	CountSSTORE        uint32
	CountSLOAD         uint32
	CountCALL          uint32
	CountDELEGATECALL  uint32
	CountSTATICCALL    uint32
	CountCREATE        uint32
	CountSELFDESTRUCT  uint32
	CountLOG           uint32
	CountREVERT        uint32
	ReentrancyDepth    uint32
	EthTransferred     *uint256.Int
	GasRatio           float64
	CalldataEntropy    float64
}

// AnalysisContext is the mutable scratchpad threaded through pipeline
// steps (§3.1). Each AnalysisStep mutates it in place; ReportGenerator
// reads the final state to build a SentinelAlert.
type AnalysisContext struct {
	Block           BlockRef
	Tx              SuspiciousTx
	Replay          ReplayInput
	ReplayResult    *ReplayResult
	Patterns        []DetectedPattern
	FundFlows       []FundFlow
	Features        *FeatureVector
	AnomalyScore    *float64
	FinalConfidence *float64
	Evidence        []string
	Dismissed       bool

	stepDurations map[string]time.Duration
	startedAt     time.Time
}

// ReplayInput bundles everything TraceAnalyzer needs to ask the Replay
// Engine to reconstruct the target transaction's execution (§4.4).
type ReplayInput struct {
	ParentHash  common.Hash
	Header      *types.Header
	Txs         []*types.Transaction
	TargetIndex int
	GasLimit    uint64
}

// BlockRef is the minimal block identity the pipeline needs: enough to
// stamp a SentinelAlert without holding the full Block alive.
type BlockRef struct {
	Number uint64
	Hash   common.Hash
}

func newAnalysisContext(block BlockRef, tx SuspiciousTx) *AnalysisContext {
	return &AnalysisContext{
		Block:         block,
		Tx:            tx,
		stepDurations: make(map[string]time.Duration),
	}
}

// RecordStepDuration stores how long a named step took, feeding the
// pipeline_step_durations metric of §6.5.
func (c *AnalysisContext) RecordStepDuration(name string, d time.Duration) {
	c.stepDurations[name] = d
}

// StepDurations returns a copy of the recorded per-step durations.
func (c *AnalysisContext) StepDurations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.stepDurations))
	for k, v := range c.stepDurations {
		out[k] = v
	}
	return out
}

// MaxPatternConfidence returns the highest confidence among detected
// patterns, or 0 if none, as fed into ConfidenceScorer (§4.7).
func (c *AnalysisContext) MaxPatternConfidence() float64 {
	var max float64
	for _, p := range c.Patterns {
		if p.Confidence > max {
			max = p.Confidence
		}
	}
	return max
}

// TotalValueAtRisk sums the amounts of all recorded FundFlows whose
// asset is native ETH, approximating §4.7's value_at_risk term. ERC-20
// flows are denominated in token units and are not summed into the wei
// total; callers needing USD-normalized totals must supply a price feed
// out of band (out of scope per §1).
func (c *AnalysisContext) TotalValueAtRisk() *uint256.Int {
	total := new(uint256.Int)
	for _, f := range c.FundFlows {
		if f.Asset == AssetETH && f.Amount != nil {
			total.Add(total, f.Amount)
		}
	}
	return total
}
