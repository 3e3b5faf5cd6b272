package sentinel

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// AnomalyModel is the capability ConfidenceScorer's anomaly term is
// computed from (§4.8). The pipeline does not recompile on model swap;
// any implementation satisfying Predict may be plugged in.
type AnomalyModel interface {
	Predict(features FeatureVector) float64
}

// featureBaseline holds the offline-calibrated mean/stddev for one
// FeatureVector field, used by the default z-score model.
type featureBaseline struct {
	mean, stddev float64
}

// DefaultAnomalyModel implements the §4.8 default: per-feature z-score
// against compiled-in baselines, averaged into a single magnitude and
// mapped through a sigmoid. Baselines below are deliberately
// conservative (high stddev) placeholders pending field calibration, as
// §9 notes.
type DefaultAnomalyModel struct {
	baselines [16]featureBaseline
}

// NewDefaultAnomalyModel returns the model with conservative compiled-in
// baselines. Index order matches the field order of FeatureVector.
func NewDefaultAnomalyModel() *DefaultAnomalyModel {
	return &DefaultAnomalyModel{baselines: [16]featureBaseline{
		{mean: 500, stddev: 800},     // TotalSteps
		{mean: 3, stddev: 5},         // UniqueAddresses
		{mean: 2, stddev: 3},         // MaxCallDepth
		{mean: 4, stddev: 8},         // CountSSTORE
		{mean: 8, stddev: 12},        // CountSLOAD
		{mean: 2, stddev: 4},         // CountCALL
		{mean: 0, stddev: 2},         // CountDELEGATECALL
		{mean: 0, stddev: 2},         // CountSTATICCALL
		{mean: 0, stddev: 1},         // CountCREATE
		{mean: 0, stddev: 0.5},       // CountSELFDESTRUCT
		{mean: 1, stddev: 3},         // CountLOG
		{mean: 0, stddev: 1},         // CountREVERT
		{mean: 0, stddev: 2},         // ReentrancyDepth
		{mean: 0, stddev: 1e18},      // EthTransferred (wei, as float64)
		{mean: 0.3, stddev: 0.3},     // GasRatio
		{mean: 3.5, stddev: 1.5},     // CalldataEntropy
	}}
}

// Predict averages the per-feature z-score magnitude and maps it
// through a sigmoid to land in [0,1].
func (m *DefaultAnomalyModel) Predict(f FeatureVector) float64 {
	values := featureValues(f)
	var sum float64
	for i, v := range values {
		b := m.baselines[i]
		if b.stddev == 0 {
			continue
		}
		z := math.Abs((v - b.mean) / b.stddev)
		sum += z
	}
	avg := sum / float64(len(values))
	return sigmoid(avg - 1.5) // shift so "near baseline" sits well below 0.5
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func featureValues(f FeatureVector) [16]float64 {
	eth := 0.0
	if f.EthTransferred != nil {
		eth, _ = new(big.Float).SetInt(f.EthTransferred.ToBig()).Float64()
	}
	return [16]float64{
		float64(f.TotalSteps),
		float64(f.UniqueAddresses),
		float64(f.MaxCallDepth),
		float64(f.CountSSTORE),
		float64(f.CountSLOAD),
		float64(f.CountCALL),
		float64(f.CountDELEGATECALL),
		float64(f.CountSTATICCALL),
		float64(f.CountCREATE),
		float64(f.CountSELFDESTRUCT),
		float64(f.CountLOG),
		float64(f.CountREVERT),
		float64(f.ReentrancyDepth),
		eth,
		f.GasRatio,
		f.CalldataEntropy,
	}
}

// ExtractFeatureVector summarizes a replayed step sequence into the
// 16-field FeatureVector AnomalyDetector feeds to the model (§3.1).
func ExtractFeatureVector(steps []StepRecord, gasUsed, gasLimit uint64, calldata []byte) FeatureVector {
	fv := FeatureVector{EthTransferred: new(uint256.Int)}
	addrs := make(map[string]struct{})
	var maxDepth uint32
	var entryDepth = make(map[string]int)
	var reentrancyDepth uint32

	for _, s := range steps {
		fv.TotalSteps++
		addrs[s.CodeAddress.Hex()] = struct{}{}
		if uint32(s.Depth) > maxDepth {
			maxDepth = uint32(s.Depth)
		}
		switch s.Opcode {
		case opSSTORE:
			fv.CountSSTORE++
		case opSLOAD:
			fv.CountSLOAD++
		case opCALL, opCALLCODE:
			fv.CountCALL++
		case opDELEGATECALL:
			fv.CountDELEGATECALL++
		case opSTATICCALL:
			fv.CountSTATICCALL++
		case opCREATE, opCREATE2:
			fv.CountCREATE++
		case opSELFDESTRUCT:
			fv.CountSELFDESTRUCT++
		case opREVERT:
			fv.CountREVERT++
		}
		if isLog(s.Opcode) {
			fv.CountLOG++
		}
		if isCall(s.Opcode) {
			key := s.CodeAddress.Hex()
			if d, seen := entryDepth[key]; seen && s.Depth > d {
				depth := uint32(s.Depth - d)
				if depth > reentrancyDepth {
					reentrancyDepth = depth
				}
			} else {
				entryDepth[key] = s.Depth
			}
			if s.CallValue != nil {
				fv.EthTransferred.Add(fv.EthTransferred, s.CallValue)
			}
		}
	}
	fv.UniqueAddresses = uint32(len(addrs))
	fv.MaxCallDepth = maxDepth
	fv.ReentrancyDepth = reentrancyDepth
	if gasLimit > 0 {
		fv.GasRatio = float64(gasUsed) / float64(gasLimit)
	}
	fv.CalldataEntropy = calldataEntropy(calldata)
	return fv
}

// calldataEntropy computes Shannon entropy (bits/byte) of calldata, a
// cheap signal for obfuscated/packed exploit payloads.
func calldataEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	var entropy float64
	n := float64(len(data))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
