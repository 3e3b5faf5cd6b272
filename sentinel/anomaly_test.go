package sentinel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFeatureVectorCountsOpcodes(t *testing.T) {
	steps := []StepRecord{
		{Opcode: opSSTORE},
		{Opcode: opSLOAD},
		{Opcode: opCALL},
		{Opcode: opDELEGATECALL},
		{Opcode: opCREATE},
	}
	fv := ExtractFeatureVector(steps, 50_000, 100_000, nil)
	require.EqualValues(t, 5, fv.TotalSteps)
	require.EqualValues(t, 1, fv.CountSSTORE)
	require.EqualValues(t, 1, fv.CountSLOAD)
	require.EqualValues(t, 1, fv.CountCALL)
	require.EqualValues(t, 1, fv.CountDELEGATECALL)
	require.EqualValues(t, 1, fv.CountCREATE)
	require.Equal(t, 0.5, fv.GasRatio)
}

func TestExtractFeatureVectorZeroGasLimitLeavesRatioZero(t *testing.T) {
	fv := ExtractFeatureVector(nil, 1000, 0, nil)
	require.Equal(t, 0.0, fv.GasRatio)
}

func TestExtractFeatureVectorPopulatesCalldataEntropy(t *testing.T) {
	fv := ExtractFeatureVector(nil, 0, 1, []byte("aaaaaaaaaaaaaaaa"))
	require.Equal(t, 0.0, fv.CalldataEntropy, "uniform single-byte calldata has zero entropy")

	fv2 := ExtractFeatureVector(nil, 0, 1, []byte{0x00, 0x01, 0x02, 0x03})
	require.Greater(t, fv2.CalldataEntropy, 0.0, "varied calldata bytes must produce nonzero entropy")
}

func TestCalldataEntropyEmptyIsZero(t *testing.T) {
	require.Equal(t, 0.0, calldataEntropy(nil))
}

func TestDefaultAnomalyModelNearBaselineScoresLow(t *testing.T) {
	m := NewDefaultAnomalyModel()
	fv := FeatureVector{
		TotalSteps:     500,
		UniqueAddresses: 3,
		MaxCallDepth:   2,
		CountSSTORE:    4,
		CountSLOAD:     8,
		CountCALL:      2,
		GasRatio:       0.3,
		CalldataEntropy: 3.5,
	}
	score := m.Predict(fv)
	require.Less(t, score, 0.5)
}

func TestDefaultAnomalyModelFarFromBaselineScoresHigh(t *testing.T) {
	m := NewDefaultAnomalyModel()
	fv := FeatureVector{
		TotalSteps:      1_000_000,
		UniqueAddresses: 500,
		MaxCallDepth:    200,
		CountSSTORE:     5000,
		CountSLOAD:      5000,
		CountCALL:       5000,
		CountSELFDESTRUCT: 10,
		ReentrancyDepth: 50,
		GasRatio:        1.0,
		CalldataEntropy: 8.0,
	}
	score := m.Predict(fv)
	require.Greater(t, score, 0.5)
}

func TestDefaultAnomalyModelIsDeterministic(t *testing.T) {
	m := NewDefaultAnomalyModel()
	fv := FeatureVector{TotalSteps: 700, GasRatio: 0.5}
	require.Equal(t, m.Predict(fv), m.Predict(fv))
}
