package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultResolvesCleanly(t *testing.T) {
	_, err := Resolve(Default())
	require.NoError(t, err)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.toml")
	body := `
[prefilter]
suspicion_threshold = 0.7

[analysis]
max_steps = 5000
min_confidence = 0.25
pattern_weight = 0.5
anomaly_weight = 0.2
prefilter_weight = 0.2
fund_flow_weight = 0.1
per_step_timeout_ms = 50
total_pipeline_ms = 500
max_analysis_lag_blocks = 256

[auto_pause]
enabled = true
confidence_threshold = 0.9
priority_threshold = "critical"
auto_resume_secs = 120
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.InDelta(t, 0.7, f.Prefilter.SuspicionThreshold, 0.0001)
	require.Equal(t, uint32(5000), f.Analysis.MaxSteps)

	resolved, err := Resolve(f)
	require.NoError(t, err)
	require.Equal(t, uint64(120), resolved.AutoPause.AutoResumeSecs)
}

func TestResolveRejectsBadWeightSum(t *testing.T) {
	f := Default()
	f.Analysis.PatternWeight = 0.9 // weights no longer sum to 1.0
	_, err := Resolve(f)
	require.Error(t, err)
}

func TestResolveRejectsMalformedWeiAmount(t *testing.T) {
	f := Default()
	f.Prefilter.MinValueWei = "not-a-number"
	_, err := Resolve(f)
	require.Error(t, err)
}
