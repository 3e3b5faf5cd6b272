package sentinel

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	alerts []*SentinelAlert
}

func (h *recordingHandler) OnAlert(ctx context.Context, alert *SentinelAlert) error {
	h.alerts = append(h.alerts, alert)
	return nil
}

func testAlert(txHash common.Hash, pattern DetectedPatternKind) *SentinelAlert {
	return &SentinelAlert{
		TxHash:           txHash,
		SuspicionScore:   0.9,
		AlertLevel:       LevelCritical,
		DetectedPatterns: []DetectedPattern{{Kind: pattern, Confidence: 0.9}},
	}
}

func TestAlertDeduplicatorSuppressesWithinWindow(t *testing.T) {
	rec := &recordingHandler{}
	dedup := NewAlertDeduplicator(rec, 100*time.Millisecond, nil)

	tx := common.HexToHash("0x01")
	require.NoError(t, dedup.OnAlert(context.Background(), testAlert(tx, PatternReentrancy)))
	require.NoError(t, dedup.OnAlert(context.Background(), testAlert(tx, PatternReentrancy)))
	require.Len(t, rec.alerts, 1, "second alert within the window must be suppressed")
}

func TestAlertDeduplicatorAllowsAfterWindow(t *testing.T) {
	rec := &recordingHandler{}
	dedup := NewAlertDeduplicator(rec, 10*time.Millisecond, nil)

	tx := common.HexToHash("0x02")
	require.NoError(t, dedup.OnAlert(context.Background(), testAlert(tx, PatternReentrancy)))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, dedup.OnAlert(context.Background(), testAlert(tx, PatternReentrancy)))
	require.Len(t, rec.alerts, 2)
}

func TestAlertDeduplicatorDistinctPatternsNotSuppressed(t *testing.T) {
	rec := &recordingHandler{}
	dedup := NewAlertDeduplicator(rec, time.Minute, nil)

	tx := common.HexToHash("0x03")
	require.NoError(t, dedup.OnAlert(context.Background(), testAlert(tx, PatternReentrancy)))
	require.NoError(t, dedup.OnAlert(context.Background(), testAlert(tx, PatternFlashLoanETH)))
	require.Len(t, rec.alerts, 2)
}

func TestAlertRateLimiterDropsExcess(t *testing.T) {
	rec := &recordingHandler{}
	limiter := NewAlertRateLimiter(rec, 1000, 1, nil) // burst of exactly 1

	tx := common.HexToHash("0x04")
	require.NoError(t, limiter.OnAlert(context.Background(), testAlert(tx, PatternReentrancy)))
	err := limiter.OnAlert(context.Background(), testAlert(tx, PatternReentrancy))
	require.Error(t, err, "second immediate alert must exceed the single-token burst")
}

func TestAutoPauseHandlerEngagesOnCriticalThreshold(t *testing.T) {
	rec := &recordingHandler{}
	pause := NewPauseController(0)
	h := NewAutoPauseHandler(rec, pause, 0.8, PriorityCritical)

	tx := common.HexToHash("0x05")
	alert := testAlert(tx, PatternReentrancy)
	alert.SuspicionScore = 0.9

	require.NoError(t, h.OnAlert(context.Background(), alert))
	require.True(t, pause.IsPaused())
	require.Len(t, rec.alerts, 1, "alert must still reach the wrapped handler")
}

func TestAutoPauseHandlerIgnoresBelowThreshold(t *testing.T) {
	rec := &recordingHandler{}
	pause := NewPauseController(0)
	h := NewAutoPauseHandler(rec, pause, 0.8, PriorityCritical)

	tx := common.HexToHash("0x06")
	alert := testAlert(tx, PatternReentrancy)
	alert.SuspicionScore = 0.5

	require.NoError(t, h.OnAlert(context.Background(), alert))
	require.False(t, pause.IsPaused())
}
