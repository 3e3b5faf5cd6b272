package sentinel

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func noopHandler() AlertHandler {
	return AlertHandlerFunc(func(ctx context.Context, alert *SentinelAlert) error { return nil })
}

func TestSentinelServiceStartStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewSentinelService(nil, nil, nil, nil, noopHandler(), nil, nil, DefaultAnalysisConfig())
	svc.Start()
	svc.Stop()
}

func TestSentinelServiceTrySendDropsOldestUnderBackPressure(t *testing.T) {
	defer goleak.VerifyNone(t)

	metrics := NewMetrics()
	svc := NewSentinelService(nil, nil, nil, nil, noopHandler(), nil, metrics, DefaultAnalysisConfig())

	// Fill the channel without a worker draining it, then push one more
	// to force a drop-oldest eviction (§5.4).
	for i := 0; i < channelCapacity; i++ {
		svc.trySend(workMsg{})
	}
	svc.trySend(workMsg{})

	if got := metrics.DroppedBlocks.Snapshot().Count(); got < 1 {
		t.Fatalf("expected at least one dropped_blocks increment, got %d", got)
	}

	// Drain so Stop's Shutdown send can land.
	for i := 0; i < channelCapacity; i++ {
		select {
		case <-svc.ch:
		default:
		}
	}
	svc.Start()
	svc.Stop()
	_ = time.Millisecond
}
