package sentinel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	name  string
	delay time.Duration
	err   error

	mu  sync.Mutex
	got int
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(ctx context.Context, alert *SentinelAlert) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.got++
	s.mu.Unlock()
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got
}

func TestAlertDispatcherFansOutToAllSinks(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	d := NewAlertDispatcher([]AlertSink{a, b}, time.Second, nil)

	err := d.OnAlert(context.Background(), testAlert(common.HexToHash("0x10"), PatternReentrancy))
	require.NoError(t, err)
	require.Equal(t, 1, a.count())
	require.Equal(t, 1, b.count())
}

func TestAlertDispatcherOneSlowSinkDoesNotBlockOthers(t *testing.T) {
	slow := &fakeSink{name: "slow", delay: 200 * time.Millisecond}
	fast := &fakeSink{name: "fast"}
	d := NewAlertDispatcher([]AlertSink{slow, fast}, 10*time.Millisecond, nil)

	start := time.Now()
	_ = d.OnAlert(context.Background(), testAlert(common.HexToHash("0x11"), PatternReentrancy))
	elapsed := time.Since(start)

	require.Equal(t, 1, fast.count(), "fast sink must still have been reached")
	require.Less(t, elapsed, 190*time.Millisecond, "dispatcher must not wait out the slow sink's full delay beyond its timeout")
}

func TestAlertDispatcherPropagatesSinkError(t *testing.T) {
	failing := &fakeSink{name: "failing", err: errors.New("boom")}
	d := NewAlertDispatcher([]AlertSink{failing}, time.Second, nil)

	err := d.OnAlert(context.Background(), testAlert(common.HexToHash("0x12"), PatternReentrancy))
	require.Error(t, err)
}
