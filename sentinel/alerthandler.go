package sentinel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AlertHandler is the sink-facing capability boundary (§5): anything
// that can receive a finished SentinelAlert and decide what to do with
// it. AutoPauseHandler, AlertRateLimiter, AlertDeduplicator and
// AlertDispatcher all implement it, and compose by wrapping one
// another.
type AlertHandler interface {
	OnAlert(ctx context.Context, alert *SentinelAlert) error
}

// AlertHandlerFunc adapts a function to AlertHandler.
type AlertHandlerFunc func(ctx context.Context, alert *SentinelAlert) error

func (f AlertHandlerFunc) OnAlert(ctx context.Context, alert *SentinelAlert) error { return f(ctx, alert) }

// AlertRateLimiter wraps an AlertHandler with a token-bucket limit per
// §5.2, dropping alerts that exceed the configured rate rather than
// blocking the worker loop.
type AlertRateLimiter struct {
	next    AlertHandler
	limiter *rate.Limiter
	metrics *Metrics
}

// NewAlertRateLimiter builds a limiter allowing burst immediate alerts
// and refilling at ratePerSec tokens/second.
func NewAlertRateLimiter(next AlertHandler, ratePerSec float64, burst int, metrics *Metrics) *AlertRateLimiter {
	return &AlertRateLimiter{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		metrics: metrics,
	}
}

func (r *AlertRateLimiter) OnAlert(ctx context.Context, alert *SentinelAlert) error {
	if !r.limiter.Allow() {
		if r.metrics != nil {
			r.metrics.DroppedBlocks.Inc(1)
		}
		return newErr(ErrSinkUnavailable, errRateLimited)
	}
	return r.next.OnAlert(ctx, alert)
}

var errRateLimited = simpleErr("alert dropped: rate limit exceeded")

// dedupeKey identifies alerts considered "the same" within the
// deduplication window (§4.11): same primary pattern against the same
// target contract, regardless of which transaction triggered it — the
// realistic shape of an ongoing drain is a run of distinct transactions
// against one contract, not repeats of a single transaction.
type dedupeKey struct {
	contract [20]byte
	pattern  DetectedPatternKind
}

// AlertDeduplicator suppresses repeated alerts for the same
// (target contract, pattern) pair within a configured window, using an in-memory map
// guarded by a mutex for the common case; DedupeStore backs it with
// pebble when durability across restarts is required.
type AlertDeduplicator struct {
	next   AlertHandler
	window time.Duration
	store  *DedupeStore // optional durable backing; nil uses the in-memory map only

	mu   sync.Mutex
	seen map[dedupeKey]time.Time
}

// NewAlertDeduplicator builds a deduplicator with the given suppression
// window. store may be nil for an in-memory-only deduplicator.
func NewAlertDeduplicator(next AlertHandler, window time.Duration, store *DedupeStore) *AlertDeduplicator {
	return &AlertDeduplicator{
		next:   next,
		window: window,
		store:  store,
		seen:   make(map[dedupeKey]time.Time),
	}
}

func (d *AlertDeduplicator) OnAlert(ctx context.Context, alert *SentinelAlert) error {
	pattern, _ := alert.PrimaryPatternKind()
	key := dedupeKey{contract: alert.TargetContract(), pattern: pattern}

	d.mu.Lock()
	last, ok := d.seen[key]
	now := time.Now()
	dup := ok && now.Sub(last) < d.window
	if !dup {
		d.seen[key] = now
	}
	d.mu.Unlock()

	if !dup && d.store != nil {
		storeDup, err := d.store.SeenRecently(key, d.window)
		if err == nil && storeDup {
			dup = true
		} else if err == nil {
			_ = d.store.Record(key, now)
		}
	}

	if dup {
		return nil
	}
	return d.next.OnAlert(ctx, alert)
}

// NewDefaultAlertChain assembles the §4.11 handler chain —
// AlertRateLimiter wrapping AlertDeduplicator wrapping AlertDispatcher —
// opening a durable pebble-backed DedupeStore at storePath when
// non-empty so the suppression window survives a node restart instead
// of immediately re-firing every alert still inside it. The returned
// closer releases the store and must be called on shutdown; it is a
// no-op when storePath is empty.
func NewDefaultAlertChain(sinks []AlertSink, perSinkTimeout time.Duration, ratePerSec float64, burst int, dedupeWindow time.Duration, storePath string, metrics *Metrics) (AlertHandler, func() error, error) {
	var store *DedupeStore
	closer := func() error { return nil }
	if storePath != "" {
		s, err := OpenDedupeStore(storePath)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closer = s.Close
	}

	dispatcher := NewAlertDispatcher(sinks, perSinkTimeout, metrics)
	dedup := NewAlertDeduplicator(dispatcher, dedupeWindow, store)
	limiter := NewAlertRateLimiter(dedup, ratePerSec, burst, metrics)
	return limiter, closer, nil
}

// Sweep removes expired in-memory entries, bounding map growth over a
// long-running node lifetime. Intended to be called periodically by
// SentinelService's worker loop.
func (d *AlertDeduplicator) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for k, t := range d.seen {
		if now.Sub(t) > d.window {
			delete(d.seen, k)
		}
	}
}

// CompactStore drops stale entries from the durable backing store, if
// one is configured. It is a no-op for an in-memory-only deduplicator.
func (d *AlertDeduplicator) CompactStore() error {
	if d.store == nil {
		return nil
	}
	return d.store.Compact(d.window)
}
