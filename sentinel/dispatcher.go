package sentinel

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// AlertSink is a single delivery surface for a finished alert (log line,
// JSONL file, webhook, websocket broadcast). AlertDispatcher fans an
// alert out to every configured sink concurrently (§5.3).
type AlertSink interface {
	Name() string
	Send(ctx context.Context, alert *SentinelAlert) error
}

// AlertDispatcher is the terminal AlertHandler: it fans an alert out to
// every configured AlertSink in parallel using errgroup, bounding each
// sink to PerSinkTimeout so one slow webhook cannot stall the others
// (§5.3).
type AlertDispatcher struct {
	sinks         []AlertSink
	perSinkTimeout time.Duration
	metrics       *Metrics
}

// NewAlertDispatcher builds a dispatcher over the given sinks.
func NewAlertDispatcher(sinks []AlertSink, perSinkTimeout time.Duration, metrics *Metrics) *AlertDispatcher {
	return &AlertDispatcher{sinks: sinks, perSinkTimeout: perSinkTimeout, metrics: metrics}
}

func (d *AlertDispatcher) OnAlert(ctx context.Context, alert *SentinelAlert) error {
	if d.metrics != nil {
		d.metrics.RecordAlert(alert.AlertLevel)
	}
	// A plain errgroup.Group (no WithContext) runs every sink to
	// completion regardless of another sink's error: WithContext's
	// derived context cancels on first error, which would abort every
	// other in-flight sink and contradict the "other sinks proceed"
	// guarantee of §7.
	var g errgroup.Group
	for _, sink := range d.sinks {
		sink := sink
		g.Go(func() error {
			sctx := ctx
			var cancel context.CancelFunc
			if d.perSinkTimeout > 0 {
				sctx, cancel = context.WithTimeout(ctx, d.perSinkTimeout)
				defer cancel()
			}
			if err := sink.Send(sctx, alert); err != nil {
				return sinkErr(ErrDispatchFailure, sink.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
