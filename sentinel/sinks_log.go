package sentinel

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
)

// LogSink writes structured key/value alert events through go-ethereum's
// own logger (§6.2: target="sentinel", level warn/error by priority).
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, alert *SentinelAlert) error {
	fields := []interface{}{
		"target", "sentinel",
		"txHash", alert.TxHash,
		"block", alert.BlockNumber,
		"score", alert.SuspicionScore,
		"summary", alert.Summary,
	}
	if alert.AlertLevel == LevelCritical {
		log.Error("sentinel alert", fields...)
	} else {
		log.Warn("sentinel alert", fields...)
	}
	return nil
}
