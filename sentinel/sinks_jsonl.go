package sentinel

import (
	"context"
	"encoding/json"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// JSONLSink appends one JSON object per line to a rotated log file using
// lumberjack, matching the teacher's own rotated-file conventions for
// durable structured output (§6.2).
type JSONLSink struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// NewJSONLSink opens (creating if absent) a rotating JSONL file at path,
// keeping maxBackups historical files of maxSizeMB each.
func NewJSONLSink(path string, maxSizeMB, maxBackups int) *JSONLSink {
	return &JSONLSink{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		},
	}
}

func (s *JSONLSink) Name() string { return "jsonl" }

// alertJSON is the wire shape written per line; it flattens the parts of
// SentinelAlert worth persisting without the transient pipeline evidence.
type alertJSON struct {
	ID               string            `json:"id"`
	BlockNumber      uint64            `json:"blockNumber"`
	TxHash           string            `json:"txHash"`
	TxIndex          int               `json:"txIndex"`
	AlertLevel       string            `json:"alertLevel"`
	SuspicionScore   float64           `json:"suspicionScore"`
	DetectedPatterns []string          `json:"detectedPatterns"`
	TotalValueAtRisk string            `json:"totalValueAtRisk"`
	Summary          string            `json:"summary"`
	Partial          bool              `json:"partial"`
}

func (s *JSONLSink) Send(ctx context.Context, alert *SentinelAlert) error {
	patterns := make([]string, 0, len(alert.DetectedPatterns))
	for _, p := range alert.DetectedPatterns {
		patterns = append(patterns, p.Kind.String())
	}
	var valueAtRisk string
	if alert.TotalValueAtRisk != nil {
		valueAtRisk = alert.TotalValueAtRisk.Dec()
	}
	rec := alertJSON{
		ID:               alert.ID.String(),
		BlockNumber:      alert.BlockNumber,
		TxHash:           alert.TxHash.Hex(),
		TxIndex:          alert.TxIndex,
		AlertLevel:       alert.AlertLevel.String(),
		SuspicionScore:   alert.SuspicionScore,
		DetectedPatterns: patterns,
		TotalValueAtRisk: valueAtRisk,
		Summary:          alert.Summary,
		Partial:          alert.Partial,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return newErr(ErrSerializationFailure, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.writer.Write(line)
	return err
}

// Close flushes and closes the underlying rotated file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
