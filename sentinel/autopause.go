package sentinel

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
)

// AutoPauseHandler is the §4.13 AlertHandler wrapper: when an alert
// meets both the confidence and priority thresholds it engages the
// shared PauseController and logs the decision with the triggering
// alert's identifiers. It always forwards the alert to next afterward
// so pause and delivery are independent concerns.
type AutoPauseHandler struct {
	next               AlertHandler
	controller         *PauseController
	confidenceThreshold float64
	priorityThreshold  AlertPriority
}

// NewAutoPauseHandler builds the wrapper with the §4.13 defaults
// (confidence 0.8, priority Critical) unless overridden.
func NewAutoPauseHandler(next AlertHandler, controller *PauseController, confidenceThreshold float64, priorityThreshold AlertPriority) *AutoPauseHandler {
	return &AutoPauseHandler{
		next:                next,
		controller:          controller,
		confidenceThreshold: confidenceThreshold,
		priorityThreshold:   priorityThreshold,
	}
}

func (h *AutoPauseHandler) OnAlert(ctx context.Context, alert *SentinelAlert) error {
	if alert.SuspicionScore >= h.confidenceThreshold && PriorityForScore(alert.SuspicionScore) >= h.priorityThreshold {
		h.controller.Pause()
		log.Warn("sentinel auto-pause engaged", "txHash", alert.TxHash, "block", alert.BlockNumber,
			"score", alert.SuspicionScore, "level", alert.AlertLevel)
	}
	if h.next == nil {
		return nil
	}
	return h.next.OnAlert(ctx, alert)
}
