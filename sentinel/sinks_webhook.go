package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// WebhookSink POSTs the alert as JSON to a configured URL: one immediate
// attempt, then up to three retries after exponential backoff delays of
// 100ms -> 400ms -> 1.6s (§4.11). The final failure is logged and
// returned to the dispatcher; a cancelled context (such as the
// dispatcher's per-sink timeout) ends the retries early.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	backoff    []time.Duration
}

// NewWebhookSink builds a sink posting to url with the default backoff
// schedule.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSink{
		url:        url,
		httpClient: client,
		backoff:    []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, alert *SentinelAlert) error {
	body, err := json.Marshal(webhookPayload(alert))
	if err != nil {
		return newErr(ErrSerializationFailure, err)
	}

	var lastErr error
	for attempt, delay := range append([]time.Duration{0}, s.backoff...) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = s.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		log.Debug("sentinel webhook attempt failed", "attempt", attempt, "err", lastErr)
	}
	log.Error("sentinel webhook delivery failed after retries", "url", s.url, "err", lastErr)
	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func webhookPayload(alert *SentinelAlert) map[string]interface{} {
	patterns := make([]string, 0, len(alert.DetectedPatterns))
	for _, p := range alert.DetectedPatterns {
		patterns = append(patterns, p.Kind.String())
	}
	return map[string]interface{}{
		"id":               alert.ID.String(),
		"blockNumber":      alert.BlockNumber,
		"txHash":           alert.TxHash.Hex(),
		"alertLevel":       alert.AlertLevel.String(),
		"suspicionScore":   alert.SuspicionScore,
		"detectedPatterns": patterns,
		"summary":          alert.Summary,
	}
}
