package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
)

const userAgent = "ImportFlow-Webhook-Delivery/1.0"

// ErrWebhookDisabled is returned when delivery targets a disabled
// registration; no outbound attempt is made.
var ErrWebhookDisabled = errors.New("webhook is disabled")

// DeliveryResult is the terminal outcome of a delivery, including how
// many attempts were spent on it.
type DeliveryResult struct {
	WebhookID    int64    `json:"webhook_id"`
	Status       string   `json:"status"`
	ResponseCode *int     `json:"response_code,omitempty"`
	ResponseTime *float64 `json:"response_time,omitempty"`
	Attempts     int      `json:"attempts"`
	Error        string   `json:"error,omitempty"`
}

// Engine delivers event payloads to webhook registrations with bounded
// exponential-backoff retry.
type Engine struct {
	webhooks       repository.WebhookRepository
	client         *http.Client
	deliverTimeout time.Duration
	testTimeout    time.Duration
	maxRetries     int
	backoffBase    time.Duration

	// sleep is swappable so retry pacing is testable.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a delivery engine.
func NewEngine(webhooks repository.WebhookRepository, deliverTimeout, testTimeout time.Duration, maxRetries int, backoffBase time.Duration) *Engine {
	if deliverTimeout <= 0 {
		deliverTimeout = 30 * time.Second
	}
	if testTimeout <= 0 {
		testTimeout = 10 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoffBase <= 0 {
		backoffBase = 60 * time.Second
	}
	return &Engine{
		webhooks:       webhooks,
		client:         &http.Client{},
		deliverTimeout: deliverTimeout,
		testTimeout:    testTimeout,
		maxRetries:     maxRetries,
		backoffBase:    backoffBase,
		sleep:          sleepContext,
	}
}

// NextDelay is the pure backoff schedule: base doubled per attempt.
func (e *Engine) NextDelay(attempt int) time.Duration {
	return e.backoffBase << attempt
}

// Deliver sends the payload to the registration, retrying transient
// failures until the attempt budget is spent. The terminal outcome is
// always reported through the result; the error return is reserved for
// misuse (unknown or disabled registration, cancelled context).
func (e *Engine) Deliver(ctx context.Context, webhookID int64, payload map[string]any) (DeliveryResult, error) {
	webhook, err := e.webhooks.GetByID(ctx, webhookID)
	if err != nil {
		return DeliveryResult{WebhookID: webhookID}, fmt.Errorf("webhook not found: %w", err)
	}
	if !webhook.Enabled {
		return DeliveryResult{WebhookID: webhookID, Status: domain.DeliveryStatusError, Error: "webhook is disabled"},
			ErrWebhookDisabled
	}

	var result DeliveryResult
	for attempt := 0; ; attempt++ {
		outcome := e.attempt(ctx, webhook, payload, e.deliverTimeout)
		e.record(ctx, webhookID, outcome)

		result = outcome.result
		result.WebhookID = webhookID
		result.Attempts = attempt + 1

		if !outcome.retryable || attempt+1 >= e.maxRetries {
			return result, nil
		}

		delay := e.NextDelay(attempt)
		log.Printf("[WEBHOOK] delivery to %d failed (%s), retrying in %s", webhookID, result.Status, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return result, err
		}
	}
}

// Test fires a single ad-hoc connectivity check with the shorter timeout
// and no retry.
func (e *Engine) Test(ctx context.Context, webhookID int64, payload map[string]any) (DeliveryResult, error) {
	webhook, err := e.webhooks.GetByID(ctx, webhookID)
	if err != nil {
		return DeliveryResult{WebhookID: webhookID}, fmt.Errorf("webhook not found: %w", err)
	}

	outcome := e.attempt(ctx, webhook, payload, e.testTimeout)
	e.record(ctx, webhookID, outcome)

	result := outcome.result
	result.WebhookID = webhookID
	result.Attempts = 1
	return result, nil
}

type attemptOutcome struct {
	result    DeliveryResult
	retryable bool
}

// attempt performs one HTTP POST and classifies its outcome:
// 2xx-3xx SUCCESS, 5xx retryable FAILED, other responses terminal
// FAILED, timeouts TIMEOUT (retryable), everything else ERROR
// (retryable).
func (e *Engine) attempt(ctx context.Context, webhook domain.Webhook, payload map[string]any, timeout time.Duration) attemptOutcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return attemptOutcome{result: DeliveryResult{Status: domain.DeliveryStatusError, Error: err.Error()}}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return attemptOutcome{result: DeliveryResult{Status: domain.DeliveryStatusError, Error: err.Error()}}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := e.client.Do(req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return attemptOutcome{
				result:    DeliveryResult{Status: domain.DeliveryStatusTimeout, Error: "request timeout"},
				retryable: true,
			}
		}
		return attemptOutcome{
			result:    DeliveryResult{Status: domain.DeliveryStatusError, Error: err.Error()},
			retryable: true,
		}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	status := domain.DeliveryStatusSuccess
	if code >= http.StatusBadRequest {
		status = domain.DeliveryStatusFailed
	}

	return attemptOutcome{
		result: DeliveryResult{
			Status:       status,
			ResponseCode: &code,
			ResponseTime: &elapsed,
		},
		retryable: code >= http.StatusInternalServerError,
	}
}

// record persists the attempt outcome on the registration before the
// result is returned or retried.
func (e *Engine) record(ctx context.Context, webhookID int64, outcome attemptOutcome) {
	err := e.webhooks.RecordDeliveryResult(ctx, webhookID, domain.DeliveryRecord{
		Status:       outcome.result.Status,
		ResponseCode: outcome.result.ResponseCode,
		ResponseTime: outcome.result.ResponseTime,
	})
	if err != nil {
		log.Printf("[WEBHOOK] failed to record delivery result for %d: %v", webhookID, err)
	}
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
