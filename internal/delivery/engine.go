package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/strivehq/hookgate/internal/config"
	"github.com/strivehq/hookgate/internal/models"
	"github.com/strivehq/hookgate/internal/signing"
)

// Result is the single final outcome of delivering one event to one
// subscription, after all retries. Transient per-attempt detail stays
// internal to the engine.
type Result struct {
	Success    bool
	StatusCode int
	Error      string
	Attempts   int
	DurationMs int64
}

type attemptOutcome struct {
	statusCode int
	errMsg     string
}

func (o attemptOutcome) success() bool {
	return o.errMsg == "" && IsSuccess(o.statusCode)
}

// Engine performs outbound webhook deliveries: one HTTP POST per attempt
// with a hard per-attempt timeout, retried up to maxAttempts times with
// exponential backoff. A timeout is a delivery failure, never an escaping
// error.
type Engine struct {
	client      *http.Client
	maxAttempts int
	backoffBase time.Duration
	log         zerolog.Logger
}

func NewEngine(cfg config.DeliveryConfig, log zerolog.Logger) *Engine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 1 * time.Second
	}
	return &Engine{
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		log:         log,
	}
}

// Deliver runs the bounded retry loop for one subscription. Attempts are
// strictly sequential; the backoff before attempt n+1 is
// backoffBase * 2^(n-1), i.e. 1s then 2s at the defaults.
func (e *Engine) Deliver(ctx context.Context, sub *models.Subscription, eventType string, payload []byte) *Result {
	start := time.Now()
	signature := signing.Sign(payload, sub.Secret)

	var last attemptOutcome
	attempts := 0
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		attempts = attempt
		last = e.attempt(ctx, sub, eventType, payload, signature)
		if last.success() {
			break
		}

		e.log.Debug().
			Str("subscription_id", sub.ID).
			Str("event_type", eventType).
			Int("attempt", attempt).
			Int("status_code", last.statusCode).
			Str("error", last.errMsg).
			Msg("delivery attempt failed")

		if attempt == e.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return &Result{
				StatusCode: last.statusCode,
				Error:      fmt.Sprintf("dispatch canceled: %v", ctx.Err()),
				Attempts:   attempts,
				DurationMs: time.Since(start).Milliseconds(),
			}
		case <-time.After(Backoff(attempt, e.backoffBase)):
		}
	}

	res := &Result{
		Success:    last.success(),
		StatusCode: last.statusCode,
		Attempts:   attempts,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if !res.Success {
		res.Error = last.errMsg
		if res.Error == "" {
			res.Error = fmt.Sprintf("endpoint returned status %d", last.statusCode)
		}
	}
	return res
}

func (e *Engine) attempt(ctx context.Context, sub *models.Subscription, eventType string, payload []byte, signature string) attemptOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return attemptOutcome{errMsg: fmt.Sprintf("building request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", eventType)
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	req.Header.Set("X-Webhook-Id", sub.ID)

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return attemptOutcome{errMsg: fmt.Sprintf("delivery timed out after %s", e.client.Timeout)}
		}
		return attemptOutcome{errMsg: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if IsSuccess(resp.StatusCode) {
		return attemptOutcome{statusCode: resp.StatusCode}
	}
	return attemptOutcome{
		statusCode: resp.StatusCode,
		errMsg:     fmt.Sprintf("endpoint returned status %d", resp.StatusCode),
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Backoff returns the delay before the attempt following attempt n.
func Backoff(attempt int, base time.Duration) time.Duration {
	return base << (attempt - 1)
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
