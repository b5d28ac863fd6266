// Package webhook delivers signed event notifications over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/webopt/internal/id"
)

const (
	HeaderSignature = "X-Webopt-Signature"
	HeaderTimestamp = "X-Webopt-Timestamp"
	HeaderEvent     = "X-Webopt-Event"
	HeaderDelivery  = "X-Webopt-Delivery"

	EventBatchCompleted = "batch.completed"

	userAgent = "webopt-webhook/1"
)

// Envelope is the JSON body of every delivery.
type Envelope struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	CreatedAt time.Time `json:"created_at"`
	Data      any       `json:"data"`
}

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *zap.Logger
}

type Client struct {
	httpClient     *http.Client
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewClient(cfg Config) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         cfg.Logger,
		now:            time.Now,
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = 10 * time.Second
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = time.Second
	}
	c.maxBackoff = max(c.maxBackoff, c.initialBackoff)
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("webhook")
	return c
}

// permanentError marks a response that retrying cannot fix.
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Send posts data wrapped in an Envelope to endpoint. An empty endpoint is a
// no-op. Network failures, 408, 429 and 5xx responses are retried with
// exponential backoff; other 4xx responses end delivery at once.
func (c *Client) Send(ctx context.Context, endpoint, event string, data any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	envelope := Envelope{ID: id.New(), Event: event, CreatedAt: c.now().UTC(), Data: data}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(envelope.CreatedAt.Unix(), 10)
	signature := Sign(c.signingSecret, timestamp, body)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		wait, err := c.attempt(ctx, endpoint, envelope, timestamp, signature, body)
		if err == nil {
			c.logger.Debug("delivered",
				zap.String("delivery_id", envelope.ID),
				zap.String("event", event),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		lastErr = err
		var permanent permanentError
		if errors.As(err, &permanent) || ctx.Err() != nil {
			break
		}
		if attempt == c.maxAttempts {
			break
		}

		if wait <= 0 {
			wait = backoff
		}
		wait = min(wait, c.maxBackoff)
		c.logger.Debug("delivery failed, retrying",
			zap.String("delivery_id", envelope.ID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("webhook delivery %s failed after %d attempts: %w", envelope.ID, c.maxAttempts, lastErr)
}

// attempt performs one POST. The returned duration is the server's
// Retry-After hint, zero when absent.
func (c *Client) attempt(ctx context.Context, endpoint string, envelope Envelope, timestamp, signature string, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, permanentError{fmt.Errorf("build webhook request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, envelope.Event)
	req.Header.Set(HeaderDelivery, envelope.ID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return 0, nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("webhook returned status=%d", resp.StatusCode)
	default:
		return 0, permanentError{fmt.Errorf("webhook rejected delivery with status=%d", resp.StatusCode)}
	}
}

// retryAfter understands the delay-seconds form only.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Sign computes the signature header value for a delivery.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
