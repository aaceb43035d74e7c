package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tsnetmon/internal/shared"
)

// ErrUnauthorized means the collector rejected our credential. Retrying
// with the same key cannot succeed, so the submission aborts immediately.
var ErrUnauthorized = errors.New("collector rejected api key")

// ErrConflict means the tailscale IP is already registered. The caller
// should reuse its existing credentials instead of re-registering.
var ErrConflict = errors.New("tailscale ip already registered")

// Client delivers snapshots to the collector over HTTP.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	// Backoff is the per-attempt wait table, clamped to its last entry.
	Backoff  []time.Duration
	Attempts int
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: timeout},
		Backoff:  shared.RetryBackoff,
		Attempts: 5,
	}
}

// Register is a one-shot operation, not retried: a conflict needs a human
// decision and anything else gets retried naturally on the next start.
// On success the returned key is adopted for all subsequent traffic.
func (c *Client) Register(ctx context.Context, req shared.RegisterRequest) (*shared.RegisterResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+shared.APIPrefix+"/register", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%w (ip %s)", ErrConflict, req.TailscaleIP)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("register failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var rr shared.RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, err
	}

	c.APIKey = rr.APIKey
	return &rr, nil
}

// Submit delivers one snapshot, retrying transient failures per the backoff
// table. An authentication rejection is fatal and aborts remaining
// attempts. Submit never panics past this boundary.
func (c *Client) Submit(ctx context.Context, sub shared.MetricSubmission) error {
	var lastErr error

	for attempt := 0; attempt < c.Attempts; attempt++ {
		if attempt > 0 {
			wait := c.Backoff[min(attempt-1, len(c.Backoff)-1)]
			log.Debug().Dur("wait", wait).Int("attempt", attempt+1).Msg("retrying submission")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.postMetrics(ctx, sub)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrUnauthorized) {
			return lastErr
		}
		log.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("submission failed")
	}

	return fmt.Errorf("submit failed after %d attempts: %w", c.Attempts, lastErr)
}

func (c *Client) postMetrics(ctx context.Context, sub shared.MetricSubmission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+shared.APIPrefix+"/metrics", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("metrics rejected: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return nil
}

// Health probes the collector's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+shared.APIPrefix+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector unhealthy: %s", resp.Status)
	}
	return nil
}
