// Package hub applies destination tags to builds in the build system.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tagmill/tagmill/internal/domain/tagging"
)

// retryBaseDelay is the backoff unit between tag attempts.
const retryBaseDelay = 250 * time.Millisecond

// tagRequest is the wire shape of a tag application call.
type tagRequest struct {
	Tag string `json:"tag"`
	NVR string `json:"nvr"`
}

// Client applies tags through the build-system hub's HTTP API.
type Client struct {
	url        string
	token      string
	retries    int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a hub client. retries is how many times a failed
// call is retried after the first attempt.
func NewClient(url, token string, timeout time.Duration, retries int, logger *slog.Logger) *Client {
	return &Client{
		url:        strings.TrimRight(url, "/"),
		token:      token,
		retries:    retries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Tag moves the build identified by nvr into the destination tag.
// Server errors and transport failures are retried with linear backoff;
// client errors (4xx) are not, since repeating them cannot succeed.
func (c *Client) Tag(ctx context.Context, destination, nvr string) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying tag call",
				"tag", destination, "nvr", nvr, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(time.Duration(attempt) * retryBaseDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := c.tagOnce(ctx, destination, nvr)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("tag %s -> %s: %w", nvr, destination, lastErr)
}

func (c *Client) tagOnce(ctx context.Context, destination, nvr string) (retryable bool, err error) {
	body, err := json.Marshal(tagRequest{Tag: destination, NVR: nvr})
	if err != nil {
		return false, fmt.Errorf("encode tag request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/tag", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build tag request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("call hub: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("hub returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("hub rejected tag request: status %d", resp.StatusCode)
	}
}

// Compile-time interface verification.
var _ tagging.Tagger = (*Client)(nil)
