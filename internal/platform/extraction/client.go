// Package extraction wraps the external service that turns raw source text
// (faxed documents, call transcripts, scanned intake forms) into structured
// clinical entries.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrExtractionFailed is returned when the extraction service cannot be
// reached or keeps erroring after retries. The source should be marked for
// reprocessing; charts are never touched on this path.
var ErrExtractionFailed = errors.New("extraction service failed")

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &Client{http: http, logger: logger}
}

type extractRequest struct {
	Text string `json:"text"`
}

// Extract posts source text to the extraction service and decodes the
// structured bundle into out. Retries with backoff are handled by the HTTP
// client; a call that still fails maps to ErrExtractionFailed.
func (c *Client) Extract(ctx context.Context, text string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(extractRequest{Text: text}).
		SetResult(out).
		Post("/extract")
	if err != nil {
		c.logger.Error().Err(err).Msg("extraction call failed")
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if resp.IsError() {
		c.logger.Error().Int("status", resp.StatusCode()).Msg("extraction returned error status")
		return fmt.Errorf("%w: status %d", ErrExtractionFailed, resp.StatusCode())
	}
	return nil
}
