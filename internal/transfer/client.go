// Package transfer is the client for the transfer gateway, the service that moves native
// coins and CIS-2 tokens on chain on behalf of the marketplace.
//
// Every call submits one batch of legs. The gateway executes a batch all-or-nothing and
// deduplicates batches by reference, so a retried call with the same reference never moves
// funds twice. Responses use a {success, message, failed_leg} envelope.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"marketplace/internal/market"
	"marketplace/internal/money"
)

var DefaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

type Option func(*Client)

func WithAPIKey(key string) Option         { return func(c *Client) { c.APIKey = key } }
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.HTTP = h } }
func WithUserAgent(ua string) Option       { return func(c *Client) { c.UserAgent = ua } }
func WithLogger(l zerolog.Logger) Option   { return func(c *Client) { c.Logger = l } }

type Client struct {
	BaseURL   *url.URL
	HTTP      *http.Client
	APIKey    string
	UserAgent string
	Logger    zerolog.Logger
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{
		BaseURL:   u,
		HTTP:      DefaultHTTPClient,
		UserAgent: "marketplace-transfer/1.0",
		Logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Leg moves Amount from one address to another. TokenID is set for CIS-2 batches only.
type Leg struct {
	From    market.Owner `json:"from"`
	To      market.Owner `json:"to"`
	Amount  money.Amount `json:"amount"`
	TokenID string       `json:"token_id,omitempty"`
}

type batchRequest struct {
	Reference string             `json:"reference"`
	Contract  market.ContractRef `json:"contract,omitempty"`
	Transfers []Leg              `json:"transfers"`
}

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	FailedLeg *int   `json:"failed_leg"`
}

// LegError reports that the gateway rejected the batch because of the leg at Index.
type LegError struct {
	Index   int
	Message string
}

func (e *LegError) Error() string {
	return fmt.Sprintf("transfer leg %d failed: %s", e.Index, e.Message)
}

// RejectedError reports a batch the gateway refused without naming a leg.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "transfer batch rejected: " + e.Message
}

// FailedLeg returns the index of the leg that caused err, if any.
func FailedLeg(err error) (int, bool) {
	var legErr *LegError
	if errors.As(err, &legErr) {
		return legErr.Index, true
	}
	return 0, false
}

func (c *Client) TransferNative(ctx context.Context, reference string, legs []Leg) error {
	return c.do(ctx, "/v1/transfers/native", reference, batchRequest{Reference: reference, Transfers: legs})
}

func (c *Client) TransferCis2(ctx context.Context, reference string, contract market.ContractRef, legs []Leg) error {
	return c.do(ctx, "/v1/transfers/cis2", reference, batchRequest{Reference: reference, Contract: contract, Transfers: legs})
}

func (c *Client) do(ctx context.Context, p, reference string, body batchRequest) error {
	if len(body.Transfers) == 0 {
		return nil
	}
	u := *c.BaseURL
	u.Path = path.Join(u.Path, p)

	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", reference)
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	c.Logger.Info().
		Str("url", u.String()).
		Str("reference", reference).
		Int("legs", len(body.Transfers)).
		Int("status", resp.StatusCode).
		Str("duration", time.Since(start).String()).
		RawJSON("response", truncateJSON(b, 2048)).
		Msg("transfer gateway response")

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("http error %d: %s", resp.StatusCode, string(truncateJSON(b, 256)))
		}
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Success && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if env.FailedLeg != nil {
		return &LegError{Index: *env.FailedLeg, Message: env.Message}
	}
	if env.Message == "" {
		env.Message = http.StatusText(resp.StatusCode)
	}
	return &RejectedError{Message: env.Message}
}

func truncateJSON(b []byte, max int) []byte {
	if len(b) > max {
		return b[:max]
	}
	return b
}
