// Package markov is an HTTP client for the Markov chain text service.
//
// The service exposes two JSON endpoints relative to a base address:
// POST {base}/input feeds training text and POST {base}/generate returns
// generated text as the raw response body.
package markov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"markovchain/internal/util"
)

const (
	inputEndpoint    = "input"
	generateEndpoint = "generate"
)

// Service is the contract implemented by Client.
type Service interface {
	SubmitInput(ctx context.Context, payload InputPayload) error
	Generate(ctx context.Context, payload GeneratePayload) (string, error)
}

// TokenSigner issues bearer tokens for a target audience.
type TokenSigner interface {
	Sign(audience string) (string, error)
}

// Client calls the Markov chain service over HTTP.
// It is immutable after New and safe for concurrent use.
type Client struct {
	inputURL    string
	generateURL string
	httpClient  *http.Client
	logger      *slog.Logger
	signer      TokenSigner
	audience    string
	userAgent   string
	timeout     time.Duration
}

var _ Service = (*Client)(nil)

// New constructs a client for the service rooted at baseURL, which must be an
// absolute http or https URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		inputURL:    base.JoinPath(inputEndpoint).String(),
		generateURL: base.JoinPath(generateEndpoint).String(),
		httpClient:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// MustNew is like New but panics when baseURL is invalid.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("markov: base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("markov: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("markov: base url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("markov: base url %q has no host", raw)
	}
	return u, nil
}

// InputURL returns the resolved ingestion endpoint.
func (c *Client) InputURL() string { return c.inputURL }

// GenerateURL returns the resolved generation endpoint.
func (c *Client) GenerateURL() string { return c.generateURL }

// SubmitInput sends text to the service for training.
func (c *Client) SubmitInput(ctx context.Context, payload InputPayload) error {
	if err := payload.validate(); err != nil {
		return err
	}
	_, err := c.post(ctx, inputEndpoint, c.inputURL, payload)
	return err
}

// Generate requests generated text and returns the response body verbatim.
func (c *Client) Generate(ctx context.Context, payload GeneratePayload) (string, error) {
	if err := payload.validate(); err != nil {
		return "", err
	}
	return c.post(ctx, generateEndpoint, c.generateURL, payload)
}

func (c *Client) post(ctx context.Context, op, endpoint string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &SerializationError{Err: err}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, requestID := util.EnsureRequestID(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: op, URL: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	util.SetRequestID(req)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.signer != nil {
		token, err := c.signer.Sign(c.audience)
		if err != nil {
			return "", fmt.Errorf("markov: sign service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("markov_request_failed",
			"endpoint", op,
			"request_id", requestID,
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		return "", &TransportError{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: op, URL: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("markov_request",
		"endpoint", op,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_bytes", len(data),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	return string(data), nil
}
