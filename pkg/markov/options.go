package markov

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the transport handle. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request made through the transport handle.
// It applies after all options, to a copy of the final http.Client, so it
// combines with WithHTTPClient in any order and never mutates a shared client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for per-request debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTokenSigner attaches "Authorization: Bearer <token>" to every request,
// signed for audience.
func WithTokenSigner(signer TokenSigner, audience string) Option {
	return func(c *Client) {
		c.signer = signer
		c.audience = strings.TrimSpace(audience)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}
