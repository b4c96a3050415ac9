// Package api calls the downstream web API on behalf of a signed-in identity
// with the access token cached when its authorization code was redeemed.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
)

// MaxResponseBytes bounds how much of an API response is read.
const MaxResponseBytes = 1 << 20

// Messages returned by Call for display.
const (
	MessageSignInAgain    = "Please sign in again."
	MessageSessionExpired = b2c.MessageReauthRequired
	MessageCallFailed     = "Error calling API."
)

// Client calls the configured API URL with a cached access token.
type Client struct {
	url    string
	cache  b2c.TokenCache
	client *http.Client
	logger hclog.Logger
}

// NewClient creates a Client for c.ApiUrl, reading tokens from cache.
// Supported options:
//
//	WithHttpClient
//	WithLogger
func NewClient(c *b2c.Config, cache b2c.TokenCache, opt ...b2c.Option) (*Client, error) {
	const op = "api.NewClient"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: config is nil: %w", op, b2c.ErrNilParameter)
	case cache == nil:
		return nil, fmt.Errorf("%s: token cache is nil: %w", op, b2c.ErrNilParameter)
	case c.ApiUrl == "":
		return nil, fmt.Errorf("%s: %w", op, ErrApiUrlNotConfigured)
	}
	opts := getClientOpts(opt...)
	client := opts.withHttpClient
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
		client.Timeout = c.HttpTimeout
	}
	logger := opts.withLogger
	if logger == nil {
		logger = c.Logger
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		url:    c.ApiUrl,
		cache:  cache,
		client: client,
		logger: logger.Named("api"),
	}, nil
}

// Call sends a GET to the API with subject's access token as the bearer
// credential. It always returns a message that can be shown to the user:
// the response body on success and an explanation otherwise, in which case
// the error is also set.
//
// A missing token returns b2c.ErrReauthRequired: the user has to sign in
// again to redeem a new authorization code.
func (c *Client) Call(ctx context.Context, subject string) (string, error) {
	const op = "Client.Call"
	t, ok, err := c.cache.Get(ctx, subject)
	switch {
	case err != nil:
		c.logger.Error("unable to read token cache", "subject", subject, "error", err)
		return fmt.Sprintf("%s %s", MessageCallFailed, err), fmt.Errorf("%s: %w: %w", op, ErrRequestFailed, err)
	case !ok || t == "":
		return MessageSessionExpired, fmt.Errorf("%s: no access token for %q: %w", op, subject, b2c.ErrReauthRequired)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return MessageCallFailed, fmt.Errorf("%s: %w: %w", op, ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(t))
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("api request failed", "error", err)
		return fmt.Sprintf("%s %s", MessageCallFailed, err), fmt.Errorf("%s: %w: %w", op, ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
		if err != nil {
			return MessageCallFailed, fmt.Errorf("%s: unable to read response: %w: %w", op, ErrRequestFailed, err)
		}
		return string(body), nil
	case http.StatusUnauthorized:
		c.logger.Info("api rejected access token", "subject", subject)
		return fmt.Sprintf("%s %s", MessageSignInAgain, http.StatusText(resp.StatusCode)),
			fmt.Errorf("%s: %w", op, ErrUnauthorized)
	default:
		c.logger.Warn("unexpected api response", "status", resp.StatusCode)
		return fmt.Sprintf("%s StatusCode=%d", MessageCallFailed, resp.StatusCode),
			fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, ErrUnexpectedStatus)
	}
}
