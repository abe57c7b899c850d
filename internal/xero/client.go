package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xeroexport/internal/logger"
)

const (
	// DefaultBaseURL is the accounting API root
	DefaultBaseURL = "https://api.xero.com/api.xro/2.0/"

	defaultTimeout         = 30 * time.Second
	defaultRateLimitMargin = 2 * time.Second

	headerTenantID         = "Xero-Tenant-ID"
	headerRateLimitProblem = "X-Rate-Limit-Problem"
	headerRetryAfter       = "Retry-After"

	// Only the per-minute limit resets soon enough to wait for
	rateLimitProblemMinute = "minute"
)

// Config holds the connection settings for the accounting API
type Config struct {
	BaseURL         string
	AccessToken     string
	TenantID        string
	Timeout         time.Duration
	RateLimitMargin time.Duration

	// MaxRateLimitWaits caps the per-minute waits for one request; zero
	// waits as often as the API asks.
	MaxRateLimitWaits int
}

// Client performs authenticated requests against the accounting API. A
// request that hits the per-minute rate limit is paused and re-issued until it
// gets through.
type Client struct {
	config Config
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
	log    zerolog.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithLogger replaces the component logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithSleeper replaces the function used to wait out a rate limit
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient creates a client, applying defaults for unset fields
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" || strings.TrimSpace(cfg.TenantID) == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimitMargin <= 0 {
		cfg.RateLimitMargin = defaultRateLimitMargin
	}

	c := &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sleep:  sleepWithContext,
		log:    logger.WithComponent("xero"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get fetches path with the given query parameters and decodes the response
// into out.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	return c.request(ctx, http.MethodGet, path, params, nil, out)
}

// Post sends body to path and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.request(ctx, http.MethodPost, path, nil, body, out)
}

// Put sends body to path and decodes the response into out
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.request(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, body, out any) error {
	op := method + " " + path

	uri := c.buildURL(path, params)
	var payload []byte
	if method != http.MethodGet && body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("xero: %s: failed to encode request body: %w", op, err)
		}
	}

	for waits := 0; ; waits++ {
		c.log.Debug().Msgf("[%s] to %s", method, path)

		resp, respBody, err := c.do(ctx, method, uri, payload)
		if err != nil {
			return &ConnectionError{Op: op, Err: err}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			c.log.Debug().Msgf("Status: %s", resp.Status)
			if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("xero: %s: failed to decode response: %w", op, err)
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			c.log.Debug().Msg("Status: 429 Rate Limit Exceeded")
			wait, err := c.rateLimitWait(resp)
			if err != nil {
				return &ConnectionError{Op: op, Err: err}
			}
			if c.config.MaxRateLimitWaits > 0 && waits >= c.config.MaxRateLimitWaits {
				return &ConnectionError{Op: op, Err: fmt.Errorf("%w: gave up after %d waits", ErrRateLimitExceeded, waits)}
			}
			c.log.Debug().Msgf("Waiting %d seconds", int(wait.Seconds()))
			if err := c.sleep(ctx, wait); err != nil {
				return &ConnectionError{Op: op, Err: err}
			}
			c.log.Debug().Msg("Retrying after rate limit pause")

		default:
			apiErr := newAPIError(resp, respBody)
			c.log.Error().
				Int("status", apiErr.Status).
				Str("request", op).
				Msg(apiErr.Message)
			return apiErr
		}
	}
}

func (c *Client) do(ctx context.Context, method, uri string, payload []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set(headerTenantID, c.config.TenantID)
	req.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	uri := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}
	return uri
}

// rateLimitWait returns how long to pause before re-issuing a request that
// got a 429, or an error when the limit cannot be waited out.
func (c *Client) rateLimitWait(resp *http.Response) (time.Duration, error) {
	problem := resp.Header.Get(headerRateLimitProblem)
	if !strings.EqualFold(strings.TrimSpace(problem), rateLimitProblemMinute) {
		return 0, fmt.Errorf("%w: problem %q", ErrRateLimitExceeded, problem)
	}
	return parseRetryAfter(resp.Header.Get(headerRetryAfter)) + c.config.RateLimitMargin, nil
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: strings.TrimSpace(string(body)),
		Body:    string(body),
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var payload struct {
			Type    string `json:"Type"`
			Message string `json:"Message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && (payload.Type != "" || payload.Message != "") {
			apiErr.Message = fmt.Sprintf("%s: %s", payload.Type, payload.Message)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
