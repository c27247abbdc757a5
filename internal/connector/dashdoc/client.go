package dashdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/metrics"
)

// DefaultBaseURL is the public Dashdoc API v4 endpoint
const DefaultBaseURL = "https://www.dashdoc.eu/api/v4"

const maxResponseBytes = 32 << 20

// Config configures a Dashdoc client
type Config struct {
	BaseURL         string
	Token           string
	ConnectionID    string
	Timeout         time.Duration
	RequestInterval time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	HTTPClient      *http.Client
	Logger          logrus.FieldLogger
	Metrics         *metrics.Collector
}

// Client talks to the Dashdoc REST API. It implements connector.Connector.
type Client struct {
	baseURL    string
	token      string
	connection string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	limiter    *connector.Limiter
	log        logrus.FieldLogger
	metrics    *metrics.Collector
}

// APIError is returned once retries are exhausted or the failure is not retryable
type APIError struct {
	Path       string
	StatusCode int // 0 for transport-level failures
	Body       string
	Err        error
	attempts   int
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("dashdoc GET %s: %v", e.Path, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("dashdoc GET %s: status %d: %s", e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("dashdoc GET %s: status %d", e.Path, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Attempts is the number of requests issued before giving up
func (e *APIError) Attempts() int {
	return e.attempts
}

// Retryable reports whether another attempt could succeed
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewClient creates a new Dashdoc client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		connection: cfg.ConnectionID,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		http:       cfg.HTTPClient,
		limiter:    connector.NewLimiter(cfg.RequestInterval),
		log:        cfg.Logger.WithField("connector", "dashdoc"),
		metrics:    cfg.Metrics,
	}
}

// Factory builds a Dashdoc connector from a configured connection
func Factory(conn config.ConnectionConfig, deps connector.Deps) (connector.Connector, error) {
	if conn.APIToken == "" {
		return nil, fmt.Errorf("dashdoc connection %s: missing api token", conn.ConnectionID)
	}
	return NewClient(Config{
		BaseURL:         conn.BaseURL,
		Token:           conn.APIToken,
		ConnectionID:    conn.ConnectionID,
		Timeout:         deps.Sync.RequestTimeout,
		RequestInterval: deps.Sync.RequestInterval,
		MaxRetries:      deps.Sync.MaxRetries,
		RetryDelay:      deps.Sync.RetryDelay,
		Logger:          deps.Logger,
		Metrics:         deps.Metrics,
	}), nil
}

// Name identifies the connector type
func (c *Client) Name() string {
	return "dashdoc"
}

// APICalls returns the number of requests issued through the limiter
func (c *Client) APICalls() int64 {
	return c.limiter.Calls()
}

// get issues a rate-limited GET and decodes the JSON body into out.
// 429, 5xx and transport errors are retried with exponential backoff.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	attempts := 0
	var body []byte
	op := func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		b, err := c.do(ctx, path, target)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxElapsedTime = 0
	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}

	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithField("retry_in", wait).Warn("⚠️ Dashdoc request failed, retrying")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx), notify)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.attempts = attempts
			return apiErr
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path, target string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		c.metrics.Request(c.connection, "dashdoc", "error")
		return nil, &APIError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.Request(c.connection, "dashdoc", fmt.Sprintf("%dxx", resp.StatusCode/100))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{Path: path, StatusCode: 0, Err: err}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Path: path, StatusCode: resp.StatusCode, Body: snippet(body)}
		if !apiErr.Retryable() {
			return nil, backoff.Permanent(apiErr)
		}
		return nil, apiErr
	}
	return body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
