package odoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Config holds Odoo connection settings
type Config struct {
	URL          string
	Database     string
	Username     string
	Password     string
	ConnectionID string
	Timeout      time.Duration
	Transport    http.RoundTripper
	Logger       logrus.FieldLogger
	Metrics      *metrics.Collector
}

// Client represents an Odoo XML-RPC client. Every call goes through the
// shared limiter; authentication happens lazily on the first call.
type Client struct {
	URL        string
	Database   string
	Username   string
	Password   string
	CommonURL  string
	ObjectURL  string
	connection string
	timeout    time.Duration
	transport  http.RoundTripper
	limiter    *connector.Limiter
	log        logrus.FieldLogger
	metrics    *metrics.Collector

	mu  sync.Mutex
	uid int
}

// NewClient creates a new Odoo client
func NewClient(cfg Config, limiter *connector.Limiter) *Client {
	url := strings.TrimRight(cfg.URL, "/")
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		URL:        url,
		Database:   cfg.Database,
		Username:   cfg.Username,
		Password:   cfg.Password,
		CommonURL:  fmt.Sprintf("%s/xmlrpc/2/common", url),
		ObjectURL:  fmt.Sprintf("%s/xmlrpc/2/object", url),
		connection: cfg.ConnectionID,
		timeout:    cfg.Timeout,
		transport:  cfg.Transport,
		limiter:    limiter,
		log:        cfg.Logger.WithField("connector", "odoo"),
		metrics:    cfg.Metrics,
	}
}

// Factory builds an Odoo connector from a configured connection
func Factory(conn config.ConnectionConfig, deps connector.Deps) (connector.Connector, error) {
	if conn.BaseURL == "" || conn.Database == "" {
		return nil, fmt.Errorf("odoo connection %s: base_url and database are required", conn.ConnectionID)
	}
	client := NewClient(Config{
		URL:          conn.BaseURL,
		Database:     conn.Database,
		Username:     conn.Username,
		Password:     conn.Password,
		ConnectionID: conn.ConnectionID,
		Timeout:      deps.Sync.RequestTimeout,
		Logger:       deps.Logger,
		Metrics:      deps.Metrics,
	}, connector.NewLimiter(deps.Sync.RequestInterval))
	return NewConnector(client), nil
}

// call runs one XML-RPC method within the client timeout, giving up early
// when ctx is done. The HTTP request is abandoned with the client.
func (c *Client) call(ctx context.Context, endpoint, method string, args []interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client, err := xmlrpc.NewClient(endpoint, c.transport)
	if err != nil {
		return fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, args, result)
	}()

	select {
	case err := <-done:
		if err != nil {
			c.metrics.Request(c.connection, "odoo", "error")
			return err
		}
		c.metrics.Request(c.connection, "odoo", "ok")
		return nil
	case <-callCtx.Done():
		c.metrics.Request(c.connection, "odoo", "timeout")
		return fmt.Errorf("%s %s: %w", method, endpoint, callCtx.Err())
	}
}

// Authenticate authenticates with Odoo and returns the user ID
func (c *Client) Authenticate(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid != 0 {
		return c.uid, nil
	}

	args := []interface{}{c.Database, c.Username, c.Password, make([]interface{}, 0)}
	var uid int
	if err := c.call(ctx, c.CommonURL, "authenticate", args, &uid); err != nil {
		return 0, fmt.Errorf("authentication failed: %w", err)
	}
	if uid == 0 {
		return 0, fmt.Errorf("authentication failed: invalid credentials for %s", c.Username)
	}

	c.uid = uid
	return uid, nil
}

// executeKw calls model.method through execute_kw
func (c *Client) executeKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}, result interface{}) error {
	uid, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}

	params := []interface{}{c.Database, uid, c.Password, model, method, args}
	if kwargs != nil {
		params = append(params, kwargs)
	}
	return c.call(ctx, c.ObjectURL, "execute_kw", params, result)
}

// SearchRead performs a search_read and returns the records verbatim
// model: Odoo model name (e.g., "stock.picking")
// order: Odoo order clause, empty for the model default
func (c *Client) SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, limit, offset int, order string) ([]map[string]interface{}, error) {
	kwargs := map[string]interface{}{
		"fields": fields,
		"limit":  limit,
		"offset": offset,
	}
	if order != "" {
		kwargs["order"] = order
	}

	var rawResult []map[string]interface{}
	if err := c.executeKw(ctx, model, "search_read", []interface{}{domain}, kwargs, &rawResult); err != nil {
		return nil, fmt.Errorf("failed to execute search_read on %s: %w", model, err)
	}
	return rawResult, nil
}

// SearchCount counts records matching domain
func (c *Client) SearchCount(ctx context.Context, model string, domain []interface{}) (int, error) {
	var count int
	if err := c.executeKw(ctx, model, "search_count", []interface{}{domain}, nil, &count); err != nil {
		return 0, fmt.Errorf("failed to execute search_count on %s: %w", model, err)
	}
	return count, nil
}

// decode converts a raw record into a typed struct through JSON, returning
// the JSON rendering as well so it can be kept as the raw payload
func decode(record map[string]interface{}, out interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target: %w", err)
	}
	return raw, nil
}
