// Package ledger is a JSON-RPC client for the key/value streams of a
// MultiChain node. Streams are append-only: publishing under a key adds a new
// item and never replaces an earlier one, so the current value of a key is
// its most recently appended item.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adamscao/certchain/internal/config"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 100
	maxResponseSize = 32 << 20
)

// Config holds the connection settings for a ledger node
type Config struct {
	URL       string
	User      string
	Password  string
	ChainName string
	Timeout   time.Duration
	Encoding  Encoding
	PageSize  int
}

// FromConfig builds the client settings from the process configuration
func FromConfig(cfg *config.Config) Config {
	return Config{
		URL:       cfg.LedgerURL(),
		User:      cfg.Ledger.RPCUser,
		Password:  cfg.Ledger.RPCPassword,
		ChainName: cfg.Ledger.ChainName,
		Timeout:   cfg.GetLedgerTimeout(),
		Encoding:  Encoding(cfg.Ledger.Encoding),
		PageSize:  cfg.Ledger.PageSize,
	}
}

// BodyCaptureFunc receives the raw request and response body of every call.
// resp is nil when no response was read.
type BodyCaptureFunc func(method string, req, resp []byte)

// Client talks to one ledger node. It is safe for concurrent use and meant
// to be created once per process.
type Client struct {
	url       string
	user      string
	password  string
	chainName string
	timeout   time.Duration
	encoding  Encoding
	pageSize  int

	http        *http.Client
	logger      *slog.Logger
	registerer  prometheus.Registerer
	metrics     *metrics
	captureBody BodyCaptureFunc
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used for transport
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRegisterer registers the client's metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithBodyCapture installs a hook that observes raw RPC bodies
func WithBodyCapture(fn BodyCaptureFunc) Option {
	return func(c *Client) {
		c.captureBody = fn
	}
}

// NewClient creates a ledger client
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("ledger url is required")
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingHex
	}
	if !cfg.Encoding.Valid() {
		return nil, fmt.Errorf("unsupported ledger encoding %q", cfg.Encoding)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	c := &Client{
		url:       cfg.URL,
		user:      cfg.User,
		password:  cfg.Password,
		chainName: cfg.ChainName,
		timeout:   cfg.Timeout,
		encoding:  cfg.Encoding,
		pageSize:  cfg.PageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("component", "ledger")
	c.metrics = newMetrics(c.registerer)

	return c, nil
}

// Encoding returns the payload encoding used for publishing
func (c *Client) Encoding() Encoding {
	return c.encoding
}

// Close releases idle connections held by the client
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

type rpcRequest struct {
	Method    string `json:"method"`
	Params    []any  `json:"params"`
	ID        string `json:"id"`
	ChainName string `json:"chain_name,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID any `json:"id"`
}

// call performs one JSON-RPC round trip bounded by the client timeout and
// decodes the result member into result when it is non-nil.
func (c *Client) call(ctx context.Context, method string, params []any, result any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.observe(method, outcomeOf(err), time.Since(start))
	}()

	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		Method:    method,
		Params:    params,
		ID:        uuid.NewString(),
		ChainName: c.chainName,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		c.capture(method, body, nil)
		return unavailable(method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.capture(method, body, respBody)
	if err != nil {
		return unavailable(method, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &RPCError{Method: method, Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return unavailable(method, fmt.Errorf("http %d: undecodable response: %v", resp.StatusCode, err))
	}
	if rpcResp.Error != nil {
		return &RPCError{Method: method, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable(method, fmt.Errorf("http %d", resp.StatusCode))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return &RPCError{Method: method, Code: 0, Message: fmt.Sprintf("unexpected result: %v", err)}
	}
	return nil
}

func (c *Client) capture(method string, req, resp []byte) {
	c.logger.Debug("ledger rpc",
		"method", method,
		"request", string(req),
		"response", string(resp),
	)
	if c.captureBody != nil {
		c.captureBody(method, req, resp)
	}
}
