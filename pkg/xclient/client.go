// SPDX-License-Identifier: MPL-2.0

package xclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/garytyler/pytest-asgi-server/pkg/testserver"
)

// DefaultTimeout bounds each HTTP request made by a Client.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNotInstantiated is returned by calls that need a bound base URL
	// before Open succeeded or after Close.
	ErrNotInstantiated = errors.New("client is not instantiated")

	// ErrUnexpectedStatus is wrapped by *StatusError.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

type (
	// Client sends requests to the server behind one handle.
	Client struct {
		handle    testserver.Handle
		tlsConfig *tls.Config
		timeout   time.Duration
		header    http.Header

		mu      sync.RWMutex
		http    *http.Client
		baseURL string
		wsURL   string
	}

	// Option configures a Client.
	Option func(*Client)

	// StatusError reports a response GetJSON could not decode because of
	// its status code.
	StatusError struct {
		URL    string
		Status int
		Body   string
	}
)

// WithTLSConfig sets the TLS configuration for HTTPS and WSS connections.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHeader adds a header sent with every request and handshake.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// New returns an unopened Client for h.
func New(h testserver.Handle, opts ...Option) *Client {
	c := &Client{
		handle:  h,
		timeout: DefaultTimeout,
		header:  http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts the handle unless it is already alive and binds the client
// to its base URLs.
func (c *Client) Open(ctx context.Context) error {
	if !c.handle.IsAlive() {
		if err := c.handle.Start(ctx); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	}
	base := c.handle.HTTPBaseURL()
	if base == "" {
		return fmt.Errorf("%w: server is not alive after start", ErrNotInstantiated)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.http = &http.Client{
		Timeout:   c.timeout,
		Transport: &http.Transport{TLSClientConfig: c.tlsConfig, DisableKeepAlives: true},
	}
	c.baseURL = base
	c.wsURL = c.handle.WSBaseURL()
	return nil
}

// Close unbinds the client and stops the handle.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
	c.http, c.baseURL, c.wsURL = nil, "", ""
	c.mu.Unlock()

	return c.handle.Stop()
}

// BaseURL returns the bound HTTP base URL, or "" before Open.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Instantiated reports whether Open bound the client.
func (c *Client) Instantiated() bool { return c.BaseURL() != "" }

func (c *Client) bound() (*http.Client, string, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.http == nil {
		return nil, "", "", ErrNotInstantiated
	}
	return c.http, c.baseURL, c.wsURL, nil
}

// NewRequest builds a request for path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	_, base, _, err := c.bound()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, join(base, path), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Do sends req with the bound HTTP client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	hc, _, _, err := c.bound()
	if err != nil {
		return nil, err
	}
	return hc.Do(req)
}

// Get sends a GET for path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// GetJSON sends a GET for path and decodes a 2xx JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{URL: resp.Request.URL.String(), Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WebsocketConnect dials path relative to the WebSocket base URL. The
// caller closes the returned connection.
func (c *Client) WebsocketConnect(ctx context.Context, path string, header http.Header) (*websocket.Conn, error) {
	_, _, ws, err := c.bound()
	if err != nil {
		return nil, err
	}
	if ws == "" {
		return nil, fmt.Errorf("%w: no websocket base URL", ErrNotInstantiated)
	}

	h := c.header.Clone()
	for k, vs := range header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	dialer := websocket.Dialer{
		TLSClientConfig:  c.tlsConfig,
		HandshakeTimeout: c.timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, join(ws, path), h)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket connect %s: %w", path, err)
	}
	return conn, nil
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Status, strings.TrimSpace(e.Body))
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

func join(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
