package apiclient

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
	"sync"
	"time"

	"teamdash/cmd/internal/tokenstore"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is used when no API base URL is configured.
	DefaultBaseURL = "http://localhost:9000/api/v1"

	// HeaderRequestID carries a per-request UUID for correlation with server logs.
	HeaderRequestID = "X-Request-ID"

	// RefreshPath is the token refresh endpoint.
	RefreshPath = "/user/refresh"

	defaultTimeout        = 30 * time.Second
	defaultRefreshTimeout = 15 * time.Second
	maxResponseBytes      = 8 << 20
)

// Request describes one API call.
type Request struct {
	Method string
	// Path is relative to the base URL, e.g. "/teams/3/invite".
	Path  string
	Query url.Values
	// Body is JSON-encoded unless it is nil, []byte or json.RawMessage.
	Body any
	// Public requests carry no bearer token and their 401s are returned as is
	// (login with a wrong password must not look like an expired session).
	Public bool
}

// Token is the token object returned by login, register and refresh.
type Token struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Type    string `json:"type"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRefreshTimeout bounds a single refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithTimeout sets the default client's per-request timeout.
// Ignored when WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client is safe for concurrent use. Each Client owns its own refresh state.
type Client struct {
	baseURL        string
	store          tokenstore.Store
	http           *http.Client
	log            *slog.Logger
	metrics        *Metrics
	timeout        time.Duration
	refreshTimeout time.Duration
	userAgent      string

	refresh refreshState

	obsMu     sync.Mutex
	nextObsID uint64
	observers map[uint64]func(error)
}

// New returns a Client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, store tokenstore.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil token store", ErrConfig)
	}

	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrConfig, baseURL)
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		store:          store,
		timeout:        defaultTimeout,
		refreshTimeout: defaultRefreshTimeout,
		observers:      make(map[uint64]func(error)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   c.timeout,
			Transport: &LoggingTransport{Log: c.log},
		}
	}
	return c, nil
}

// BaseURL returns the configured API base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Tokens returns the token store the client reads from.
func (c *Client) Tokens() tokenstore.Store { return c.store }

// OnLogout registers fn to run when a refresh fails and the session is dropped.
// fn runs synchronously on the refreshing goroutine and must not call Do.
func (c *Client) OnLogout(fn func(error)) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Client) broadcastLogout(err error) {
	c.obsMu.Lock()
	fns := make([]func(error), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

// Do sends req and decodes a 2xx JSON response into out (if non-nil).
//
// Non-2xx responses are returned as *Error. A 401 on a protected request is
// retried once after a token refresh; refresh failures are *RefreshError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	var used string
	if !req.Public {
		pair, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("apiclient: load tokens: %w", err)
		}
		used = pair.Access
	}

	resp, err := c.send(ctx, req, body, used)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Public {
		drain(resp)

		access, err := c.accessAfter401(ctx)
		if err != nil {
			return err
		}

		resp, err = c.send(ctx, req, body, access)
		if err != nil {
			return err
		}
	}

	return decodeResponse(resp, out)
}

// accessAfter401 joins the in-flight refresh or starts one, and returns the
// access token to retry with.
func (c *Client) accessAfter401(ctx context.Context) (string, error) {
	f, leader := c.refresh.join(func() (string, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.runRefresh(rctx)
	})
	if !leader {
		c.metrics.observeWaiter()
		c.log.Debug("auth.refresh.wait")
	}

	select {
	case <-f.done:
		return f.access, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) runRefresh(ctx context.Context) (access string, err error) {
	start := time.Now()
	defer func() { c.metrics.observeRefresh(err) }()

	pair, err := c.store.Load(ctx)
	if err != nil {
		return "", c.failRefresh(ctx, fmt.Errorf("load tokens: %w", err))
	}
	if pair.Refresh == "" {
		return "", c.failRefresh(ctx, ErrMissingRefreshToken)
	}

	var tok Token
	err = c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Body:   refreshRequest{Refresh: pair.Refresh},
		Public: true,
	}, &tok)
	if err != nil {
		return "", c.failRefresh(ctx, err)
	}
	if tok.Access == "" {
		return "", c.failRefresh(ctx, fmt.Errorf("refresh response carries no access token"))
	}

	next := tokenstore.Pair{Access: tok.Access, Refresh: tok.Refresh}
	if next.Refresh == "" {
		next.Refresh = pair.Refresh
	}
	if err := c.store.Save(ctx, next); err != nil {
		return "", c.failRefresh(ctx, fmt.Errorf("save tokens: %w", err))
	}

	c.log.Info("auth.refresh.ok", "duration_ms", time.Since(start).Milliseconds())
	return next.Access, nil
}

func (c *Client) failRefresh(ctx context.Context, cause error) error {
	err := &RefreshError{Err: cause}

	if cerr := c.store.Clear(ctx); cerr != nil {
		c.log.Error("auth.tokens.clear.fail", "err", cerr)
	}
	c.log.Warn("auth.refresh.fail", "err", cause)
	c.broadcastLogout(err)
	return err
}

func (c *Client) send(ctx context.Context, req Request, body []byte, token string) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	hr, err := http.NewRequestWithContext(ctx, method, c.endpoint(req.Path, req.Query), rdr)
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Accept", "application/json")
	if body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	hr.Header.Set(HeaderRequestID, uuid.NewString())
	if c.userAgent != "" {
		hr.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		hr.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(hr)
	if err != nil {
		c.metrics.observeRequest(method, 0, time.Since(start))
		return nil, err
	}
	c.metrics.observeRequest(method, resp.StatusCode, time.Since(start))
	return resp, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encode body: %w", err)
		}
		return data, nil
	}
}

func decodeResponse(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("apiclient: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("apiclient: decode %d response: %w", resp.StatusCode, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}
