// Package httpapi implements the auth, two-factor and health ports against the backend's
// JSON REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/jonboulle/clockwork"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
)

var (
	_ ports.AuthAPI      = (*Client)(nil)
	_ ports.TwoFactorAPI = (*Client)(nil)
	_ ports.HealthProber = (*Client)(nil)
)

const (
	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	maxResponseBytes = 1 << 20
	defaultTimeout   = 15 * time.Second
)

// envelopeExpr unwraps `{"data": ...}` envelopes and passes bare documents through.
const envelopeExpr = "data || @"

// Options configures a Client.
type Options struct {
	BaseURL    string
	HealthPath string
	UserAgent  string
	Timeout    time.Duration
	// HTTPClient overrides the default client. A cookie jar is attached when it has none.
	HTTPClient *http.Client
	// TokenSource supplies the bearer token. May be set later with SetTokenSource.
	TokenSource oauth2.TokenSource
	// RateLimits records 429 windows and short-circuits requests to limited endpoints.
	RateLimits *network.RateLimitTracker
	// Connectivity decides offline vs server_error for unreachable hosts. Optional.
	Connectivity ports.Connectivity
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Client is a JSON REST client for the auth backend. Cookies set by the backend (HTTP-only
// session cookies) are kept in a publicsuffix-scoped jar and sent on every request; the bearer
// token from the TokenSource is a fallback transport.
type Client struct {
	baseURL    string
	healthPath string
	userAgent  string
	hc         *http.Client
	limits     *network.RateLimitTracker
	conn       ports.Connectivity
	clock      clockwork.Clock
	logger     *slog.Logger

	mu     sync.RWMutex
	tokens oauth2.TokenSource
}

// NewClient builds a Client. BaseURL is required.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api base url is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}

	c := &Client{
		baseURL:    base,
		healthPath: healthPath,
		userAgent:  opts.UserAgent,
		hc:         hc,
		limits:     opts.RateLimits,
		conn:       opts.Connectivity,
		clock:      opts.Clock,
		logger:     opts.Logger,
		tokens:     opts.TokenSource,
	}
	if c.userAgent == "" {
		c.userAgent = "authsession"
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.limits == nil {
		c.limits = network.NewRateLimitTracker(c.clock.Now)
	}
	return c, nil
}

// SetTokenSource installs the bearer token source. The session manager is built after the
// client, so the two are linked here.
func (c *Client) SetTokenSource(ts oauth2.TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// RateLimits exposes the tracker shared with the rest of the client.
func (c *Client) RateLimits() *network.RateLimitTracker { return c.limits }

func (c *Client) online() bool {
	if c.conn == nil {
		return true
	}
	return c.conn.Online()
}

type request struct {
	method string
	path   string
	body   any
	out    any
	// bearer attaches the Authorization header when a token is available.
	bearer bool
	// skipLimitCheck bypasses the rate-limit fast fail (health probes are gated elsewhere).
	skipLimitCheck bool
}

func (c *Client) do(ctx context.Context, r request) error {
	if !r.skipLimitCheck && c.limits.IsRateLimited(r.path) {
		return apperrors.RateLimited(r.path, c.limits.Remaining(r.path))
	}

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		online := c.online()
		c.logger.Debug("api request failed",
			"method", r.method,
			"path", r.path,
			"request_id", req.Header.Get(RequestIDHeader),
			"error", err)
		return apperrors.Normalize(&network.Error{Kind: network.Classify(err, online), Path: r.path, Err: err}, online)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.Normalize(&network.Error{Kind: network.Classify(err, c.online()), Path: r.path, Err: err}, c.online())
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(r.path, resp, body)
	}

	if r.out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := decodeEnvelope(body, r.out); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "decode %s response", r.path)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	var reader io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create request")
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())

	if r.bearer {
		c.mu.RLock()
		ts := c.tokens
		c.mu.RUnlock()
		if ts != nil {
			if tok, terr := ts.Token(); terr == nil && tok.AccessToken != "" {
				tok.SetAuthHeader(req)
			}
		}
	}
	return req, nil
}

func (c *Client) statusError(path string, resp *http.Response, body []byte) error {
	appErr := apperrors.ParsePayload(resp.StatusCode, body)
	if resp.StatusCode == http.StatusTooManyRequests {
		d := network.ParseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now())
		network.RecordRateLimit(c.limits, path, d)
		appErr.RetryAfter = d
		appErr.Field = path
		c.logger.Warn("api rate limited",
			"path", path,
			"retry_after", d)
	}
	return appErr
}

func decodeEnvelope(body []byte, out any) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}
	inner, err := jmespath.Search(envelopeExpr, doc)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
