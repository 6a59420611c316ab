// Package portal implements the HTTP transport to the school portal REST API.
// Every read is a GET to https://{school}.{apidomain}/api/{endpoint} carrying
// the bindings as query-string parameters.
package portal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
	"github.com/alem-hub/schoolportal/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ResponseCache stores raw response bodies. Keys are request URLs prefixed
// with a hash of the caller's credentials.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// SessionStore persists the portal session cookie between runs.
type SessionStore interface {
	// Load returns "" when nothing is stored.
	Load(ctx context.Context, school string) (string, error)
	Save(ctx context.Context, school, value string) error
}

// ClientConfig contains configuration for the portal API client.
type ClientConfig struct {
	// School is the tenant subdomain, e.g. "astana"
	School string

	// APIDomain is the portal domain, e.g. "alem.school"
	APIDomain string

	// BaseURL overrides the URL derived from School and APIDomain
	BaseURL string

	// Token is sent as a bearer token
	Token string

	// SessionCookieName is the name of the portal session cookie
	SessionCookieName string

	// SessionCookie seeds the cookie jar; takes precedence over Sessions
	SessionCookie string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// UserAgent is sent with every request
	UserAgent string

	// RateLimiterConfig for API rate limiting
	RateLimiterConfig RateLimiterConfig

	// BreakerThreshold is the number of consecutive server failures that opens the circuit
	BreakerThreshold int

	// BreakerTimeout is how long the circuit stays open
	BreakerTimeout time.Duration

	// Cache stores successful responses for CacheTTL; optional
	Cache    ResponseCache
	CacheTTL time.Duration

	// Sessions persists the session cookie; optional
	Sessions SessionStore

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables request logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(school, apiDomain string) ClientConfig {
	return ClientConfig{
		School:            school,
		APIDomain:         apiDomain,
		SessionCookieName: "portal_session",
		Timeout:           30 * time.Second,
		UserAgent:         "schoolportal/1.0",
		RateLimiterConfig: DefaultRateLimiterConfig(),
		BreakerThreshold:  5,
		BreakerTimeout:    30 * time.Second,
		CacheTTL:          time.Minute,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the portal HTTP transport. It satisfies database.Transport.
type Client struct {
	config      ClientConfig
	baseURL     *url.URL
	httpClient  *http.Client
	jar         *cookiejar.Jar
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker

	sessionMu sync.Mutex
	session   string
}

// NewClient creates a new portal API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	raw := config.BaseURL
	if raw == "" {
		if config.School == "" || config.APIDomain == "" {
			return nil, shared.InvalidArgument("portal", "NewClient", "school and api domain are required without a base url")
		}
		raw = fmt.Sprintf("https://%s.%s/api/", config.School, config.APIDomain)
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	baseURL, err := url.Parse(raw)
	if err != nil || baseURL.Host == "" {
		return nil, shared.InvalidArgument("portal", "NewClient", "invalid base url %q", raw)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		config:  config,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Jar:     jar,
		},
		jar:         jar,
		logger:      config.Logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
	}
	c.breaker = circuitbreaker.PortalAPIBreaker(
		config.BreakerThreshold,
		config.BreakerTimeout,
		isBreakerFailure,
		func(name string, from, to circuitbreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	)

	if config.SessionCookie != "" {
		c.setSession(config.SessionCookie)
	}
	return c, nil
}

// BaseURL returns the API root every endpoint is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// RestoreSession seeds the cookie jar from the session store. A cookie given
// in the config wins.
func (c *Client) RestoreSession(ctx context.Context) error {
	if c.config.Sessions == nil || c.config.SessionCookie != "" {
		return nil
	}
	value, err := c.config.Sessions.Load(ctx, c.config.School)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if value != "" {
		c.setSession(value)
	}
	return nil
}

func (c *Client) setSession(value string) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	c.session = value
	if c.config.SessionCookieName == "" {
		return
	}
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:  c.config.SessionCookieName,
		Value: value,
		Path:  "/",
	}})
}

// persistSession saves the session cookie when the portal rotated it.
func (c *Client) persistSession(ctx context.Context) {
	if c.config.Sessions == nil || c.config.SessionCookieName == "" {
		return
	}

	c.sessionMu.Lock()
	var current string
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == c.config.SessionCookieName {
			current = cookie.Value
		}
	}
	changed := current != "" && current != c.session
	if changed {
		c.session = current
	}
	c.sessionMu.Unlock()

	if !changed {
		return
	}
	if err := c.config.Sessions.Save(ctx, c.config.School, current); err != nil {
		c.logger.Warn("failed to persist session cookie", "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// Get performs a GET against endpoint and decodes the JSON body into a
// generic value tree. An empty body decodes to nil.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (any, error) {
	target := c.resolve(endpoint, query)
	cacheKey := c.cacheKey(target)

	if c.config.Cache != nil {
		body, ok, err := c.config.Cache.Get(ctx, cacheKey)
		if err != nil {
			c.logger.Warn("response cache read failed", "url", target, "error", err)
		} else if ok {
			return decode(body)
		}
	}

	if err := c.rateLimiter.Allow(ctx); err != nil {
		return nil, err
	}

	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.doSingleRequest(ctx, endpoint, target)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return nil, shared.WrapError("portal", "Get", shared.ErrServiceUnavailable, "request rejected", err)
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		c.rateLimiter.RecordRateLimitHit(rateLimitErr.RetryAfter)
	}
	if err != nil {
		return nil, err
	}

	value, err := decode(body)
	if err != nil {
		return nil, err
	}

	if c.config.Cache != nil && c.config.CacheTTL > 0 {
		if err := c.config.Cache.Set(ctx, cacheKey, body, c.config.CacheTTL); err != nil {
			c.logger.Warn("response cache write failed", "url", target, "error", err)
		}
	}
	c.persistSession(ctx)

	return value, nil
}

// resolve joins endpoint to the base URL. The endpoint is taken as already
// path-escaped: substituted binding values keep their escaping, so "%20" and
// "%2F" reach the portal once-encoded.
func (c *Client) resolve(endpoint string, query url.Values) string {
	raw := strings.TrimPrefix(endpoint, "/")
	ref := &url.URL{Path: raw}
	if decoded, err := url.PathUnescape(raw); err == nil {
		ref.Path = decoded
		ref.RawPath = raw
	}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return c.baseURL.ResolveReference(ref).String()
}

// cacheKey scopes a request URL to the credentials it is sent with, so
// clients sharing one cache never read each other's responses. Without a
// token the current session cookie identifies the caller.
func (c *Client) cacheKey(target string) string {
	h := sha256.New()
	h.Write([]byte(c.config.School))
	h.Write([]byte{0})
	h.Write([]byte(c.config.Token))
	if c.config.Token == "" {
		c.sessionMu.Lock()
		h.Write([]byte{0})
		h.Write([]byte(c.session))
		c.sessionMu.Unlock()
	}
	return hex.EncodeToString(h.Sum(nil)[:8]) + ":" + target
}

func (c *Client) doSingleRequest(ctx context.Context, endpoint, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	if c.config.Debug {
		c.logger.Debug("portal api request", "method", http.MethodGet, "url", target)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "portal rate limit exceeded, retry after " + retryAfter.String(),
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newAPIError(resp.StatusCode, endpoint, respBody)
	}

	return respBody, nil
}

func decode(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return value, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Minute
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return time.Minute
}

// isBreakerFailure counts transport errors and 5xx responses. Client errors
// and 429 are the caller's problem, not the portal's.
func isBreakerFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsServerError()
	}
	var rateLimitErr *RateLimitError
	return !errors.As(err, &rateLimitErr)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus reports the state of the fault-tolerance layer.
type ClientStatus struct {
	Breaker   string
	Counts    circuitbreaker.Counts
	IsHealthy bool
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	state := c.breaker.State()
	return ClientStatus{
		Breaker:   state.String(),
		Counts:    c.breaker.Counts(),
		IsHealthy: state == circuitbreaker.StateClosed,
	}
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}
