// Package xsrf implements an HTTP client for backends that protect their API
// with a double-submit csrf cookie and a refreshable cookie session.
//
// Every call reads the csrf token from the cookie jar, bootstrapping it when
// absent, and sends it in the X-XSRF-TOKEN header. When the backend answers
// 401 or 403 the client refreshes the session once and resends the original
// request once. If that does not help, the call ends with ErrUnauthorized.
package xsrf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"
)

const (
	CookieName = "XSRF-TOKEN"
	HeaderName = "X-XSRF-TOKEN"

	BootstrapPath = "/api/v1/auth/get"
	RefreshPath   = "/api/v1/auth/refreshtoken"

	DefaultBaseURL = "http://localhost:8080"
)

// Config wires the cookie store and transport of a Client.
type Config struct {
	// BaseURL resolves relative request URLs and is the bootstrap base when
	// none can be inferred. Defaults to DefaultBaseURL.
	BaseURL string
	// HTTPClient executes the requests. Its Jar must be the store Cookies
	// reads from; when it has no jar one is installed.
	HTTPClient *http.Client
	// Cookies reads the csrf token. Defaults to the HTTP client's jar.
	Cookies CookieReader
	// CoalesceRefresh lets concurrent calls against the same origin share one
	// in-flight refresh request.
	CoalesceRefresh bool
	UserAgent       string
}

// Client is safe for concurrent use. It holds no token state of its own.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	anonClient *http.Client
	cookies    CookieReader
	userAgent  string

	refreshGroup *singleflight.Group

	tracer trace.Tracer
	meters *meters
}

func NewClient(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}

	base, err := normalizeBaseURL(raw)
	if err != nil {
		return nil, err
	}

	httpClient, err := clientWithJar(cfg.HTTPClient, cfg.Cookies)
	if err != nil {
		return nil, err
	}

	cookies := cfg.Cookies
	if cookies == nil {
		cookies = JarReader{Jar: httpClient.Jar}
	}

	anonClient := *httpClient
	anonClient.Jar = nil

	m, err := newMeters()
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    base,
		httpClient: httpClient,
		anonClient: &anonClient,
		cookies:    cookies,
		userAgent:  cfg.UserAgent,
		tracer:     otel.Tracer(instrumentationName),
		meters:     m,
	}
	if cfg.CoalesceRefresh {
		c.refreshGroup = &singleflight.Group{}
	}

	return c, nil
}

func normalizeBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("xsrf: invalid base URL: %w", err)
	}
	if u.Scheme == "" {
		return nil, errors.New("xsrf: base URL missing scheme (http/https)")
	}
	if u.Host == "" {
		return nil, errors.New("xsrf: base URL missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u, nil
}

func clientWithJar(hc *http.Client, cookies CookieReader) (*http.Client, error) {
	var c http.Client
	if hc != nil {
		c = *hc
	}
	if c.Jar != nil {
		return &c, nil
	}

	if jar, ok := cookies.(http.CookieJar); ok {
		c.Jar = jar
		return &c, nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("xsrf: creating cookie jar: %w", err)
	}
	c.Jar = jar

	return &c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Token returns the csrf token the jar currently holds for target, or "".
func (c *Client) Token(target string) string {
	u, err := c.resolve(target)
	if err != nil {
		return ""
	}

	return readToken(c.cookies, u)
}

// Bootstrap asks the backend at baseURL to set the csrf cookie. An empty
// baseURL means the configured base. The response status is not checked:
// a successful call does not guarantee a token is present afterwards.
func (c *Client) Bootstrap(ctx context.Context, baseURL string) error {
	if baseURL == "" {
		baseURL = c.baseURL.String()
	}
	u := strings.TrimSuffix(baseURL, "/") + BootstrapPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating bootstrap request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing bootstrap request: %w", err)
	}
	drain(resp)

	c.meters.bootstrapped(ctx)
	slogctx.Debug(ctx, "Bootstrapped csrf cookie", "url", u, "status", resp.StatusCode)

	return nil
}

// Do performs one logical call. It returns the backend response unmodified
// unless the backend rejected the session, in which case it refreshes the
// session and resends once. ErrUnauthorized is returned, with a nil
// response, when the refresh fails or the resend is rejected again.
// Transport errors of the bootstrap, send and resend steps are returned as
// they are; a transport error during the refresh counts as a failed refresh.
func (c *Client) Do(ctx context.Context, rawURL string, r Request) (_ *http.Response, err error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, fmt.Errorf("resolving request url: %w", err)
	}

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	origin := originOf(target)

	ctx = slogctx.With(ctx, "request_id", uuid.NewString(), "method", method, "url", target.Redacted())
	ctx, span := c.tracer.Start(ctx, "xsrf "+method, trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", target.Redacted()),
	))
	defer span.End()

	outcome := "response"
	start := time.Now()
	defer func() {
		switch {
		case errors.Is(err, ErrUnauthorized):
			outcome = "unauthorized"
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.meters.record(ctx, method, outcome, time.Since(start))
	}()

	httpClient := c.httpClient
	if r.Credentials == CredentialsOmit {
		httpClient = c.anonClient
	}

	token := readToken(c.cookies, target)
	if token == "" {
		slogctx.Debug(ctx, "No csrf token present, bootstrapping", "origin", origin.String())
		if err := c.Bootstrap(ctx, origin.String()); err != nil {
			return nil, err
		}
		token = readToken(c.cookies, target)
	}

	resp, err := c.send(ctx, httpClient, method, target, r.Header, body, token)
	if err != nil {
		return nil, err
	}
	if !isAuthFailure(resp.StatusCode) {
		return resp, nil
	}
	drain(resp)

	slogctx.Info(ctx, "Request rejected, refreshing session", "status", resp.StatusCode)
	span.AddEvent("refresh")

	if err := c.refresh(ctx, origin, token); err != nil {
		slogctx.Warn(ctx, "Could not refresh session", "error", err)
		return nil, c.unauthorized(ctx, err)
	}

	token = readToken(c.cookies, target)
	if token == "" {
		if err := c.Bootstrap(ctx, origin.String()); err != nil {
			slogctx.Warn(ctx, "Could not bootstrap csrf cookie after refresh", "error", err)
			return nil, c.unauthorized(ctx, err)
		}
		token = readToken(c.cookies, target)
	}

	resp, err = c.send(ctx, httpClient, method, target, r.Header, body, token)
	if err != nil {
		return nil, err
	}
	if isAuthFailure(resp.StatusCode) {
		drain(resp)
		slogctx.Warn(ctx, "Request rejected after session refresh", "status", resp.StatusCode)
		return nil, c.unauthorized(ctx, fmt.Errorf("resend returned status %d", resp.StatusCode))
	}

	return resp, nil
}

func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.Do(ctx, rawURL, Request{Method: http.MethodGet})
}

func (c *Client) Post(ctx context.Context, rawURL string, body any) (*http.Response, error) {
	return c.Do(ctx, rawURL, Request{Method: http.MethodPost, Body: body})
}

func (c *Client) Put(ctx context.Context, rawURL string, body any) (*http.Response, error) {
	return c.Do(ctx, rawURL, Request{Method: http.MethodPut, Body: body})
}

func (c *Client) Delete(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.Do(ctx, rawURL, Request{Method: http.MethodDelete})
}

func (c *Client) send(ctx context.Context, hc *http.Client, method string, target *url.URL, header http.Header, body []byte, token string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, target, header, body, token)
	if err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	return resp, nil
}

func (c *Client) refresh(ctx context.Context, origin *url.URL, token string) error {
	if c.refreshGroup == nil {
		return c.doRefresh(ctx, origin, token)
	}

	_, err, shared := c.refreshGroup.Do(origin.String(), func() (any, error) {
		return nil, c.doRefresh(ctx, origin, token)
	})
	if shared {
		slogctx.Debug(ctx, "Shared an in-flight session refresh", "origin", origin.String())
	}

	return err
}

func (c *Client) doRefresh(ctx context.Context, origin *url.URL, token string) error {
	u := origin.JoinPath(RefreshPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set(HeaderName, token)
	c.decorate(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.meters.refreshed(ctx, false)
		return fmt.Errorf("executing refresh request: %w", err)
	}
	drain(resp)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.meters.refreshed(ctx, ok)
	if !ok {
		return fmt.Errorf("refresh endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) unauthorized(ctx context.Context, cause error) error {
	c.meters.unauthorized(ctx)
	return fmt.Errorf("%w: %v", ErrUnauthorized, cause)
}

// resolve turns raw into an absolute URL, resolving relative references
// against the base URL.
func (c *Client) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}

	return c.baseURL.ResolveReference(u), nil
}

func originOf(u *url.URL) *url.URL {
	return &url.URL{Scheme: u.Scheme, Host: u.Host}
}
