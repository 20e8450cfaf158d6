package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/edusys/core"
)

const (
	RefreshPath = "token/refresh/"

	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	requestIDHeader = "X-Request-ID"
	defaultTimeout  = 30 * time.Second
)

// Option configures a Gateway.
type Option func(*Gateway)

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.client.Timeout = d }
}

// WithJar sets the jar holding the credential cookies.
func WithJar(jar http.CookieJar) Option {
	return func(g *Gateway) { g.client.Jar = jar }
}

// WithTransport sets the transport used for every call.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) { g.client.Transport = rt }
}

// Gateway sends requests to the API with the credential cookies attached.
// A 401 triggers one refresh of the credentials and one retry of the request.
// When the refresh fails, the credentials are cleared and the forced-logout handlers are called.
type Gateway struct {
	base   *url.URL
	client *http.Client
	logger core.Logger

	refreshes singleflight.Group

	mu       sync.RWMutex
	handlers []func(error)
}

func New(baseURL string, logger core.Logger, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing base URL")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base URL must be absolute: %q", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	g := &Gateway{
		base:   base,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, errors.Wrap(err, "creating cookie jar")
		}
		g.client.Jar = jar
	}
	return g, nil
}

func (g *Gateway) BaseURL() *url.URL {
	u := *g.base
	return &u
}

// OnForcedLogout registers fn to be called when a failed refresh ends the session.
func (g *Gateway) OnForcedLogout(fn func(error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, fn)
}

func (g *Gateway) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := g.Send(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (g *Gateway) Post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := g.Send(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Send issues r and returns its 2xx response.
// Errors are *NetworkError, *AuthorizationError or *ServerError.
func (g *Gateway) Send(ctx context.Context, r Request) (*Response, error) {
	pr, err := newPendingRequest(g.base, r)
	if err != nil {
		return nil, err
	}

	resp, err := g.do(ctx, pr)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !pr.retried {
		if err = g.refresh(ctx, pr); err != nil {
			return nil, err
		}
		pr = pr.markRetried()
		if resp, err = g.do(ctx, pr); err != nil {
			return nil, err
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized:
		// already retried: no second refresh
		return nil, &AuthorizationError{Err: &ServerError{Status: resp.StatusCode, Body: resp.Body}}
	default:
		return nil, &ServerError{Status: resp.StatusCode, Body: resp.Body}
	}
}

// refresh rotates the credential cookies. Concurrent refreshes share one network call,
// which outlives the cancellation of the request that started it.
func (g *Gateway) refresh(ctx context.Context, pr pendingRequest) error {
	_, err, _ := g.refreshes.Do(RefreshPath, func() (interface{}, error) {
		g.logger.Debug(fmt.Sprintf("refreshing credentials after 401 on %s %s", pr.method, pr.url),
			map[string]interface{}{"request_id": pr.id})

		rpr, err := newPendingRequest(g.base, Request{Method: http.MethodPost, Path: RefreshPath, Body: struct{}{}})
		if err != nil {
			return nil, err
		}
		resp, err := g.do(context.WithoutCancel(ctx), rpr.markRetried())
		if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
			err = &ServerError{Status: resp.StatusCode, Body: resp.Body}
		}
		if err != nil {
			g.forceLogout(err)
			return nil, &AuthorizationError{Err: errors.Wrap(err, "refreshing credentials")}
		}
		return nil, nil
	})
	return err
}

func (g *Gateway) forceLogout(cause error) {
	g.logger.Warn("credentials refresh failed: forcing logout", cause)
	g.ClearCredentials()

	g.mu.RLock()
	handlers := make([]func(error), len(g.handlers))
	copy(handlers, g.handlers)
	g.mu.RUnlock()

	for _, fn := range handlers {
		fn(cause)
	}
}

// ClearCredentials expires the credential cookies held for the API.
func (g *Gateway) ClearCredentials() {
	if c, ok := g.client.Jar.(interface{ Clear() error }); ok {
		if err := c.Clear(); err != nil {
			g.logger.Error("clearing cookie jar", err)
		}
		return
	}
	expired := make([]*http.Cookie, 0, 2)
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		expired = append(expired, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
	g.client.Jar.SetCookies(g.base, expired)
}

func (g *Gateway) do(ctx context.Context, pr pendingRequest) (*Response, error) {
	var body io.Reader
	if pr.body != nil {
		body = bytes.NewReader(pr.body)
	}
	req, err := http.NewRequestWithContext(ctx, pr.method, pr.url, body)
	if err != nil {
		return nil, &NetworkError{Method: pr.method, URL: pr.url, Err: err}
	}
	req.Header = pr.header.Clone()
	req.Header.Set(requestIDHeader, pr.id)

	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &NetworkError{Method: pr.method, URL: pr.url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: pr.method, URL: pr.url, Err: errors.Wrap(err, "reading response body")}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
