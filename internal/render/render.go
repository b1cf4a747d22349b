// Package render fetches markup for a site route by calling back into the
// site's own web server, the way a browser would, so that the output matches
// what visitors see.
//
// The loopback target (LocalServer) and the public hostname (HostDomain) are
// configured separately: link generation on the site keys off the Host
// header, and the rendering host is rarely the public one. Redirects are not
// followed; a route that redirects comes back as a non-200 warning.
package render

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

const (
	// RevisionParam asks the site to render a specific revision.
	RevisionParam = "quant_revision"

	DefaultLocalServer = "http://localhost"
	DefaultTimeout     = 30 * time.Second

	// error bodies are echoed to operators, cap what we keep
	maxDiagnosticBody = 8 << 10
)

// Reporter receives operator-visible warnings.
type Reporter interface {
	Warn(ctx context.Context, msg string)
}

// Metrics is implemented by the metrics package.
type Metrics interface {
	ObserveRender(code string, seconds float64)
}

type Options struct {
	// LocalServer is the base URL of the loopback target, e.g. http://localhost:8080.
	LocalServer string

	// HostDomain overrides the Host header. Empty falls back to the inbound
	// request host, then to the LocalServer host.
	HostDomain string

	// Client defaults to an otelhttp-instrumented client with DefaultTimeout.
	Client *http.Client

	Reporter Reporter
	Logger   log.Logger
	Metrics  Metrics
}

type Renderer struct {
	base       *url.URL
	hostDomain string
	client     *http.Client
	reporter   Reporter
	logger     log.Logger
	metrics    Metrics
}

func New(opts Options) (*Renderer, error) {
	if opts.LocalServer == "" {
		opts.LocalServer = DefaultLocalServer
	}
	base, err := url.Parse(opts.LocalServer)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse local server %q", opts.LocalServer)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, xerrors.Newf("local server must be an http(s) URL (got %q)", opts.LocalServer)
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	var c http.Client
	if opts.Client != nil {
		c = *opts.Client
	} else {
		c = http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
		}
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Renderer{
		base:       base,
		hostDomain: opts.HostDomain,
		client:     &c,
		reporter:   opts.Reporter,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

type inboundKey struct{}

// WithInbound carries the request that triggered the export so Render can
// reuse its basic-auth credentials and host.
func WithInbound(ctx context.Context, r *http.Request) context.Context {
	if r == nil {
		return ctx
	}
	return context.WithValue(ctx, inboundKey{}, r)
}

func inbound(ctx context.Context) *http.Request {
	r, _ := ctx.Value(inboundKey{}).(*http.Request)
	return r
}

// URL builds the loopback URL for route with query merged over any query
// already present on route.
func (r *Renderer) URL(route string, query url.Values) (*url.URL, error) {
	if !strings.HasPrefix(route, "/") {
		return nil, xerrors.Newf("route %q must start with /", route)
	}
	ru, err := url.Parse(route)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse route %q", route)
	}

	u := *r.base
	u.Path = strings.TrimSuffix(r.base.Path, "/") + ru.Path
	u.RawPath = ""
	q := ru.Query()
	for k, v := range query {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return &u, nil
}

func (r *Renderer) host(ctx context.Context) string {
	if r.hostDomain != "" {
		return r.hostDomain
	}
	if in := inbound(ctx); in != nil && in.Host != "" {
		if h, _, err := net.SplitHostPort(in.Host); err == nil {
			return h
		}
		return in.Host
	}
	return ""
}

// Render returns the markup served for route. A non-200 answer or a failed
// connection is reported to operators and yields "" with a nil error; the
// error is reserved for requests that could not be built at all.
func (r *Renderer) Render(ctx context.Context, route string, query url.Values) (string, error) {
	u, err := r.URL(route, query)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", xerrors.Wrapf(err, "build request for %s", route)
	}
	if h := r.host(ctx); h != "" {
		req.Host = h
	}
	if in := inbound(ctx); in != nil {
		if user, pass, ok := in.BasicAuth(); ok && user != "" {
			req.SetBasicAuth(user, pass)
		}
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.observe("error", start)
		r.logger.Warn(ctx, "render request failed", "route", route, "url", u.Redacted(), "error", err)
		r.warn(ctx, fmt.Sprintf("Quant error: %v", err))
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		r.observe("200", start)
		if err != nil {
			r.logger.Warn(ctx, "render body read failed", "route", route, "error", err)
			r.warn(ctx, fmt.Sprintf("Quant error: %v", err))
			return "", nil
		}
		return string(body), nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
	r.observe(fmt.Sprintf("%d", resp.StatusCode), start)
	r.logger.Warn(ctx, "render returned non-200",
		"route", route,
		"status", resp.StatusCode,
		"host", req.Host,
	)
	r.warn(ctx, fmt.Sprintf("Quant error: %d", resp.StatusCode))
	r.warn(ctx, "Quant error: "+string(body))
	return "", nil
}

func (r *Renderer) warn(ctx context.Context, msg string) {
	if r.reporter != nil {
		r.reporter.Warn(ctx, msg)
	}
}

func (r *Renderer) observe(code string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveRender(code, time.Since(start).Seconds())
	}
}
