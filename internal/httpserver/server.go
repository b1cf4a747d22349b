// Package httpserver builds the token API listener: a chi router behind the
// shared middleware stack, plus lifecycle helpers for graceful shutdown.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-seed/internal/health"
	"github.com/keithlinneman/linnemanlabs-seed/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// token requests are tiny JSON documents
const DefaultMaxBodyBytes = 4 << 10

// NewHandler wraps the API routes in the middleware stack. The caller owns
// the *http.Server.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json", "text/plain", "text/html"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxBody))

	r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))

	if opts.Routes != nil {
		opts.Routes(r)
	}

	// wrapping order: the last applied runs first
	var h http.Handler = r
	h = httpmw.WithLogger(opts.Logger)(h)
	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// renamed to the route pattern by AnnotateHTTPRoute
			return r.Method + " " + r.URL.Path
		}),
	)
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)
	h = httpmw.RequestID(httpmw.DefaultRequestIDHeader)(h)
	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}
	return httpmw.APIHeaders(h)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	DefaultShutdownTimeout   = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Serve runs srv on ln in the background and returns an idempotent stop.
// name prefixes the lifecycle log lines.
func Serve(ctx context.Context, L log.Logger, name string, srv *http.Server, ln net.Listener) func(context.Context) error {
	if L == nil {
		L = log.Nop()
	}
	go func() {
		L.Info(ctx, name+" listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, name+" error")
		}
	}()

	var once sync.Once
	return func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, name+" shutting down")
			c, cancel := context.WithTimeout(sctx, DefaultShutdownTimeout)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
}

// Start listens on opts.Port (default 8080) unless opts.Listener is set and
// returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	ln := opts.Listener
	if ln == nil {
		port := opts.Port
		if port == 0 {
			port = 8080
		}
		var err error
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return nil, xerrors.Wrapf(err, "listen on port %d", port)
		}
	}
	srv := NewServer(ln.Addr().String(), NewHandler(opts))
	return Serve(ctx, opts.Logger, "http server", srv, ln), nil
}
