// Package opshttp serves the admin listener: health checks, Prometheus metrics and
// optionally pprof. It is meant for a private port, never the public one.
package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/keithlinneman/linnemanlabs-seed/internal/health"
	"github.com/keithlinneman/linnemanlabs-seed/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-seed/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

func NewHandler(L log.Logger, opts Options) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/-/healthy", health.HealthzHandler(opts.Health))
	mux.Handle("/-/ready", health.ReadyzHandler(opts.Readiness))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	var h http.Handler = mux
	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}
	return h
}

// RegisterPprof mounts the net/http/pprof handlers under /debug/pprof/.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// Start serves the admin handler and returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, L log.Logger, opts Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	ln := opts.Listener
	if ln == nil {
		port := opts.Port
		if port == 0 {
			port = 9000
		}
		addr := fmt.Sprintf(":%d", port)
		var err error
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, xerrors.Wrapf(err, "could not listen for admin port on addr=%v", addr)
		}
	}
	srv := httpserver.NewServer(ln.Addr().String(), NewHandler(L, opts))
	// profiles stream for up to 30s
	srv.WriteTimeout = 0
	return httpserver.Serve(ctx, L, "ops http server", srv, ln), nil
}
