package httpserver

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-seed/internal/health"
	"github.com/keithlinneman/linnemanlabs-seed/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
)

type Options struct {
	Logger log.Logger

	// Port is ignored when Listener is set.
	Port     int
	Listener net.Listener

	// Routes mounts the API onto the router.
	Routes func(chi.Router)

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	Health    health.Checker
	Readiness health.Checker
}
