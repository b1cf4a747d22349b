package opshttp

import (
	"net"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-seed/internal/health"
)

type Options struct {
	// Port defaults to 9000 and is ignored when Listener is set.
	Port     int
	Listener net.Listener

	Metrics     http.Handler
	EnablePprof bool
	Health      health.Checker
	Readiness   health.Checker

	UseRecoverMW bool
	OnPanic      func()
}
