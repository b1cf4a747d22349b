package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-seed/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-seed/internal/health"
	"github.com/keithlinneman/linnemanlabs-seed/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-seed/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-seed/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
	"github.com/keithlinneman/linnemanlabs-seed/internal/tokenhttp"
)

func newServeCmd(conf *cfg.App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the preview token API and the admin listener",
		Long: `serve exposes the token API on --http-port:

  POST /api/tokens            mint a token for {"nid": N}
  GET  /api/tokens/validate   redeem ?quant_token=...&nid=N[&strict=false]
  GET  /api/preview/{nid}     render the node for a holder of a token for it,
                              passing the caller's basic auth and host through

Metrics, health checks and pprof are served on --admin-port. Expired tokens
are purged every --purge-interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), conf)
		},
	}
}

func runServe(ctx context.Context, conf *cfg.App) error {
	ctx, rt, err := start(ctx, conf, "serve", cfg.ValidateServe)
	if err != nil {
		return err
	}
	defer rt.close(ctx)
	L, m := rt.L, rt.m

	// cancelled last, after the listeners are gone
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	db, store, err := rt.openStore(ctx)
	if err != nil {
		L.Error(ctx, err, "token store unavailable")
		return err
	}
	defer db.Close()

	tokens, err := token.NewService(token.Options{Store: store, Logger: L, Metrics: m})
	if err != nil {
		return err
	}
	api := tokenhttp.NewAPI(tokens, L)

	rr, err := rt.renderer(nil)
	if err != nil {
		return err
	}
	preview := tokenhttp.NewPreview(tokens, rr, L)

	var gate health.ShutdownGate
	readiness := health.All(gate.Checker(), health.Ping(db, health.DefaultPingTimeout))

	limiter := ratelimit.New(runCtx,
		ratelimit.WithRate(conf.APIRate, conf.APIBurst),
		ratelimit.WithOnDenied(func(string) {
			m.IncRateLimitDenied()
		}),
		// logged once per ip until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new clients until some are evicted")
		}),
	)

	apiStop, err := httpserver.Start(runCtx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Routes: func(r chi.Router) {
			api.RegisterRoutes(r)
			preview.RegisterRoutes(r)
		},
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start token api listener")
		return err
	}
	defer func() { _ = apiStop(context.Background()) }()

	// admin traffic is restricted to internal monitoring at the network layer
	opsStop, err := opshttp.Start(runCtx, L, opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() { _ = opsStop(context.Background()) }()

	if conf.PurgeInterval > 0 {
		go purgeLoop(runCtx, store, conf.PurgeInterval, time.Now, m.AddTokensPurged)
	}

	if err := notifySystemd(); err != nil {
		// systemd kills us after its start timeout if this really mattered
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops routing here
	gate.Set("draining")
	drain(L, conf.DrainPeriod)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "token api shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "ops http shutdown")
	}
	L.Info(shutdownCtx, "shutdown complete")
	return nil
}

// drain waits out period unless a second signal arrives first.
func drain(L log.Logger, period time.Duration) {
	if period <= 0 {
		return
	}
	L.Info(context.Background(), "draining before shutdown", "period", period)
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)
	select {
	case <-time.After(period):
		L.Info(context.Background(), "drain period complete")
	case <-force:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

// purger deletes tokens created before cutoff.
type purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// purgeLoop removes expired tokens every interval until ctx is done.
// Redemption already refuses them; this only keeps the table small.
func purgeLoop(ctx context.Context, p purger, every time.Duration, now func() time.Time, onPurged func(int64)) {
	L := log.FromContext(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Purge(ctx, now().Add(-token.TTL))
			if err != nil {
				if ctx.Err() == nil {
					L.Error(ctx, err, "token purge failed")
				}
				continue
			}
			if n > 0 {
				L.Debug(ctx, "purged expired tokens", "count", n)
			}
			if onPurged != nil {
				onPurged(n)
			}
		}
	}
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
