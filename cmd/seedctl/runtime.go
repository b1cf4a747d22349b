package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-seed/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-seed/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-seed/internal/prof"
	"github.com/keithlinneman/linnemanlabs-seed/internal/render"
	"github.com/keithlinneman/linnemanlabs-seed/internal/tokenstore"
	v "github.com/keithlinneman/linnemanlabs-seed/internal/version"
)

// runtime holds what every command sets up before doing its work.
type runtime struct {
	conf      *cfg.App
	component string
	L         log.Logger
	m         *metrics.ServerMetrics

	stopProf     func()
	shutdownOTEL func(context.Context) error

	aws *aws.Config
}

func newLogger(conf *cfg.App, component string) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", conf.LogLevel, err)
	}
	stack, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid stacktrace level %s: %w", conf.StacktraceLevel, err)
	}
	return log.New(log.Options{
		App:               v.AppName,
		Component:         component,
		Version:           v.Version,
		Level:             lvl,
		StacktraceLevel:   stack,
		JsonFormat:        conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
		Writer:            os.Stderr,
	})
}

// start validates conf with validate, then brings up logging, profiling,
// tracing and metrics. The returned context carries the logger.
func start(ctx context.Context, conf *cfg.App, component string, validate func(cfg.App) error) (context.Context, *runtime, error) {
	if err := validate(*conf); err != nil {
		return ctx, nil, fmt.Errorf("config error: %w", err)
	}
	L, err := newLogger(conf, component)
	if err != nil {
		return ctx, nil, err
	}
	ctx = log.WithContext(ctx, L)

	vi := v.Get()
	rt := &runtime{conf: conf, component: component, L: L, m: metrics.New()}
	rt.m.SetBuildInfoFromVersion(v.AppName, component, &vi)

	L.Info(ctx, "initializing",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"db_driver", conf.DBDriver,
	)

	rt.stopProf, err = prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": component,
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
		OnActive: rt.m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}

	// the collector runs on localhost
	rt.shutdownOTEL, err = otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		rt.shutdownOTEL = func(context.Context) error { return nil }
	}
	return ctx, rt, nil
}

// close flushes traces and stops the profiler.
func (rt *runtime) close(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.shutdownOTEL(sctx); err != nil {
		rt.L.Error(ctx, err, "otel shutdown")
	}
	rt.stopProf()
	_ = rt.L.Sync()
}

func (rt *runtime) awsConfig(ctx context.Context) (aws.Config, error) {
	if rt.aws != nil {
		return *rt.aws, nil
	}
	c, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	rt.aws = &c
	return c, nil
}

// openStore resolves the DSN (reading SSM when configured), connects and
// applies migrations when AutoMigrate is on.
func (rt *runtime) openStore(ctx context.Context) (*sql.DB, *tokenstore.SQL, error) {
	d, err := tokenstore.ParseDialect(rt.conf.DBDriver)
	if err != nil {
		return nil, nil, err
	}

	var client cfg.SSMAPI
	if rt.conf.DatabaseURL == "" {
		awsCfg, err := rt.awsConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		client = ssm.NewFromConfig(awsCfg)
	}
	dsn, err := cfg.ResolveDatabaseURL(ctx, *rt.conf, client)
	if err != nil {
		return nil, nil, err
	}

	db, err := tokenstore.Open(ctx, d, dsn)
	if err != nil {
		return nil, nil, err
	}
	if rt.conf.AutoMigrate {
		if err := tokenstore.Migrate(ctx, db, d); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	rt.L.Info(ctx, "token store ready", "driver", string(d))
	return db, tokenstore.NewSQL(db, d), nil
}

// renderer builds the loopback renderer. reporter may be nil; warnings are
// logged either way.
func (rt *runtime) renderer(reporter render.Reporter) (*render.Renderer, error) {
	return render.New(render.Options{
		LocalServer: rt.conf.LocalServer,
		HostDomain:  rt.conf.HostDomain,
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   rt.conf.RenderTimeout,
		},
		Reporter: reporter,
		Logger:   rt.L,
		Metrics:  rt.m,
	})
}
