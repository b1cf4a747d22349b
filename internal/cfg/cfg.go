package cfg

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/tokenstore"
)

// EnvPrefix is prepended to upper-cased flag names: --local-server reads
// SEED_LOCAL_SERVER.
const EnvPrefix = "SEED_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	EnablePprof bool
	APIRate     float64
	APIBurst    int
	TrustedHops int
	DrainPeriod time.Duration

	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	LocalServer     string
	HostDomain      string
	RenderTimeout   time.Duration
	ManifestPath    string
	AssetRoot       string
	OutputDir       string
	S3Bucket        string
	S3Prefix        string
	S3SkipUnchanged bool
	DryRun          bool
	PreviewTokens   bool
	SeedRate        float64
	SeedBurst       int
	PushGateway     string

	DBDriver         string
	DatabaseURL      string
	DatabaseSSMParam string
	AutoMigrate      bool
	PurgeInterval    time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *pflag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "token API listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.Float64Var(&c.APIRate, "api-rate", 20, "token API requests per second per client ip")
	fs.IntVar(&c.APIBurst, "api-burst", 40, "token API burst per client ip")
	fs.IntVar(&c.TrustedHops, "trusted-proxies", 0, "reverse proxies in front of the token API (0 ignores X-Forwarded-For)")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 15*time.Second, "how long serve fails readiness before shutting down")

	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in --pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.LocalServer, "local-server", "http://localhost", "base url the site is rendered from")
	fs.StringVar(&c.HostDomain, "host-domain", "", "Host header sent with render requests (default: inbound or local server host)")
	fs.DurationVar(&c.RenderTimeout, "render-timeout", 30*time.Second, "per-route render timeout")
	fs.StringVar(&c.ManifestPath, "manifest", "", "YAML manifest listing items, routes and files to export")
	fs.StringVar(&c.AssetRoot, "asset-root", "", "directory static files are read from")
	fs.StringVar(&c.OutputDir, "output-dir", "", "write exports under this directory")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "upload exports to this bucket")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "", "key prefix for uploaded exports")
	fs.BoolVar(&c.S3SkipUnchanged, "s3-skip-unchanged", true, "skip uploads whose sha256 matches the stored object")
	fs.BoolVar(&c.DryRun, "dry-run", false, "log exports instead of delivering them")
	fs.BoolVar(&c.PreviewTokens, "preview-tokens", false, "mint a preview token for each unpublished item")
	fs.Float64Var(&c.SeedRate, "seed-rate", 0, "exports per second (0 = unthrottled)")
	fs.IntVar(&c.SeedBurst, "seed-burst", 1, "export burst when --seed-rate is set")
	fs.StringVar(&c.PushGateway, "push-gateway", "", "push seed run metrics to this Prometheus Pushgateway url")

	fs.StringVar(&c.DBDriver, "db-driver", "sqlite", "token store driver: postgres|sqlite")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "token store DSN (postgres url or sqlite path)")
	fs.StringVar(&c.DatabaseSSMParam, "database-ssm-param", "", "ssm parameter holding the token store DSN")
	fs.BoolVar(&c.AutoMigrate, "auto-migrate", true, "apply token store migrations on startup")
	fs.DurationVar(&c.PurgeInterval, "purge-interval", 10*time.Minute, "how often serve deletes expired tokens (0 disables)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *pflag.FlagSet, prefix string, logf func(string, ...any)) {
	fs.VisitAll(func(f *pflag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if f.Changed {
			if logf != nil {
				logf("flag --%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = f.Value.Set(prev)
			f.Changed = false
			if logf != nil {
				logf("flag --%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks the settings every command shares.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	if _, err := tokenstore.ParseDialect(c.DBDriver); err != nil {
		errs = append(errs, fmt.Errorf("invalid DB_DRIVER %q: %w", c.DBDriver, err))
	}

	return errors.Join(errs...)
}

// ValidateSeed checks the settings a seed run needs on top of Validate.
func ValidateSeed(c App) error {
	errs := []error{Validate(c), validateRender(c)}

	if c.ManifestPath == "" {
		errs = append(errs, fmt.Errorf("MANIFEST is required"))
	}
	if !c.DryRun && c.OutputDir == "" && c.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("one of OUTPUT_DIR, S3_BUCKET or DRY_RUN is required"))
	}
	if c.SeedRate < 0 {
		errs = append(errs, fmt.Errorf("SEED_RATE must be >= 0 (got %g)", c.SeedRate))
	}
	if c.SeedRate > 0 && c.SeedBurst < 1 {
		errs = append(errs, fmt.Errorf("SEED_BURST must be >= 1 (got %d)", c.SeedBurst))
	}
	if c.PushGateway != "" {
		if u, err := url.Parse(c.PushGateway); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUSH_GATEWAY must be a URL (got %q)", c.PushGateway))
		}
	}
	if c.PreviewTokens {
		errs = append(errs, validateDatabase(c))
	}
	return errors.Join(errs...)
}

// ValidateServe checks the settings the token API listener needs.
func ValidateServe(c App) error {
	errs := []error{Validate(c), validateDatabase(c), validateRender(c)}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES must be >= 0 (got %d)", c.TrustedHops))
	}
	if c.DrainPeriod < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_PERIOD must be >= 0 (got %s)", c.DrainPeriod))
	}
	if c.PurgeInterval < 0 {
		errs = append(errs, fmt.Errorf("PURGE_INTERVAL must be >= 0 (got %s)", c.PurgeInterval))
	}
	if c.APIRate <= 0 || c.APIBurst < 1 {
		errs = append(errs, fmt.Errorf("API_RATE must be > 0 and API_BURST >= 1 (got %g, %d)", c.APIRate, c.APIBurst))
	}
	return errors.Join(errs...)
}

// ValidateDatabase checks that a token store DSN can be resolved.
func ValidateDatabase(c App) error {
	return errors.Join(Validate(c), validateDatabase(c))
}

// validateRender checks the loopback settings; serve renders previews too.
func validateRender(c App) error {
	var errs []error
	if u, err := url.Parse(c.LocalServer); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("LOCAL_SERVER must be an http(s) URL (got %q)", c.LocalServer))
	}
	if c.HostDomain != "" && strings.ContainsAny(c.HostDomain, "/ ") {
		errs = append(errs, fmt.Errorf("HOST_DOMAIN must be a bare host (got %q)", c.HostDomain))
	}
	if c.RenderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RENDER_TIMEOUT must be positive (got %s)", c.RenderTimeout))
	}
	return errors.Join(errs...)
}

func validateDatabase(c App) error {
	if c.DatabaseURL == "" && c.DatabaseSSMParam == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_SSM_PARAM is required")
	}
	return nil
}
