package cfg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/spf13/pflag"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestFlags registers flags on a fresh FlagSet and parses args.
func newTestFlags(t *testing.T, args []string) (*pflag.FlagSet, *App) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return fs, &c
}

func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	_, c := newTestFlags(t, args)
	return *c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if !c.LogJSON {
		t.Error("LogJSON: want true")
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel: want %q, got %q", "info", c.LogLevel)
	}
	if c.HTTPPort != 8080 || c.AdminPort != 9000 {
		t.Errorf("ports: got %d/%d", c.HTTPPort, c.AdminPort)
	}
	if c.LocalServer != "http://localhost" {
		t.Errorf("LocalServer: got %q", c.LocalServer)
	}
	if c.HostDomain != "" {
		t.Errorf("HostDomain: got %q", c.HostDomain)
	}
	if c.RenderTimeout != 30*time.Second {
		t.Errorf("RenderTimeout: got %s", c.RenderTimeout)
	}
	if c.DBDriver != "sqlite" || !c.AutoMigrate {
		t.Errorf("db: driver %q auto-migrate %v", c.DBDriver, c.AutoMigrate)
	}
	if !c.S3SkipUnchanged || c.DryRun || c.PreviewTokens {
		t.Errorf("seed toggles: %+v", c)
	}
	if c.StacktraceLevel != "error" {
		t.Errorf("StacktraceLevel: want %q, got %q", "error", c.StacktraceLevel)
	}
	if c.DrainPeriod != 15*time.Second || c.TrustedHops != 0 {
		t.Errorf("drain %s trusted hops %d", c.DrainPeriod, c.TrustedHops)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"--log-json=false",
		"--log-level=debug",
		"--local-server=http://127.0.0.1:8081",
		"--host-domain=www.example.com",
		"--render-timeout=5s",
		"--manifest=/etc/seed/manifest.yaml",
		"--asset-root=/var/www/html",
		"--s3-bucket=site-bucket",
		"--s3-prefix=main",
		"--preview-tokens",
		"--seed-rate=2.5",
		"--db-driver=postgres",
		"--database-ssm-param=/seed/dsn",
	})

	if c.LogJSON || c.LogLevel != "debug" {
		t.Errorf("logging: %v %q", c.LogJSON, c.LogLevel)
	}
	if c.LocalServer != "http://127.0.0.1:8081" || c.HostDomain != "www.example.com" {
		t.Errorf("render: %q %q", c.LocalServer, c.HostDomain)
	}
	if c.RenderTimeout != 5*time.Second {
		t.Errorf("RenderTimeout: %s", c.RenderTimeout)
	}
	if c.ManifestPath != "/etc/seed/manifest.yaml" || c.AssetRoot != "/var/www/html" {
		t.Errorf("paths: %q %q", c.ManifestPath, c.AssetRoot)
	}
	if c.S3Bucket != "site-bucket" || c.S3Prefix != "main" {
		t.Errorf("s3: %q %q", c.S3Bucket, c.S3Prefix)
	}
	if !c.PreviewTokens || c.SeedRate != 2.5 {
		t.Errorf("seed: %v %g", c.PreviewTokens, c.SeedRate)
	}
	if c.DBDriver != "postgres" || c.DatabaseSSMParam != "/seed/dsn" {
		t.Errorf("db: %q %q", c.DBDriver, c.DatabaseSSMParam)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"LOG_JSON", "false")
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"TRACE_SAMPLE", "0.25")
	t.Setenv(pfx+"LOCAL_SERVER", "http://web:8080")
	t.Setenv(pfx+"HOST_DOMAIN", "www.example.org")
	t.Setenv(pfx+"DATABASE_URL", "postgres://seed@db/seed")
	t.Setenv(pfx+"RENDER_TIMEOUT", "10s")

	fs, c := newTestFlags(t, nil)
	FillFromEnv(fs, pfx, nil)

	if c.LogJSON {
		t.Error("LogJSON: want false from env")
	}
	if c.HTTPPort != 8088 {
		t.Errorf("HTTPPort: want 8088, got %d", c.HTTPPort)
	}
	if c.TraceSample != 0.25 {
		t.Errorf("TraceSample: want 0.25, got %f", c.TraceSample)
	}
	if c.LocalServer != "http://web:8080" || c.HostDomain != "www.example.org" {
		t.Errorf("render: %q %q", c.LocalServer, c.HostDomain)
	}
	if c.DatabaseURL != "postgres://seed@db/seed" {
		t.Errorf("DatabaseURL: %q", c.DatabaseURL)
	}
	if c.RenderTimeout != 10*time.Second {
		t.Errorf("RenderTimeout: %s", c.RenderTimeout)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	pfx := "TESTCFG2_"
	t.Setenv(pfx+"HTTP_PORT", "7777")
	t.Setenv(pfx+"LOG_LEVEL", "warn")
	t.Setenv(pfx+"ENABLE_PPROF", "false")

	fs, c := newTestFlags(t, []string{"--http-port=9090", "--log-level=debug", "--enable-pprof=true"})

	var overrideMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		overrideMessages = append(overrideMessages, fmt.Sprintf(format, args...))
	})

	// CLI wins
	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090 (cli), got %d", c.HTTPPort)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q (cli), got %q", "debug", c.LogLevel)
	}
	if !c.EnablePprof {
		t.Error("EnablePprof: want true (cli)")
	}

	if len(overrideMessages) != 3 {
		t.Errorf("expected 3 override messages, got %d: %v", len(overrideMessages), overrideMessages)
	}
	for _, msg := range overrideMessages {
		if !strings.Contains(msg, "overrides env") {
			t.Errorf("unexpected override message format: %s", msg)
		}
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"HTTP_PORT", "not-a-number")

	fs, c := newTestFlags(t, nil)

	var logMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		logMessages = append(logMessages, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080 (default), got %d", c.HTTPPort)
	}
	if fs.Changed("http-port") {
		t.Error("rejected env value must not mark the flag as set")
	}
	if len(logMessages) != 1 {
		t.Fatalf("expected 1 log message, got %d: %v", len(logMessages), logMessages)
	}
	if !strings.Contains(logMessages[0], "ignoring invalid env") {
		t.Errorf("unexpected log message: %s", logMessages[0])
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"--enable-pyroscope=true",
		"--pyro-server=https://pyro:4040",
		"--pyro-tenant=test-tenant",
		"--enable-tracing=true",
		"--otlp-endpoint=otel:4317",
		"--trace-sample=0.2",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"--log-level=nope",
		"--stacktrace-level=alsonope",
		"--trace-sample=2.0",
		"--enable-pyroscope=true",
		"--pyro-server=not-a-url",
		"--enable-tracing=true",
		"--otlp-endpoint=otel",
		"--include-error-links=true",
		"--max-error-links=0",
		"--db-driver=mysql",
	})

	err := Validate(c)
	wantErrContains(t, err, "invalid LOG_LEVEL")
	wantErrContains(t, err, "invalid STACKTRACE_LEVEL")
	wantErrContains(t, err, "invalid TRACE_SAMPLE")
	wantErrContains(t, err, "PYRO_SERVER must be a URL")
	wantErrContains(t, err, "PYRO_TENANT required")
	wantErrContains(t, err, "OTLP_ENDPOINT must be host:port")
	wantErrContains(t, err, "MAX_ERROR_LINKS")
	wantErrContains(t, err, "invalid DB_DRIVER")
}

func TestValidateSeed(t *testing.T) {
	ok := newTestConfig(t, []string{"--manifest=m.yaml", "--output-dir=out"})
	if err := ValidateSeed(ok); err != nil {
		t.Fatalf("ValidateSeed: %v", err)
	}

	bad := newTestConfig(t, []string{
		"--local-server=localhost:8080",
		"--host-domain=http://x/",
		"--render-timeout=0s",
		"--seed-rate=-1",
		"--push-gateway=pushgw:9091",
		"--preview-tokens",
	})
	err := ValidateSeed(bad)
	wantErrContains(t, err, "LOCAL_SERVER must be an http(s) URL")
	wantErrContains(t, err, "HOST_DOMAIN must be a bare host")
	wantErrContains(t, err, "RENDER_TIMEOUT")
	wantErrContains(t, err, "MANIFEST is required")
	wantErrContains(t, err, "one of OUTPUT_DIR, S3_BUCKET or DRY_RUN")
	wantErrContains(t, err, "SEED_RATE")
	wantErrContains(t, err, "PUSH_GATEWAY must be a URL")
	wantErrContains(t, err, "DATABASE_URL or DATABASE_SSM_PARAM")
}

func TestValidateServe(t *testing.T) {
	ok := newTestConfig(t, []string{"--database-url=tokens.db"})
	if err := ValidateServe(ok); err != nil {
		t.Fatalf("ValidateServe: %v", err)
	}

	bad := newTestConfig(t, []string{"--http-port=0", "--admin-port=70000", "--api-rate=0", "--purge-interval=-1s", "--trusted-proxies=-1", "--drain-period=-5s"})
	err := ValidateServe(bad)
	wantErrContains(t, err, "TRUSTED_PROXIES")
	wantErrContains(t, err, "DRAIN_PERIOD")
	wantErrContains(t, err, "invalid HTTP_PORT")
	wantErrContains(t, err, "invalid ADMIN_PORT")
	wantErrContains(t, err, "API_RATE")
	wantErrContains(t, err, "PURGE_INTERVAL")
	wantErrContains(t, err, "DATABASE_URL or DATABASE_SSM_PARAM")

	noLoopback := newTestConfig(t, []string{"--database-url=x", "--local-server=localhost"})
	wantErrContains(t, ValidateServe(noLoopback), "LOCAL_SERVER")

	same := newTestConfig(t, []string{"--database-url=x", "--http-port=9000"})
	wantErrContains(t, ValidateServe(same), "must differ")
}

type fakeSSM struct {
	value *string
	err   error
	names []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.names = append(f.names, aws.ToString(in.Name))
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: f.value}}, nil
}

func TestResolveDatabaseURL(t *testing.T) {
	ctx := context.Background()

	direct := &fakeSSM{}
	got, err := ResolveDatabaseURL(ctx, App{DatabaseURL: "tokens.db", DatabaseSSMParam: "/p"}, direct)
	if err != nil || got != "tokens.db" || len(direct.names) != 0 {
		t.Fatalf("direct url: %q %v %v", got, err, direct.names)
	}

	fromSSM := &fakeSSM{value: aws.String("  postgres://seed@db/seed \n")}
	got, err = ResolveDatabaseURL(ctx, App{DatabaseSSMParam: "/seed/dsn"}, fromSSM)
	if err != nil || got != "postgres://seed@db/seed" {
		t.Fatalf("ssm url: %q %v", got, err)
	}
	if len(fromSSM.names) != 1 || fromSSM.names[0] != "/seed/dsn" {
		t.Fatalf("names = %v", fromSSM.names)
	}

	for name, f := range map[string]*fakeSSM{
		"error": {err: errors.New("AccessDeniedException")},
		"nil":   {},
		"empty": {value: aws.String("   ")},
	} {
		if _, err := ResolveDatabaseURL(ctx, App{DatabaseSSMParam: "/p"}, f); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := ResolveDatabaseURL(ctx, App{}, nil); err == nil {
		t.Fatal("no source configured should error")
	}
}
