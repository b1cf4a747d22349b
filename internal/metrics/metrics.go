// Package metrics owns the process Prometheus registry: HTTP RED metrics for
// the token API, seed export counters, token lifecycle counters and build
// info. Components depend on small interfaces declared in their own packages;
// *ServerMetrics satisfies all of them.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/keithlinneman/linnemanlabs-seed/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// seed
	exportsTotal      *prometheus.CounterVec
	emittedTotal      *prometheus.CounterVec
	renderTotal       *prometheus.CounterVec
	renderDur         prometheus.Histogram
	batchDur          *prometheus.HistogramVec
	batchLastSuccess  prometheus.Gauge
	tokensIssued      prometheus.Counter
	tokenCreateFailed prometheus.Counter
	tokenRedemptions  *prometheus.CounterVec
	tokensPurged      prometheus.Counter
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seed_exports_total",
			Help: "Export operations by kind (node, route, file) and result",
		}, []string{"kind", "result"}),
		emittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seed_events_emitted_total",
			Help: "Events handed to sinks by kind (page, file)",
		}, []string{"kind"}),
		renderTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seed_render_requests_total",
			Help: "Loopback render requests by status class",
		}, []string{"class"}),
		renderDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seed_render_duration_seconds",
			Help:    "Loopback render latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		batchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seed_batch_duration_seconds",
			Help:    "Seed run duration by result",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}, []string{"result"}),
		batchLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seed_batch_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last seed run that finished without a fatal error",
		}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seed_tokens_issued_total",
			Help: "Preview tokens created",
		}),
		tokenCreateFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seed_token_create_failures_total",
			Help: "Preview tokens that could not be persisted",
		}),
		tokenRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seed_token_redemptions_total",
			Help: "Token redemption attempts by outcome",
		}, []string{"outcome"}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seed_tokens_purged_total",
			Help: "Expired tokens removed by purge",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.exportsTotal,
		m.emittedTotal,
		m.renderTotal,
		m.renderDur,
		m.batchDur,
		m.batchLastSuccess,
		m.tokensIssued,
		m.tokenCreateFailed,
		m.tokenRedemptions,
		m.tokensPurged,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// Registry exposes the registry for components that push or gather directly.
func (m *ServerMetrics) Registry() *prometheus.Registry {
	return m.reg
}

// Push replaces the job's metrics on a Pushgateway. A seed run exits before
// anything could scrape it.
func (m *ServerMetrics) Push(ctx context.Context, gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.reg).PushContext(ctx)
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncExport(kind, result string) {
	m.exportsTotal.WithLabelValues(kind, result).Inc()
}

func (m *ServerMetrics) IncEmitted(kind string) {
	m.emittedTotal.WithLabelValues(kind).Inc()
}

// ObserveRender records one loopback render. code is the HTTP status or
// "error" for transport failures; it is folded into a status class.
func (m *ServerMetrics) ObserveRender(code string, seconds float64) {
	m.renderTotal.WithLabelValues(statusClass(code)).Inc()
	m.renderDur.Observe(seconds)
}

func (m *ServerMetrics) ObserveBatch(result string, seconds float64) {
	m.batchDur.WithLabelValues(result).Observe(seconds)
	if result == "ok" {
		m.batchLastSuccess.Set(float64(time.Now().Unix()))
	}
}

func (m *ServerMetrics) IncTokensIssued() {
	m.tokensIssued.Inc()
}

func (m *ServerMetrics) IncTokensFailed() {
	m.tokenCreateFailed.Inc()
}

func (m *ServerMetrics) IncTokenRedemption(outcome string) {
	m.tokenRedemptions.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) AddTokensPurged(n int64) {
	if n > 0 {
		m.tokensPurged.Add(float64(n))
	}
}

func statusClass(code string) string {
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 || n > 599 {
		return "error"
	}
	return strconv.Itoa(n/100) + "xx"
}
