package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// UnmatchedRoute labels requests no chi route claimed, so probing for
// random paths cannot grow label cardinality.
const UnmatchedRoute = "unmatched"

// statusWriter records what the handler sent.
type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.n += n
	return n, err
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Middleware records in-flight requests, totals by route and status,
// latency and response size for the token API.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// give the router a context to fill so the pattern is visible here
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		m.observeRequest(r, sw.code(), sw.n, time.Since(start).Seconds())
	})
}

func (m *ServerMetrics) observeRequest(r *http.Request, code, size int, seconds float64) {
	ctx := r.Context()
	route := RouteLabel(ctx)

	m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	if code >= 500 {
		m.errorsTotal.WithLabelValues(r.Method, route).Inc()
	}

	dur := m.reqDur.WithLabelValues(r.Method, route)
	if eo, ok := dur.(prometheus.ExemplarObserver); ok {
		if ex := traceExemplar(ctx); ex != nil {
			eo.ObserveWithExemplar(seconds, ex)
		} else {
			dur.Observe(seconds)
		}
	} else {
		dur.Observe(seconds)
	}
	m.respBytes.WithLabelValues(r.Method, route).Observe(float64(size))
}

// RouteLabel is the chi pattern that served the request, or UnmatchedRoute.
func RouteLabel(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return UnmatchedRoute
}

// traceExemplar links a latency sample to its trace when one was sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
