package opshttp

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-seed/internal/health"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewHandler_HealthEndpoints(t *testing.T) {
	h := NewHandler(log.Nop(), Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(false, "token store unreachable"),
	})
	if rec := get(t, h, "/-/healthy"); rec.Code != http.StatusOK {
		t.Fatalf("healthy = %d", rec.Code)
	}
	rec := get(t, h, "/-/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "token store unreachable") {
		t.Fatalf("ready = %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewHandler_Metrics(t *testing.T) {
	m := metrics.New()
	m.IncTokensIssued()
	h := NewHandler(log.Nop(), Options{Metrics: m.Handler()})

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "seed_tokens_issued_total") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestNewHandler_NoMetrics(t *testing.T) {
	if rec := get(t, NewHandler(log.Nop(), Options{}), "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without handler = %d", rec.Code)
	}
}

func TestNewHandler_Pprof(t *testing.T) {
	if rec := get(t, NewHandler(log.Nop(), Options{}), "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", rec.Code)
	}
	rec := get(t, NewHandler(log.Nop(), Options{EnablePprof: true}), "/debug/pprof/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatalf("pprof enabled = %d", rec.Code)
	}
}

func TestNewHandler_Recover(t *testing.T) {
	var panics int
	m := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("scrape failed") })
	h := NewHandler(log.Nop(), Options{Metrics: m, UseRecoverMW: true, OnPanic: func() { panics++ }})
	if rec := get(t, h, "/metrics"); rec.Code != http.StatusInternalServerError || panics != 1 {
		t.Fatalf("code = %d, panics = %d", rec.Code, panics)
	}
}

func TestStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), Options{Listener: ln})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := "http://" + ln.Addr().String() + "/-/ready"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ready\n" {
		t.Fatalf("body = %q", body)
	}

	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	if _, err := Start(context.Background(), nil, Options{Port: ln.Addr().(*net.TCPAddr).Port}); err == nil {
		t.Fatal("expected listen error")
	}
}
