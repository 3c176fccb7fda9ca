package httpapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/metrics"
	"github.com/jo25425/dona-sub000/internal/version"
)

type memoryStore struct {
	runs []core.RunRecord
	err  error
}

func (m *memoryStore) Count(_ context.Context, f Filters) (int64, error) {
	rows, err := m.List(context.Background(), f)
	return int64(len(rows)), err
}

func (m *memoryStore) List(_ context.Context, f Filters) ([]core.RunRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []core.RunRecord{}
	for _, r := range m.runs {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestServer(store Store, opts Options) http.Handler {
	return New(store, opts).Handler()
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.1:5555"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleStore() *memoryStore {
	at := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	return &memoryStore{runs: []core.RunRecord{
		{RunID: "a", Source: core.WhatsApp, Outcome: core.OutcomeOK, StartedAt: at},
		{RunID: "b", Source: core.Facebook, Outcome: core.OutcomeFailed, Reason: "NoProfile", StartedAt: at},
	}}
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(sampleStore(), Options{}), "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRunsEndpoint(t *testing.T) {
	h := newTestServer(sampleStore(), Options{})

	rec := get(t, h, "/runs?source=facebook", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("runs status %d: %s", rec.Code, rec.Body.String())
	}
	var runs []core.RunRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "b" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	rec = get(t, h, "/runs/count?outcome=ok", nil)
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("unexpected count body %q", rec.Body.String())
	}

	rec = get(t, h, "/runs?limit=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestRunsStoreError(t *testing.T) {
	h := newTestServer(&memoryStore{err: errors.New("disk gone")}, Options{})
	if rec := get(t, h, "/runs", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestInfoEndpoint(t *testing.T) {
	h := newTestServer(sampleStore(), Options{Build: version.Info{Version: "v1.2.3", Revision: "abc"}})
	rec := get(t, h, "/info", nil)
	var info infoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != "v1.2.3" || info.Revision != "abc" || info.Go == "" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestRateLimit(t *testing.T) {
	m := metrics.New()
	h := newTestServer(sampleStore(), Options{RateLimitRPS: 1, RateLimitBurst: 2, Metrics: m})

	for i := 0; i < 2; i++ {
		if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := get(t, h, "/healthz", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	other := get(t, h, "/healthz", map[string]string{"X-Forwarded-For": "198.51.100.7"})
	if other.Code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", other.Code)
	}

	body := get(t, newTestServer(sampleStore(), Options{Metrics: m}), "/metrics", nil).Body.String()
	if !strings.Contains(body, "dona_http_rate_limited_total 1") {
		t.Fatalf("rate limit not counted:\n%s", body)
	}
	if !strings.Contains(body, `dona_http_requests_total{method="GET",route="/healthz",status="429"} 1`) {
		t.Fatalf("request not observed:\n%s", body)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(sampleStore(), Options{CORSOrigins: []string{"https://dash.test"}})

	rec := get(t, h, "/healthz", map[string]string{"Origin": "https://dash.test"})
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://dash.test" {
		t.Fatalf("missing allow-origin header: %v", rec.Header())
	}

	rec = get(t, h, "/healthz", map[string]string{"Origin": "https://evil.test"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/runs", nil)
	req.Header.Set("Origin", "https://dash.test")
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	if pre.Code != http.StatusNoContent || pre.Header().Get("Access-Control-Allow-Methods") != "GET,OPTIONS" {
		t.Fatalf("unexpected preflight %d %v", pre.Code, pre.Header())
	}
}

func TestGzip(t *testing.T) {
	h := newTestServer(sampleStore(), Options{})
	rec := get(t, h, "/runs", map[string]string{"Accept-Encoding": "gzip"})
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if !strings.Contains(string(data), `"run_id":"a"`) {
		t.Fatalf("unexpected body %s", data)
	}
}

func TestGzipOnlyOnLedgerRoutes(t *testing.T) {
	h := newTestServer(sampleStore(), Options{})
	rec := get(t, h, "/healthz", map[string]string{"Accept-Encoding": "gzip"})
	if rec.Header().Get("Content-Encoding") != "" || rec.Body.String() != "ok" {
		t.Fatalf("healthz should stay uncompressed: %v %q", rec.Header(), rec.Body.String())
	}
}

func TestCORSWildcard(t *testing.T) {
	h := newTestServer(sampleStore(), Options{CORSOrigins: []string{" * "}})

	rec := get(t, h, "/healthz", map[string]string{"Origin": "http://localhost:3000"})
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("wildcard should admit web origins: %d %v", rec.Code, rec.Header())
	}
	if rec := get(t, h, "/healthz", map[string]string{"Origin": "file://"}); rec.Code != http.StatusForbidden {
		t.Fatalf("non-web origin should be rejected, got %d", rec.Code)
	}
}

func TestClientLimitsSweepIdleBuckets(t *testing.T) {
	limits := newClientLimits(1, 1)
	now := time.Now()
	if !limits.allow("a", now) || limits.allow("a", now) {
		t.Fatalf("expected one request per burst")
	}
	limits.allow("b", now)

	later := now.Add(10 * time.Minute)
	if !limits.allow("b", later) {
		t.Fatalf("bucket should have refilled")
	}
	if _, ok := limits.buckets["a"]; ok {
		t.Fatalf("idle bucket should have been swept")
	}
	if newClientLimits(0, 5) != nil {
		t.Fatalf("zero rate disables limiting")
	}
}

func TestInfoBuiltAt(t *testing.T) {
	built := time.Date(2024, time.March, 3, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	rec := get(t, newTestServer(sampleStore(), Options{Build: version.Info{Version: "dev", BuiltAt: built}}), "/info", nil)
	if !strings.Contains(rec.Body.String(), `"built_at":"2024-03-03T11:00:00Z"`) {
		t.Fatalf("unexpected info body %s", rec.Body.String())
	}
}
