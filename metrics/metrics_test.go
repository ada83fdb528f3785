package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRecompute(time.Millisecond)
	m.ObserveSnapshot("tasks", 3)
	m.WatchError("tasks")
	m.OutboxResult("sent")
	m.SSEClients(1)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveSnapshot("tasks", 7)
	m.ObserveSnapshot("tasks", 4)
	m.WatchError("users")
	m.OutboxResult("sent")
	m.OutboxResult("sent")

	if got := testutil.ToFloat64(m.snapshots.WithLabelValues("tasks")); got != 2 {
		t.Errorf("snapshots = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.documents.WithLabelValues("tasks")); got != 4 {
		t.Errorf("documents = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.watchErrors.WithLabelValues("users")); got != 1 {
		t.Errorf("watch errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.outbox.WithLabelValues("sent")); got != 2 {
		t.Errorf("outbox sent = %v, want 2", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/labels/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/labels/"+id, nil))
	}
	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/labels/{id}", "GET", "404"))
	if got != 3 {
		t.Errorf("requests for pattern = %v, want 3", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "taskadmin_http_requests_total") {
		t.Error("exposition should include taskadmin_http_requests_total")
	}
}
