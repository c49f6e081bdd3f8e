package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yanizio/keel/internal/metrics"
)

func TestSecurityKeepsHandlerValues(t *testing.T) {
	h := Security(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if w.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("headers must be set before the handler runs")
		}
		w.Header().Set("Referrer-Policy", "origin")
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("Referrer-Policy"); got != "origin" {
		t.Fatalf("Referrer-Policy = %q", got)
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("missing HSTS")
	}
}

func TestAccessCountsByRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Access)
	r.Get("/posts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("/posts/{id}", "202"))
	for _, p := range []string{"/posts/1", "/posts/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", p, nil))
	}
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("/posts/{id}", "202"))
	if after-before != 2 {
		t.Fatalf("counted %v requests, want 2", after-before)
	}
}
