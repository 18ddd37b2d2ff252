package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
)

func TestLoggerMiddleware_RequestScopedLogger(t *testing.T) {
	base := observability.NewLogger()

	var got observability.Logger
	h := LoggerMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestLogger(r.Context(), nil)
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got == nil {
		t.Fatal("request-scoped logger missing from context")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code %d", rec.Code)
	}
}

func TestRequestLogger_FallsBackWithoutMiddleware(t *testing.T) {
	base := observability.NewLogger()
	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)

	if got := RequestLogger(req.Context(), base); got != base {
		t.Error("expected the fallback logger when the middleware did not run")
	}
}
