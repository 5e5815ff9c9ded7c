package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

// echoBody writes 200 and the body it received, proving the middleware
// restored r.Body.
var echoBody = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, r.Body)
})

func faucetRequest(caller uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/faucet", strings.NewReader(body))
	if caller != uuid.Nil {
		req = req.WithContext(WithCaller(req.Context(), caller))
	}
	return req
}

// ---------------------------------------------------------------------------
// 1. Request within the cap -> 200 OK, body intact
// ---------------------------------------------------------------------------

func TestFaucetLimit_WithinLimit(t *testing.T) {
	h := FaucetLimit(500)(echoBody)

	body := `{"amount":500}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, faucetRequest(uuid.New(), body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != body {
		t.Errorf("downstream body = %q, want %q", rec.Body.String(), body)
	}
}

func TestFaucetLimit_ZeroCapDisables(t *testing.T) {
	h := FaucetLimit(0)(echoBody)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, faucetRequest(uuid.New(), `{"amount":18446744073709551615}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 2. Per-request cap -> 403, downstream never reached
// ---------------------------------------------------------------------------

func TestFaucetLimit_PerRequestExceeded(t *testing.T) {
	var reached atomic.Int32
	h := FaucetLimit(50)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, faucetRequest(uuid.New(), `{"amount":51}`))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "FaucetLimit") {
		t.Errorf("body missing code: %s", rec.Body.String())
	}
	if reached.Load() != 0 {
		t.Error("handler ran after per-request rejection")
	}
}

// ---------------------------------------------------------------------------
// 3. Bad input and missing identity
// ---------------------------------------------------------------------------

func TestFaucetLimit_ZeroAmount(t *testing.T) {
	h := FaucetLimit(500)(echoBody)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, faucetRequest(uuid.New(), `{"amount":0}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFaucetLimit_InvalidJSON(t *testing.T) {
	h := FaucetLimit(500)(echoBody)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, faucetRequest(uuid.New(), `{nope`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFaucetLimit_NoCaller(t *testing.T) {
	h := FaucetLimit(500)(echoBody)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, faucetRequest(uuid.Nil, `{"amount":1}`))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
