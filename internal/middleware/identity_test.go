package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubTokens struct {
	id  uuid.UUID
	err error
	got string
}

func (s *stubTokens) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	s.got = token
	return s.id, s.err
}

// okHandler writes 200 and the caller id (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(CallerFromCtx(r.Context()).String()))
})

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIdentity_ValidToken(t *testing.T) {
	caller := uuid.New()
	tokens := &stubTokens{id: caller}
	mw := Identity(tokens)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != caller.String() {
		t.Errorf("expected caller %s in body, got %q", caller, body)
	}
	if tokens.got != "good-token" {
		t.Errorf("validator saw %q", tokens.got)
	}
}

func TestIdentity_MissingHeader(t *testing.T) {
	mw := Identity(&stubTokens{id: uuid.New()})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIdentity_MalformedHeader(t *testing.T) {
	mw := Identity(&stubTokens{id: uuid.New()})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIdentity_InvalidToken(t *testing.T) {
	mw := Identity(&stubTokens{err: errors.New("expired")})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCallerFromCtx_Empty(t *testing.T) {
	if got := CallerFromCtx(context.Background()); got != uuid.Nil {
		t.Errorf("expected uuid.Nil, got %s", got)
	}
}
