package token

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/httpx"
	"github.com/bountyboard/backend/internal/middleware"
)

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	svc, _, st := newTestService()
	v, err := httpx.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	return NewHandler(svc, st, v, slog.New(slog.NewTextHandler(io.Discard, nil))), svc
}

func asCaller(req *http.Request, caller uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithCaller(req.Context(), caller))
}

func TestHandler_FaucetThenBalance(t *testing.T) {
	h, svc := newTestHandler(t)
	caller := uuid.New()

	rec := httptest.NewRecorder()
	h.Faucet(rec, asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/faucet", strings.NewReader(`{"amount":250}`)), caller))
	if rec.Code != http.StatusOK {
		t.Fatalf("faucet: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Balance(rec, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil), caller))
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", rec.Code)
	}
	var resp balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Balance != 250 || resp.Asset != "usdc" || resp.Account != svc.WalletAddress(caller) {
		t.Errorf("unexpected balance response: %+v", resp)
	}
}

func TestHandler_FaucetRejectsBadBody(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, body := range []string{`{"amount":0}`, `{"amount":-3}`, `{"amount":1,"extra":true}`, `{}`} {
		rec := httptest.NewRecorder()
		h.Faucet(rec, asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/faucet", strings.NewReader(body)), uuid.New()))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHandler_Transfers(t *testing.T) {
	h, _ := newTestHandler(t)
	caller := uuid.New()
	for range 3 {
		rec := httptest.NewRecorder()
		h.Faucet(rec, asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/faucet", strings.NewReader(`{"amount":1}`)), caller))
	}

	rec := httptest.NewRecorder()
	h.Transfers(rec, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/transfers?limit=2", nil), caller))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Items []json.RawMessage `json:"items"`
		Limit int               `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 2 || page.Limit != 2 {
		t.Errorf("got %d items, limit %d", len(page.Items), page.Limit)
	}
}

func TestHandler_FaucetDailyCap(t *testing.T) {
	svc, _, st := newTestService()
	v, err := httpx.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	h := NewHandler(svc, st, v, slog.New(slog.NewTextHandler(io.Discard, nil)), WithFaucetDailyCap(500))
	caller := uuid.New()

	faucet := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Faucet(rec, asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/faucet", strings.NewReader(body)), caller))
		return rec
	}
	if rec := faucet(`{"amount":400}`); rec.Code != http.StatusOK {
		t.Fatalf("first faucet: %d %s", rec.Code, rec.Body.String())
	}
	rec := faucet(`{"amount":101}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	var body httpx.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "FaucetLimit" {
		t.Errorf("code = %s, want FaucetLimit", body.Error.Code)
	}
	if rec := faucet(`{"amount":100}`); rec.Code != http.StatusOK {
		t.Errorf("remaining allowance: %d %s", rec.Code, rec.Body.String())
	}
}
