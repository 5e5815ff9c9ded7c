package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/logger"
)

func TestWriteError_Classified(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req = req.WithContext(logger.WithRequestID(req.Context(), "rid-1"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, nil, apperr.New(apperr.CodeNotOpen, "bounty is not open"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "NotOpen" || body.Error.Kind != "state" || body.RequestID != "rid-1" {
		t.Errorf("body: %+v", body)
	}
}

func TestWriteError_Unclassified(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, discardLogger(), errors.New("db exploded"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "exploded") {
		t.Error("internal error detail leaked to client")
	}
}

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	tests := []struct {
		name   string
		schema string
		body   string
		ok     bool
	}{
		{"valid bounty", "create_bounty", `{"metadata_uri":"ipfs://x","budget":10,"deadline":1900000000}`, true},
		{"zero budget", "create_bounty", `{"metadata_uri":"ipfs://x","budget":0,"deadline":1}`, false},
		{"missing deadline", "create_bounty", `{"metadata_uri":"ipfs://x","budget":5}`, false},
		{"unknown field", "submit_work", `{"deliverable_uri":"a","extra":1}`, false},
		{"rating high", "leave_review", `{"rating":501,"comment_uri":""}`, false},
		{"rating ok", "leave_review", `{"rating":500,"comment_uri":""}`, true},
		{"availability enum", "update_agent", `{"availability":"asleep"}`, false},
		{"empty update", "update_agent", `{}`, true},
		{"not json", "faucet", `{`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, []byte(tt.body))
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, apperr.ErrInvalidInput) {
					t.Errorf("expected InvalidInput, got %v", err)
				}
			}
		})
	}
}

func TestReadJSON_BodyTooLarge(t *testing.T) {
	big := `{"deliverable_uri":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(big))
	rec := httptest.NewRecorder()

	_, err := ReadJSON[map[string]string](rec, req, nil, "")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestPagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?limit=5&offset=10", nil)
	limit, offset, err := Pagination(req)
	if err != nil || limit != 5 || offset != 10 {
		t.Errorf("Pagination: %d %d %v", limit, offset, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/x?limit=-1", nil)
	if _, _, err := Pagination(req); err == nil {
		t.Error("negative limit accepted")
	}
}
