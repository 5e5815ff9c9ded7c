// Package httpx holds the JSON request/response helpers shared by the
// handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/logger"
)

// MaxBodyBytes caps request bodies read by ReadJSON.
const MaxBodyBytes = 1 << 20

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err. Unclassified errors are logged and hidden behind
// a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	body := ErrorBody{RequestID: logger.RequestID(r.Context())}
	if e := apperr.As(err); e != nil {
		body.Error = ErrorDetail{Code: string(e.Code), Kind: string(e.Kind), Message: e.Message}
	} else {
		if log == nil {
			log = slog.Default()
		}
		logger.FromContext(r.Context(), log).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = ErrorDetail{Code: "Internal", Kind: string(apperr.KindInternal), Message: "internal error"}
	}
	WriteJSON(w, status, body)
}

// WriteStatus renders a transport-level failure that has no ledger code,
// such as a missing bearer token.
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{
		Error:     ErrorDetail{Code: code, Kind: "transport", Message: message},
		RequestID: logger.RequestID(r.Context()),
	})
}

// ReadBody reads at most MaxBodyBytes of the request body.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, apperr.InvalidInput("request body exceeds %d bytes", MaxBodyBytes)
		}
		return nil, apperr.InvalidInput("read body: %v", err)
	}
	return data, nil
}

// ReadJSON reads the body, validates it against the named schema when v is
// non-nil and decodes it into T.
func ReadJSON[T any](w http.ResponseWriter, r *http.Request, v *Validator, schema string) (T, error) {
	var out T
	data, err := ReadBody(w, r)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if v != nil {
		if err := v.Validate(schema, data); err != nil {
			return out, err
		}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, apperr.InvalidInput("invalid JSON: %v", err)
	}
	return out, nil
}

// Pagination reads limit and offset query parameters.
func Pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return 0, 0, apperr.InvalidInput("limit must be a non-negative integer")
		}
	}
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, apperr.InvalidInput("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// Page wraps a list response.
type Page[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPage never returns a nil Items slice so the JSON is [] not null.
func NewPage[T any](items []T, limit, offset int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Limit: limit, Offset: offset}
}

