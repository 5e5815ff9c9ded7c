package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/httpx"
)

type contextKey string

const ctxCallerKey contextKey = "caller"

// TokenValidator resolves a bearer token to the caller identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// Identity authenticates requests by their Bearer token and stores the
// caller identity in the request context.
func Identity(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				httpx.WriteStatus(w, r, http.StatusUnauthorized, "Unauthenticated", "missing or malformed Authorization header")
				return
			}
			caller, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil || caller == uuid.Nil {
				httpx.WriteStatus(w, r, http.StatusUnauthorized, "Unauthenticated", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// CallerFromCtx returns the authenticated caller, or uuid.Nil.
func CallerFromCtx(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxCallerKey).(uuid.UUID)
	return id
}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxCallerKey, caller)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
