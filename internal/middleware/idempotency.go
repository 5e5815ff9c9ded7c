package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bountyboard/backend/internal/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20
)

type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// mutating requests. Keys are scoped to the caller and route. Server errors
// are not cached so the client can retry them.
func Idempotency(c cache.Cache, ttl time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ck := idempotencyCacheKey(r, key)

			if data, ok, err := c.Get(r.Context(), ck); err == nil && ok {
				var cached idempotencyEntry
				if err := json.Unmarshal(data, &cached); err == nil {
					for k, vals := range cached.Headers {
						for _, v := range vals {
							w.Header().Add(k, v)
						}
					}
					w.Header().Set(headerReplayed, "true")
					w.WriteHeader(cached.StatusCode)
					_, _ = w.Write(cached.Body)
					return
				}
				log.Warn("idempotency: corrupt cache entry", "key", key)
			} else if err != nil {
				log.Warn("idempotency: cache lookup failed", "key", key, "error", err)
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || rec.body.Len() > maxIdempotencyBody {
				return
			}
			data, err := json.Marshal(idempotencyEntry{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := c.Set(r.Context(), ck, data, ttl); err != nil {
				log.Warn("idempotency: failed to store response", "key", key, "error", err)
			}
		})
	}
}

// idempotencyCacheKey hashes the scope so arbitrary client keys are safe
// for backends with restricted key alphabets.
func idempotencyCacheKey(r *http.Request, key string) string {
	h := sha256.New()
	caller := CallerFromCtx(r.Context())
	h.Write(caller[:])
	h.Write([]byte{0})
	h.Write([]byte(r.Method + " " + r.URL.Path))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return "idem." + hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
