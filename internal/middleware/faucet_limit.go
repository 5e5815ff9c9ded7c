package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/httpx"
)

type faucetPeek struct {
	Amount uint64 `json:"amount"`
}

// FaucetLimit rejects faucet requests above perRequest before they reach a
// transaction. The daily cap needs the wallet lock and is enforced by the
// handler. Reads the body to extract "amount", then replaces r.Body so
// downstream handlers can re-read it. A zero perRequest disables the cap.
func FaucetLimit(perRequest uint64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromCtx(r.Context())
			if caller == uuid.Nil {
				httpx.WriteStatus(w, r, http.StatusUnauthorized, "Unauthenticated", "no caller identity")
				return
			}

			bodyBytes, err := httpx.ReadBody(w, r)
			if err != nil {
				httpx.WriteError(w, r, nil, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek faucetPeek
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				httpx.WriteStatus(w, r, http.StatusBadRequest, "InvalidInput", "invalid JSON body")
				return
			}
			if peek.Amount == 0 {
				httpx.WriteStatus(w, r, http.StatusBadRequest, "InvalidInput", "amount must be > 0")
				return
			}
			if perRequest > 0 && peek.Amount > perRequest {
				httpx.WriteStatus(w, r, http.StatusForbidden, "FaucetLimit",
					fmt.Sprintf("amount %d exceeds per-request limit %d", peek.Amount, perRequest))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
