package token

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/httpx"
	"github.com/bountyboard/backend/internal/middleware"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// Handler serves the caller's wallet: balance, transfer history and the
// development faucet.
type Handler struct {
	svc       *Service
	store     store.Store
	validator *httpx.Validator
	log       *slog.Logger
	dailyCap  uint64
}

type HandlerOption func(*Handler)

// WithFaucetDailyCap bounds what one owner may mint per UTC day.
func WithFaucetDailyCap(n uint64) HandlerOption {
	return func(h *Handler) { h.dailyCap = n }
}

func NewHandler(svc *Service, st store.Store, v *httpx.Validator, log *slog.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{svc: svc, store: st, validator: v, log: log}
	for _, o := range opts {
		o(h)
	}
	return h
}

type balanceResponse struct {
	Owner   uuid.UUID `json:"owner"`
	Account uuid.UUID `json:"account"`
	Asset   string    `json:"asset"`
	Balance uint64    `json:"balance"`
}

type faucetRequest struct {
	Amount uint64 `json:"amount"`
}

// --- GET /api/v1/balance ---

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromCtx(r.Context())
	addr := h.svc.WalletAddress(caller)
	bal, err := h.svc.Balance(r.Context(), h.store, addr)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, balanceResponse{Owner: caller, Account: addr, Asset: h.svc.Asset(), Balance: bal})
}

// --- GET /api/v1/transfers ---

func (h *Handler) Transfers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	addr := h.svc.WalletAddress(middleware.CallerFromCtx(r.Context()))
	list, err := h.store.ListTransfers(r.Context(), store.TransferFilter{Account: &addr, Limit: limit, Offset: offset})
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	items := make([]models.Transfer, 0, len(list))
	for _, t := range list {
		items = append(items, *t)
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPage(items, store.Limit(limit), offset))
}

// --- POST /api/v1/faucet ---

func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	req, err := httpx.ReadJSON[faucetRequest](w, r, h.validator, "faucet")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	caller := middleware.CallerFromCtx(r.Context())
	var acct *models.TokenAccount
	err = h.store.InTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		acct, err = h.svc.MintCapped(ctx, tx, caller, req.Amount, h.dailyCap)
		return err
	})
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	h.log.Info("faucet mint", "owner", caller, "amount", req.Amount)
	httpx.WriteJSON(w, http.StatusOK, balanceResponse{Owner: caller, Account: acct.Address, Asset: acct.Asset, Balance: acct.Balance})
}
