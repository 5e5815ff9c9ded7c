package bounty

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/httpx"
	"github.com/bountyboard/backend/internal/middleware"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

type CreateBountyRequest struct {
	MetadataURI string `json:"metadata_uri"`
	Budget      uint64 `json:"budget"`
	Deadline    int64  `json:"deadline"`
}

type SubmitWorkRequest struct {
	DeliverableURI string `json:"deliverable_uri"`
}

type LeaveReviewRequest struct {
	Rating     uint64 `json:"rating"`
	CommentURI string `json:"comment_uri"`
}

// BountyResponse is a bounty with its current escrow balance.
type BountyResponse struct {
	models.Bounty
	VaultBalance uint64 `json:"vault_balance"`
}

// Handler serves /api/v1/clients, /api/v1/bounties and agent reviews.
type Handler struct {
	svc       Service
	validator *httpx.Validator
	log       *slog.Logger
}

func NewHandler(svc Service, v *httpx.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: v, log: log}
}

// --- clients ---

func (h *Handler) InitClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.InitClient(r.Context(), middleware.CallerFromCtx(r.Context()))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.idParam(w, r, "owner")
	if !ok {
		return
	}
	c, err := h.svc.GetClient(r.Context(), owner)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

// --- bounties ---

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := httpx.ReadJSON[CreateBountyRequest](w, r, h.validator, "create_bounty")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	b, err := h.svc.CreateBounty(r.Context(), middleware.CallerFromCtx(r.Context()), CreateParams(req))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	h.respond(w, r, http.StatusCreated, b)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	h.respond(w, r, http.StatusOK, b)
}

// List handles GET /api/v1/bounties?status=&client=&agent=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	f := store.BountyFilter{Limit: limit, Offset: offset}
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := models.ParseBountyStatus(s)
		if err != nil {
			httpx.WriteError(w, r, h.log, apperr.InvalidInput("%v", err))
			return
		}
		f.Status = &st
	}
	for _, p := range []struct {
		key string
		dst **uuid.UUID
	}{{"client", &f.Client}, {"agent", &f.Agent}} {
		if s := q.Get(p.key); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				httpx.WriteError(w, r, h.log, apperr.InvalidInput("invalid %s id", p.key))
				return
			}
			*p.dst = &id
		}
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	items := make([]models.Bounty, 0, len(list))
	for _, b := range list {
		items = append(items, *b)
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPage(items, store.Limit(limit), offset))
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Claim)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	req, err := httpx.ReadJSON[SubmitWorkRequest](w, r, h.validator, "submit_work")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	b, err := h.svc.Submit(r.Context(), middleware.CallerFromCtx(r.Context()), id, req.DeliverableURI)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	h.respond(w, r, http.StatusOK, b)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Approve)
}

func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Dispute)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

// --- reviews ---

func (h *Handler) LeaveReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	req, err := httpx.ReadJSON[LeaveReviewRequest](w, r, h.validator, "leave_review")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	rv, err := h.svc.LeaveReview(r.Context(), middleware.CallerFromCtx(r.Context()), id, req.Rating, req.CommentURI)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rv)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	rv, err := h.svc.GetReview(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rv)
}

// ListAgentReviews handles GET /api/v1/agents/{owner}/reviews.
func (h *Handler) ListAgentReviews(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.idParam(w, r, "owner")
	if !ok {
		return
	}
	limit, offset, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	list, err := h.svc.ListReviews(r.Context(), owner, limit, offset)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	items := make([]models.Review, 0, len(list))
	for _, rv := range list {
		items = append(items, *rv)
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPage(items, store.Limit(limit), offset))
}

// --- helpers ---

// transition runs a body-less state change on {id} as the caller.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Bounty, error)) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	b, err := fn(r.Context(), middleware.CallerFromCtx(r.Context()), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	h.respond(w, r, http.StatusOK, b)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, b *models.Bounty) {
	bal, err := h.svc.VaultBalance(r.Context(), b)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, status, BountyResponse{Bounty: *b, VaultBalance: bal})
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.WriteError(w, r, h.log, apperr.InvalidInput("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}
