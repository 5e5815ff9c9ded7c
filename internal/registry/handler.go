package registry

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/httpx"
	"github.com/bountyboard/backend/internal/middleware"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// Request structs use snake_case JSON and are validated against the
// register_agent and update_agent schemas before decoding.

type RegisterAgentRequest struct {
	MetadataURI string `json:"metadata_uri"`
	HourlyRate  uint64 `json:"hourly_rate"`
}

type UpdateAgentRequest struct {
	MetadataURI  *string              `json:"metadata_uri"`
	HourlyRate   *uint64              `json:"hourly_rate"`
	Availability *models.Availability `json:"availability"`
}

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

// Register handles POST /api/v1/agents. The caller becomes the owner.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := httpx.ReadJSON[RegisterAgentRequest](w, r, h.validator, "register_agent")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	rec, err := h.svc.Register(r.Context(), middleware.CallerFromCtx(r.Context()), req.MetadataURI, req.HourlyRate)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

// UpdateMe handles PATCH /api/v1/agents/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	req, err := httpx.ReadJSON[UpdateAgentRequest](w, r, h.validator, "update_agent")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	caller := middleware.CallerFromCtx(r.Context())
	rec, err := h.svc.Update(r.Context(), caller, address.Agent(caller), UpdateParams(req))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

// Get handles GET /api/v1/agents/{owner}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(chi.URLParam(r, "owner"))
	if err != nil {
		httpx.WriteError(w, r, h.log, apperr.InvalidInput("invalid owner id"))
		return
	}
	rec, err := h.svc.Get(r.Context(), owner)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

// List handles GET /api/v1/agents?availability=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httpx.Pagination(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	f := store.AgentFilter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("availability"); s != "" {
		a, err := models.ParseAvailability(s)
		if err != nil {
			httpx.WriteError(w, r, h.log, apperr.InvalidInput("%v", err))
			return
		}
		f.Availability = &a
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	items := make([]models.AgentRecord, 0, len(list))
	for _, a := range list {
		items = append(items, *a)
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewPage(items, store.Limit(limit), offset))
}
