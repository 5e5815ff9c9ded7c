package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bountyboard/backend/internal/httpx"
)

type CredentialsRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type CredentialResponse struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

type LoginResponse struct {
	Token string `json:"token"`
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

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := httpx.ReadJSON[CredentialsRequest](w, r, h.validator, "credentials")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	cred, err := h.svc.Register(r.Context(), req.Handle, req.Password)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	h.log.Info("credential registered", "id", cred.ID, "handle", cred.Handle)
	httpx.WriteJSON(w, http.StatusCreated, CredentialResponse{ID: cred.ID.String(), Handle: cred.Handle})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := httpx.ReadJSON[CredentialsRequest](w, r, h.validator, "credentials")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	token, err := h.svc.Login(r.Context(), req.Handle, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.WriteStatus(w, r, http.StatusUnauthorized, "Unauthenticated", "invalid credentials")
			return
		}
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Token: token})
}
