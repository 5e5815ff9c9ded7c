// Package router assembles the HTTP surface.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/bountyboard/backend/internal/auth"
	"github.com/bountyboard/backend/internal/bounty"
	"github.com/bountyboard/backend/internal/cache"
	"github.com/bountyboard/backend/internal/config"
	"github.com/bountyboard/backend/internal/httpx"
	"github.com/bountyboard/backend/internal/middleware"
	"github.com/bountyboard/backend/internal/registry"
	"github.com/bountyboard/backend/internal/telemetry"
	"github.com/bountyboard/backend/internal/token"
)

// Deps are the handlers and collaborators the router mounts.
type Deps struct {
	Auth     *auth.Handler
	Tokens   middleware.TokenValidator
	Agents   *registry.Handler
	Bounties *bounty.Handler
	Wallet   *token.Handler
	Cache    cache.Cache
	Health   func(ctx context.Context) error
	Log      *slog.Logger
}

// New returns the root handler: /healthz plus the API under /api/v1.
func New(cfg *config.Config, d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
	}).Handler)
	r.Use(telemetry.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/healthz", healthz(d.Health, d.Log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Identity(d.Tokens))
			if d.Cache != nil {
				r.Use(middleware.Idempotency(d.Cache, cfg.Cache.IdempotencyTTL, d.Log))
			}

			r.Route("/agents", func(r chi.Router) {
				r.Post("/", d.Agents.Register)
				r.Get("/", d.Agents.List)
				r.Patch("/me", d.Agents.UpdateMe)
				r.Get("/{owner}", d.Agents.Get)
				r.Get("/{owner}/reviews", d.Bounties.ListAgentReviews)
			})

			r.Post("/clients", d.Bounties.InitClient)
			r.Get("/clients/{owner}", d.Bounties.GetClient)

			r.Route("/bounties", func(r chi.Router) {
				r.Post("/", d.Bounties.Create)
				r.Get("/", d.Bounties.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", d.Bounties.Get)
					r.Post("/claim", d.Bounties.Claim)
					r.Post("/submit", d.Bounties.Submit)
					r.Post("/approve", d.Bounties.Approve)
					r.Post("/dispute", d.Bounties.Dispute)
					r.Post("/cancel", d.Bounties.Cancel)
					r.Post("/review", d.Bounties.LeaveReview)
					r.Get("/review", d.Bounties.GetReview)
				})
			})

			r.Get("/balance", d.Wallet.Balance)
			r.Get("/transfers", d.Wallet.Transfers)
			if cfg.Ledger.FaucetEnabled {
				r.With(middleware.FaucetLimit(cfg.Ledger.FaucetMax)).Post("/faucet", d.Wallet.Faucet)
			}
		})
	})
	return r
}

func healthz(check func(ctx context.Context) error, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				log.Warn("health check failed", "error", err)
				httpx.WriteStatus(w, r, http.StatusServiceUnavailable, "Unavailable", "store unreachable")
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
