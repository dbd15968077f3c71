package handlers

import (
	"net/http"

	"marketplace/internal/config"
	"marketplace/internal/logger"
	"marketplace/internal/middleware"
	"marketplace/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg     config.Config
	service MarketService
	admins  AdminStore
	hub     *websocket.Hub
	log     *logger.Logger
}

func New(cfg config.Config, service MarketService, admins AdminStore, hub *websocket.Hub, log *logger.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		service: service,
		admins:  admins,
		hub:     hub,
		log:     log,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/hooks/deposit", h.DepositHook)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/session", h.CreateSession)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Route("/market", func(r chi.Router) {
		r.Get("/listing", h.GetListing)
		r.Get("/balance", h.GetBalance)
		r.Get("/balances", h.ListBalances)
		r.Get("/payment-balance", h.GetPaymentBalance)
		r.Get("/allowed-to-list", h.AllowedToList)
		r.Get("/payment-tokens", h.PaymentTokens)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(h.cfg.JWTSecret))
			r.Post("/list", h.List)
			r.Post("/delist", h.DeList)
			r.Post("/withdraw", h.Withdraw)
			r.Post("/exchange", h.Exchange)
			r.Post("/calculate-amounts", h.CalculateAmounts)
		})
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAdmin(h.admins))
		r.Post("/payment-tokens", h.AddPaymentToken)
		r.Post("/sell-token-contracts", h.AddSellTokenContract)
		r.Get("/audit", h.ListAuditLogs)
	})

	router.Get("/events", h.ListEvents)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/ws/events", h.WSEvents)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
