package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/api/middleware"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/auth"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/config"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/handlers"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/store"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/ws"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(
	logger zerolog.Logger,
	cfg *config.Config,
	db store.DataStore,
	verifier auth.TokenVerifier,
	hub *ws.Hub,
	notify ws.Notifier,
	rdb *redis.Client,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, notify, hub, rdb)
	authmw := middleware.NewAuthMiddleware(verifier, db)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)
	r.Get("/ws", hub.HandleWS)

	// Authenticated API
	r.Route("/api", func(r chi.Router) {
		r.Use(authmw.RequireAuth)

		r.Get("/users/me", h.Me)
		r.Get("/users/online", h.OnlineUsers)
		r.Get("/users/{id}", h.GetUser)

		r.Post("/chats/with", h.StartChat)
		r.Get("/chats", h.ListChats)
		r.Get("/chats/{id}", h.GetChat)
		r.Delete("/chats/{id}", h.LeaveChat)
		r.Get("/chats/{id}/messages", h.ListChatMessages)
		r.Post("/chats/{id}/messages", h.SendChatMessage)
		r.Put("/chats/{id}/read", h.MarkChatRead)

		r.Put("/messages/{id}", h.EditMessage)
		r.Delete("/messages/{id}", h.DeleteMessage)

		r.Post("/listings", h.CreateListing)
		r.Get("/listings", h.ListListings)
		r.Get("/listings/{id}", h.GetListing)
		r.Post("/listings/{id}/purchase/initiate", h.InitiatePurchase)
		r.Post("/listings/{id}/purchase/verify", h.VerifyPurchase)
	})

	return r
}
