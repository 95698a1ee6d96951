package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studytrack-backend/internal/handlers"
	"studytrack-backend/internal/middleware"
	"studytrack-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	edgeHandler *handlers.EdgeHandler,
	statsHandler *handlers.StatsHandler,
	wsHub *websocket.Hub,
	allowedOrigin string,
	storagePath string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(allowedOrigin))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// Edge posts one event every few seconds plus image uploads
	edgeLimiter := middleware.NewRateLimiter(120, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Captured frames, served by the relative paths the timeline returns
	fileServer := http.StripPrefix("/media/", http.FileServer(http.Dir(storagePath)))
	r.Get("/media/*", fileServer.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", sessionHandler.Start)
			r.Get("/", sessionHandler.List)
			r.Get("/active", sessionHandler.Active)
			r.Get("/{id}", sessionHandler.Get)
			r.Post("/{id}/end", sessionHandler.End)
			r.Patch("/{id}/objects", sessionHandler.UpdateObjects)
			r.Get("/{id}/config", sessionHandler.Config)
			r.Get("/{id}/live", sessionHandler.Live)
			r.Get("/{id}/timeline", sessionHandler.Timeline)
		})

		// ──── Edge Device Routes ────
		r.Route("/edge", func(r chi.Router) {
			r.Use(edgeLimiter.Middleware)
			r.Use(jwtAuth.Middleware)
			r.Post("/events", edgeHandler.Events)
			r.Post("/images", edgeHandler.Images)
		})

		// ──── Stats Routes ────
		r.Route("/stats", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/today", statsHandler.Today)
			r.Get("/range", statsHandler.Range)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
