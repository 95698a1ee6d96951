package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studytrack-backend/internal/config"
	"studytrack-backend/internal/database"
	"studytrack-backend/internal/handlers"
	"studytrack-backend/internal/middleware"
	"studytrack-backend/internal/repository"
	"studytrack-backend/internal/router"
	"studytrack-backend/internal/services"
	"studytrack-backend/internal/websocket"
	"studytrack-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting StudyTrack Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	sessionRepo := repository.NewStudySessionRepo(pool)
	eventRepo := repository.NewStudyEventRepo(pool)
	imageRepo := repository.NewStudyImageRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClients.Cache, jwtAuth)
	sessionService := services.NewSessionService(sessionRepo, eventRepo, imageRepo, redisClients.Cache)
	statsService := services.NewStatsService(sessionRepo, redisClients.Cache, time.Duration(cfg.StatsCacheTTLSec)*time.Second)

	// ──── Step 5: Bootstrap Owner Account ────
	if err := authService.EnsureBootstrapUser(context.Background(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("✗ Bootstrap user setup failed: %v", err)
	}

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	edgeHandler := handlers.NewEdgeHandler(sessionService, cfg.StoragePath)
	statsHandler := handlers.NewStatsHandler(statsService)

	// ──── Step 6: Start Stats Worker Pool ────
	workerPool := worker.NewPool(redisClients.Cache, statsService, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		sessionHandler,
		edgeHandler,
		statsHandler,
		wsHub,
		cfg.AllowedOrigin,
		cfg.StoragePath,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ StudyTrack Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
