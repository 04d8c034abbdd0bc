// interviewd - automated technical interview server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/interviewd/internal/analysis"
	"github.com/ashureev/interviewd/internal/api"
	"github.com/ashureev/interviewd/internal/config"
	"github.com/ashureev/interviewd/internal/domain"
	"github.com/ashureev/interviewd/internal/interview"
	"github.com/ashureev/interviewd/internal/live"
	"github.com/ashureev/interviewd/internal/llm"
	"github.com/ashureev/interviewd/internal/middleware"
	"github.com/ashureev/interviewd/internal/runner"
	"github.com/ashureev/interviewd/internal/speech"
	"github.com/ashureev/interviewd/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	openaiClient, err := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	if err != nil {
		slog.Error("Failed to initialize OpenAI client", "error", err)
		os.Exit(1)
	}
	slog.Info("OpenAI client initialized", "model", cfg.OpenAI.Model)

	controller := interview.New(openaiClient, openaiClient, interview.Config{
		ScreeningMin:          cfg.Interview.ScreeningMin,
		ScreeningMax:          cfg.Interview.ScreeningMax,
		IdleCodeCharThreshold: interview.DefaultConfig().IdleCodeCharThreshold,
	})

	// Speech is optional. Without an API key, voice turns are disabled and
	// the interview runs text-only.
	var stt speech.Transcriber
	var tts speech.Synthesizer
	if cfg.Speech.APIKey != "" {
		elevenlabs, err := speech.NewElevenLabsClient(cfg.Speech.APIKey, speech.WithVoice(cfg.Speech.VoiceID))
		if err != nil {
			slog.Error("Failed to initialize speech client", "error", err)
			os.Exit(1)
		}
		stt = elevenlabs
		tts = elevenlabs
		slog.Info("Speech client initialized")
	} else {
		slog.Info("Speech disabled (ELEVENLABS_API_KEY not set)")
	}

	// Code execution is optional and needs a Docker daemon.
	var codeRunner runner.Runner
	if cfg.Runner.Enabled {
		codeRunner, err = runner.NewDockerRunner(cfg.Runner.Image)
		if err != nil {
			slog.Error("Failed to initialize code runner", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("Code execution disabled (RUNNER_ENABLED not set)")
	}

	analyzer := analysis.NewService(openaiClient, repo)
	hub := live.NewHub(cfg.FrontendURL, cfg.IsDevelopment())

	defaults := domain.SessionDefaults{
		MaxDurationMinutes:  cfg.Interview.MaxDurationMinutes,
		IntroTarget:         cfg.Interview.IntroTarget,
		ScreeningTarget:     cfg.Interview.ScreeningMin,
		PoorAnswerThreshold: cfg.Interview.PoorAnswerThreshold,
		IdleCooldownSeconds: cfg.Interview.IdleCooldownSeconds,
		CodeLanguage:        cfg.Interview.CodeLanguage,
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg.FrontendURL)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)
	interviewHandler := api.NewInterviewHandler(baseHandler, controller, stt, tts, hub, codeRunner, analyzer, defaults)
	adminHandler := api.NewAdminHandler(baseHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)
	interviewHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r)

	// Observer WebSocket endpoint.
	r.Get("/api/interview/{sessionID}/watch", hub.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // observer websockets stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
