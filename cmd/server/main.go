package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ecolearn/ecolearn-api/internal/auth"
	"github.com/ecolearn/ecolearn-api/internal/config"
	"github.com/ecolearn/ecolearn-api/internal/database"
	"github.com/ecolearn/ecolearn-api/internal/handlers"
	"github.com/ecolearn/ecolearn-api/internal/jobs"
	"github.com/ecolearn/ecolearn-api/internal/leaderboard"
	"github.com/ecolearn/ecolearn-api/internal/logging"
	"github.com/ecolearn/ecolearn-api/internal/notifier"
	"github.com/ecolearn/ecolearn-api/internal/points"
	"github.com/ecolearn/ecolearn-api/internal/realtime"
	"github.com/ecolearn/ecolearn-api/internal/storage"
	"github.com/ecolearn/ecolearn-api/internal/verification"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = uuid.NewString()
		logger.Warn("JWT_SECRET not set, sessions will not survive a restart")
	}
	if cfg.QRSecret == "" {
		logger.Fatal("QR_SECRET must be set")
	}

	// Connect to Database
	db := database.Connect(cfg, logger)
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Listeners run after every committed award or submission.
	hub := realtime.NewHub(logger.Named("realtime"))
	go hub.Run(ctx)
	listeners := []points.Listener{hub}

	if cfg.DiscordBotToken != "" && cfg.DiscordNotificationsChannelID != "" {
		session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
		if err != nil {
			logger.Warn("Discord notifier not initialized", zap.Error(err))
		} else {
			listeners = append(listeners, notifier.NewDiscordNotifier(session, cfg.DiscordNotificationsChannelID, logger.Named("discord")))
		}
	}

	opts := []points.Option{points.WithListeners(listeners...), points.WithLocation(loc)}
	if uploader, err := storage.NewCloudinaryUploader(cfg); err != nil {
		logger.Info("Photo uploads disabled", zap.Error(err))
	} else {
		opts = append(opts, points.WithUploader(uploader))
	}

	pointsService := points.NewService(db, logger.Named("points"), opts...)
	verifier := verification.NewService(db, pointsService, logger.Named("verification"), verification.Options{
		Secret:          cfg.QRSecret,
		MaxDistanceKM:   cfg.QRMaxDistanceKM,
		RequireLocation: cfg.QRRequireLocation,
		DefaultTTL:      cfg.QRDefaultTTL,
	})
	boards := leaderboard.NewAggregator(db, logger.Named("leaderboard"), loc)

	scheduler := jobs.NewScheduler(logger.Named("jobs"), loc)
	if cfg.SnapshotSchedule != "" {
		if err := scheduler.AddSnapshot(cfg.SnapshotSchedule, boards, time.Minute); err != nil {
			logger.Fatal("Failed to schedule leaderboard snapshots", zap.Error(err))
		}
	}
	scheduler.Start()

	// Initialize Router
	r := chi.NewRouter()
	handlers.RegisterRoutes(r, handlers.Handlers{
		Auth:         auth.NewAuthHandler(cfg, db, pointsService, logger.Named("auth")),
		Points:       handlers.NewPointsHandler(pointsService),
		Verification: handlers.NewVerificationHandler(verifier),
		Completions:  handlers.NewCompletionHandler(points.NewRecorder(pointsService)),
		Leaderboard:  handlers.NewLeaderboardHandler(boards),
		Tasks:        handlers.NewTaskHandler(db, logger.Named("tasks")),
		APIKeys:      handlers.NewAPIKeyHandler(db, logger.Named("keys")),
		Live:         hub,
	}, logger, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Port), zap.String("db_type", cfg.DBType))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
}
