package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vipul43/analytics-bridge/internal/analytics"
	"github.com/vipul43/analytics-bridge/internal/config"
	"github.com/vipul43/analytics-bridge/internal/database"
	"github.com/vipul43/analytics-bridge/internal/handlers"
	"github.com/vipul43/analytics-bridge/internal/repository"
	"github.com/vipul43/analytics-bridge/internal/routes"
	"github.com/vipul43/analytics-bridge/internal/zoho"
)

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	log.SetFlags(0)
	log.SetOutput(logger)

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("Application error")
	}
}

func run(logger zerolog.Logger) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	// Run history is optional
	var (
		recorder analytics.RunRecorder = analytics.NopRecorder{}
		runs     handlers.RunLister
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info().Msg("Database connected successfully")

		logger.Info().Msg("Running database migrations...")
		if err := database.RunMigrations(db); err != nil {
			return err
		}
		logger.Info().Msg("Migrations completed successfully")

		runRepo := repository.NewExportRunRepository(db.DB)
		recorder = runRepo
		runs = runRepo
	} else {
		logger.Warn().Msg("DATABASE_URL not set, run history disabled")
	}

	// Analytics platform client
	registry, err := zoho.NewRegistry(cfg.Views)
	if err != nil {
		return err
	}

	tokens := zoho.NewTokenManager(cfg.ZohoAccountsURL, zoho.Credentials{
		ClientID:     cfg.ZohoClientID,
		ClientSecret: cfg.ZohoClientSecret,
		RefreshToken: cfg.ZohoRefreshToken,
	}, &http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second}, logger)

	executor := zoho.NewExecutor(tokens, zoho.ExecutorConfig{
		OrgID:     cfg.ZohoOrgID,
		Timeout:   time.Duration(cfg.HTTPTimeout) * time.Second,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, logger)

	orchestrator := zoho.NewOrchestrator(executor, registry, zoho.OrchestratorConfig{
		BaseURL:      cfg.ZohoAnalyticsURL,
		PollInterval: time.Duration(cfg.PollInterval) * time.Second,
		MaxPolls:     cfg.MaxPolls,
	}, logger)

	service := analytics.NewService(orchestrator, recorder, analytics.Config{
		ExportTimeout: time.Duration(cfg.ExportTimeout) * time.Second,
	}, logger)

	// HTTP server
	analyticsHandler := handlers.NewAnalyticsHandler(service, runs, logger)
	router := routes.NewRouter(analyticsHandler, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.WithCORS(router, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

		// In-flight exports get until the shutdown timeout to finish
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown timeout exceeded")
		}

		logger.Info().Msg("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
