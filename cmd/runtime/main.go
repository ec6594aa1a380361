// Command runtime serves the survey runtime core's HTTP API and drives
// its background sweepers and the outbox relay.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/surveyrt/runtime/internal/admission"
	"github.com/surveyrt/runtime/internal/api"
	"github.com/surveyrt/runtime/internal/bus"
	"github.com/surveyrt/runtime/internal/cache"
	"github.com/surveyrt/runtime/internal/config"
	"github.com/surveyrt/runtime/internal/geoip"
	"github.com/surveyrt/runtime/internal/notify"
	"github.com/surveyrt/runtime/internal/outbox"
	"github.com/surveyrt/runtime/internal/quota"
	"github.com/surveyrt/runtime/internal/resolve"
	"github.com/surveyrt/runtime/internal/runtime"
	"github.com/surveyrt/runtime/internal/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configFile := flag.String("config", getEnv("CONFIG_FILE", "./deploy/config/runtime.yaml"), "Path to the runtime config file")
	envFile := flag.String("env-file", getEnv("ENV_FILE", "./deploy/config/.env"), "Path to a .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("could not load env file, continuing with existing environment", "path", *envFile, "error", err)
	} else {
		slog.Info("loaded environment file", "path", *envFile)
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := store.NewClient(ctx, cfg.Database.AsStoreConfig())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database", "database", cfg.Database.Database)

	surveys := store.NewSurveyStore(client)
	collectors := store.NewCollectorStore(client)
	invites := store.NewInviteStore(client)
	sessions := store.NewSessionStore(client)
	answers := store.NewAnswerStore(client)
	quotaStore := store.NewQuotaStore(client)
	outboxStore := store.NewOutboxStore(client)

	cachedSurveys := runtime.NewCachedSurveyStore(surveys, cache.New(time.Minute))

	var geoProvider geoip.Provider = geoip.NoopProvider{}
	if cfg.GeoIP.BaseURL != "" {
		geoProvider = geoip.NewClient(cfg.GeoIP.BaseURL)
	}

	var mailer notify.Mailer = notify.NoopMailer{}
	if cfg.Mailer.Host != "" {
		mailer = notify.NewSMTPMailer(cfg.Mailer.Host, cfg.Mailer.Port, cfg.Mailer.From, cfg.Mailer.Username, cfg.Mailer.Password)
	}

	admitter := admission.NewService(collectors, invites, cachedSurveys, sessions, geoProvider)
	controller := runtime.NewController(cachedSurveys, collectors, sessions, answers, quotaStore, admitter, mailer)
	controller.SetLandingCounter(cache.New(time.Hour))

	// internal/runtime builds its own per-survey quota.Manager (it needs a
	// survey-specific resolve.Index); the sweep loop only calls the
	// expiry-release path, which never touches the index.
	quotaSweeper := quota.NewSweeper(quota.New(quotaStore, resolve.Index{}), cfg.Quota.SweepInterval)
	quotaSweeper.Start(ctx)
	defer quotaSweeper.Stop()

	sessionSweeper := runtime.NewSessionSweeper(sessions, cfg.Session.AbandonAfter, cfg.Session.AbandonSweepInterval)
	sessionSweeper.Start(ctx)
	defer sessionSweeper.Stop()

	relay := outbox.NewRelay(outboxStore, bus.NewLogPublisher(slog.Default()), slog.Default(), cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
	relay.Start(ctx)
	defer relay.Stop()

	server := api.NewServer(controller)
	if err := server.ValidateWiring(); err != nil {
		slog.Error("server wiring incomplete", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Addr)
		if err := server.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during graceful shutdown", "error", err)
	}
}
