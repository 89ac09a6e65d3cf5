package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/app"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/middleware"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/repository/postgres"
	transporthttp "github.com/wecrm/outreach_gateway/internal/outreach_service/transport/http"
	"github.com/wecrm/outreach_gateway/internal/platform/config"
	"github.com/wecrm/outreach_gateway/internal/platform/database"
	"github.com/wecrm/outreach_gateway/internal/platform/logger"
	"github.com/wecrm/outreach_gateway/internal/platform/messagebroker"
)

func main() {
	cfg, err := config.Load("config.defaults")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Outreach gateway starting...", "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL database")

	var progress app.ProgressSink = app.NopProgressSink{}
	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, "outreach-gateway", appLogger)
	if err != nil {
		appLogger.Warn("NATS unavailable; progress events disabled", "error", err)
	} else {
		defer natsClient.Close()
		progress = app.NewNATSProgressSink(natsClient, appLogger)
		appLogger.Info("Successfully connected to NATS")
	}

	contactRepo := postgres.NewPgContactRepository(dbPool, appLogger)
	accountRepo := postgres.NewPgManagedAccountRepository(dbPool, appLogger)
	recordRepo := postgres.NewPgDeliveryRecordRepository(dbPool, appLogger)

	ledger := app.NewIdempotencyLedger(recordRepo, appLogger)
	planner := app.NewPacingPlanner(app.PacingConfig{
		ActiveHoursPerDay: cfg.ActiveHoursPerDay,
		MinInterval:       time.Duration(cfg.MinSendIntervalSec) * time.Second,
		JitterFraction:    cfg.SendJitterFraction,
	})
	harvester := app.NewHarvester(app.HarvestConfig{
		ObserveWindow: cfg.ObserveTimeout(),
		ScrollDelta:   cfg.HarvestScrollDeltaPx,
		SettleDelay:   time.Duration(cfg.HarvestSettleMs) * time.Millisecond,
		StableRounds:  cfg.HarvestStableRounds,
		MaxIterations: cfg.HarvestMaxIterations,
		WarnRatio:     cfg.HarvestWarnRatio,
	}, appLogger)
	switcher := app.NewAccountSwitchVerifier(app.SwitchConfig{
		SettleDelay:  time.Duration(cfg.SwitchSettleMs) * time.Millisecond,
		PollInterval: time.Duration(cfg.SwitchPollMs) * time.Millisecond,
		PollRounds:   cfg.SwitchPollRounds,
		Retries:      cfg.SwitchRetries,
	}, appLogger)

	rodCfg := console.RodConfig{
		ConsoleURL:    cfg.ConsoleURL,
		Headless:      cfg.ConsoleHeadless,
		NavTimeout:    time.Duration(cfg.ConsoleNavTimeoutSec) * time.Second,
		ScreenshotDir: cfg.ScreenshotDir,
	}
	sessions := app.NewSessionManager(
		func(ctx context.Context) (console.Surface, error) {
			return console.NewRodSurface(ctx, rodCfg, appLogger)
		},
		console.Credentials{Username: cfg.ConsoleUsername, Password: cfg.ConsolePassword},
		appLogger,
	)

	guard := app.NewRunGuard()
	syncService := app.NewSyncService(contactRepo, accountRepo, harvester, sessions, switcher, progress, guard, appLogger, cfg.HarvestWarnRatio)
	dispatcher := app.NewDispatcher(contactRepo, ledger, planner, sessions, switcher, progress, guard, appLogger, app.DispatcherConfig{
		InterItemDelay: time.Duration(cfg.InterItemDelayMs) * time.Millisecond,
	})

	validate := validator.New()
	handler := transporthttp.NewOutreachHandler(syncService, dispatcher, ledger, contactRepo, accountRepo, appLogger, validate)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(transporthttp.PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/outreach", func(api chi.Router) {
		api.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		handler.RegisterRoutes(api)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("HTTP server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		// A running task keeps its session; pause it so the snapshot survives
		// an orderly restart.
		if dispatcher.Status().IsRunning {
			if err := dispatcher.Pause(); err != nil && !errors.Is(err, app.ErrNoRunningTask) {
				appLogger.Warn("Failed to pause running task during shutdown", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Outreach gateway stopped")
}
