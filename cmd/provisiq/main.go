package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/provisiq/internal/adapter/fsm"
	otelx "github.com/neomorfeo/provisiq/internal/adapter/otel"
	riverx "github.com/neomorfeo/provisiq/internal/adapter/river"
	"github.com/neomorfeo/provisiq/internal/adapter/sqlite"
	"github.com/neomorfeo/provisiq/internal/adapter/stub"
	"github.com/neomorfeo/provisiq/internal/app"

	handler "github.com/neomorfeo/provisiq/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("provisiq: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("DATABASE_PATH", "provisiq.db")

	// --- Observability ---
	providers, err := otelx.Setup(ctx, otelx.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// --- Storage ---
	db, err := otelx.OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return err
	}

	// --- Notification queue ---
	notification := stub.NewNotification()

	riverClient, err := riverx.Setup(ctx, db, notification)
	if err != nil {
		return err
	}
	if err := riverClient.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			slog.Error("river shutdown", "error", err)
		}
	}()

	// --- Provisioning adapters ---
	creds := app.NewTokenCache(5*time.Minute, nil)
	identity := stub.NewIdentity(creds)

	// --- Application ---
	validator := fsm.New()
	ledger := otelx.NewTracingLedger(store.Ledger())
	notifier := otelx.NewTracingNotifier(riverx.NewNotifier(riverClient))

	svc := app.NewTenantService(store.Tenants(), ledger, validator)

	orch := app.NewOrchestrator(app.Deps{
		Tenants:   store.Tenants(),
		Ledger:    ledger,
		Runs:      store.Workflows(),
		Validator: validator,
		Notifier:  notifier,
		Identity:  identity,
		Schema:    stub.NewSchema(),
		Storage:   stub.NewStorage(),
		Infra:     stub.NewInfra(),
		DNS:       stub.NewDNS(),
		Logger:    slog.Default(),
	}, app.DefaultRetryPolicy)

	// Resume workflows interrupted by a previous crash or restart.
	if err := orch.ResumePending(ctx); err != nil {
		slog.Warn("resuming pending workflows", "error", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("provisiq", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("provisiq", "0.1.0"))
	handler.Register(api, svc, orch)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("provisiq listening", "port", port)
		slog.Info("API docs", "url", "http://localhost:"+port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}

	slog.Info("stopped")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
