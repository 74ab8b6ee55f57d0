package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"certverify/internal/platform/config"
	"certverify/internal/platform/httpserver"
	"certverify/internal/platform/logger"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New(os.Stderr, logger.FormatJSON, "error").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, logger.FormatJSON, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing certverify",
		"addr", cfg.Addr,
		"auth_enabled", cfg.AuthEnabled(),
		"redis", cfg.Redis.URL != "",
		"postgres", cfg.DatabaseURL != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	srv := httpserver.New(cfg.Addr, otelhttp.NewHandler(app.router, "certverify"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := app.audit.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		app.close()
		os.Exit(1)
	}
	log.Info("server stopped")
}
