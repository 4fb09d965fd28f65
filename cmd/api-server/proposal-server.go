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

	"procurement/db"
	"procurement/db/migrations"
	"procurement/internal/clock"
	"procurement/internal/config"
	"procurement/internal/handlers"
	"procurement/internal/proposal"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresConn)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer dbConn.Close()

	if cfg.RunMigrations {
		if err := migrations.Run(dbConn.DB); err != nil {
			return err
		}
		version, err := migrations.Version(dbConn.DB)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "version", version)
	}

	store := db.NewStorage(dbConn)
	mgr := proposal.NewManager(store, store, clock.Real(), logger)
	ranking := proposal.NewRankingEngine(store, store)
	h := handlers.NewHandler(mgr, ranking, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RateLimitRPS > 0 {
		limiter := handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(ctx)
		r.Use(limiter.Middleware)
	}
	r.Route("/api", h.Routes)

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddress)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
