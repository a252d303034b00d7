// Command server runs the StepRally HTTP API.
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

	"github.com/steprally/server/pkg/api"
	"github.com/steprally/server/pkg/bootstrap"
	"github.com/steprally/server/pkg/challenge"
	"github.com/steprally/server/pkg/dailycache"
	"github.com/steprally/server/pkg/googlefit"
	"github.com/steprally/server/pkg/infrastructure/sentry"
	"github.com/steprally/server/pkg/leaderboard"
	"github.com/steprally/server/pkg/syncer"
)

func main() {
	ctx := context.Background()

	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		slog.Error("Service init failed", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger("steprally-server", svc.Config.Environment == "development")

	tokens := googlefit.NewTokenManager(svc.Config.GoogleClientID, svc.Config.GoogleClientSecret)
	fitness := googlefit.NewClient()
	coordinator := syncer.New(svc.DB, tokens, fitness, svc.Pub, logger)

	server := &api.Server{
		DB:       svc.DB,
		Verifier: svc.Verifier,
		Tokens:   tokens,
		Fitness:  fitness,
		Syncer:   coordinator,
		Board:    leaderboard.New(svc.DB, coordinator, logger),
		Cache:    dailycache.New(svc.DB, challenge.DailyCacheTTL),
		Logger:   logger,
	}

	httpServer := &http.Server{
		Addr:         ":" + svc.Config.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "port", svc.Config.Port)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", "error", err)
		}

		// Let queued background syncs settle before the process dies.
		coordinator.Wait()
		sentry.Flush(2 * time.Second)
		logger.Info("Server stopped")
	}
}
