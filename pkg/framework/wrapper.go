// Package framework wraps Cloud Function handlers with uniform logging and
// error capture.
package framework

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/steprally/server/pkg/bootstrap"
	"github.com/steprally/server/pkg/infrastructure/sentry"
)

// FrameworkContext contains dependencies injected by the framework
type FrameworkContext struct {
	Service *bootstrap.Service
	Logger  *slog.Logger
}

// HandlerFunc is the signature for a cloud function handler
type HandlerFunc func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error)

// WrapCloudEvent wraps a handler with start/finish logging and Sentry capture
// on failure.
func WrapCloudEvent(serviceName string, svc *bootstrap.Service, handler HandlerFunc) func(context.Context, event.Event) error {
	return func(ctx context.Context, e event.Event) error {
		logLevelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
		var logLevel slog.Level
		switch logLevelStr {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}

		opts := bootstrap.GetSlogHandlerOptions(logLevel)
		logger := slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", serviceName)

		logger.Info("Function started", "event_type", e.Type(), "event_id", e.ID())

		fwCtx := &FrameworkContext{
			Service: svc,
			Logger:  logger,
		}

		outputs, handlerErr := handler(ctx, e, fwCtx)
		if handlerErr != nil {
			logger.Error("Function failed", "error", handlerErr)
			sentry.CaptureException(handlerErr, map[string]interface{}{"service": serviceName}, logger)
			return handlerErr
		}

		logger.Info("Function completed successfully", "outputs", outputs)
		return nil
	}
}
