package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	shared "github.com/steprally/server/pkg"
	"github.com/steprally/server/pkg/infrastructure/auth"
	"github.com/steprally/server/pkg/infrastructure/database"
	infrapubsub "github.com/steprally/server/pkg/infrastructure/pubsub"
	"github.com/steprally/server/pkg/infrastructure/sentry"
)

// Config holds standard configuration for all services
type Config struct {
	ProjectID          string
	EnablePublish      bool
	GoogleClientID     string
	GoogleClientSecret string
	SentryDSN          string
	Environment        string
	Port               string
	CredentialsFile    string
}

// Service holds initialized dependencies
type Service struct {
	DB       shared.Database
	Pub      shared.Publisher
	Verifier shared.TokenVerifier
	Config   *Config
}

// LoadConfig reads configuration from environment variables
func LoadConfig() *Config {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		projectID = shared.ProjectID // Fallback
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &Config{
		ProjectID:          projectID,
		EnablePublish:      os.Getenv("ENABLE_PUBLISH") == "true",
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		SentryDSN:          os.Getenv("SENTRY_DSN"),
		Environment:        env,
		Port:               port,
		CredentialsFile:    os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
	}
}

// GetSlogHandlerOptions returns standard handler options for GCP
func GetSlogHandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Map standard keys to Cloud Logging keys
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// ComponentHandler wraps a slog.Handler to prepend [component] to the message
type ComponentHandler struct {
	slog.Handler
	component string
}

// WithGroup implements slog.Handler
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithGroup(name),
		component: h.component,
	}
}

// WithAttrs implements slog.Handler
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newComp := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			newComp = a.Value.String()
		}
	}
	return &ComponentHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		component: newComp,
	}
}

// Handle implements slog.Handler
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	comp := h.component

	// Check if component is overridden in the record attributes
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			comp = a.Value.String()
			return false // stop
		}
		return true
	})

	if comp != "" {
		newMsg := fmt.Sprintf("[%s] %s", comp, r.Message)
		newRecord := slog.NewRecord(r.Time, r.Level, newMsg, r.PC)

		// Keep the component attribute in the structured payload too; log
		// queries filter on it.
		r.Attrs(func(a slog.Attr) bool {
			newRecord.AddAttrs(a)
			return true
		})
		r = newRecord
	}

	return h.Handler.Handle(ctx, r)
}

// InitLogger configures structured logging with Cloud Logging compatible keys
func InitLogger() {
	opts := GetSlogHandlerOptions(slog.LevelInfo)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(&ComponentHandler{Handler: handler})
	slog.SetDefault(logger)
}

// NewLogger creates a configured logger instance
func NewLogger(serviceName string, isDev bool) *slog.Logger {
	logLevelStr := os.Getenv("LOG_LEVEL")
	var level slog.Level
	switch strings.ToLower(logLevelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := GetSlogHandlerOptions(level)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(&ComponentHandler{Handler: handler}).With("service", serviceName)
}

func clientOptions(cfg *Config) []option.ClientOption {
	if cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
}

// NewService initializes all standard dependencies. A missing or broken
// Firestore configuration degrades the service (DB stays nil, handlers return
// 503) instead of failing startup, so health checks still answer.
func NewService(ctx context.Context) (*Service, error) {
	InitLogger()
	cfg := LoadConfig()

	slog.Info("Initializing service", "project_id", cfg.ProjectID, "environment", cfg.Environment)

	if err := sentry.Init(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServerName:  "steprally-server",
	}, slog.Default()); err != nil {
		slog.Warn("Sentry init failed", "error", err)
	}

	svc := &Service{Config: cfg}

	// Firestore
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, clientOptions(cfg)...)
	if err != nil {
		slog.Warn("Firestore init failed - running in degraded mode", "error", err)
	} else {
		svc.DB = database.NewFirestoreAdapter(fsClient)
	}

	// Pub/Sub
	if cfg.EnablePublish {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions(cfg)...)
		if err != nil {
			slog.Error("PubSub init failed", "error", err)
			return nil, fmt.Errorf("pubsub init: %w", err)
		}
		svc.Pub = &infrapubsub.PubSubAdapter{Client: psClient}
		slog.Info("Pub/Sub: REAL (ENABLE_PUBLISH=true)")
	} else {
		svc.Pub = &infrapubsub.LogPublisher{}
		slog.Info("Pub/Sub: MOCK (LogPublisher)")
	}

	// Firebase Auth for sign-in verification
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOptions(cfg)...)
	if err != nil {
		slog.Warn("Firebase init failed - sign-in verification disabled", "error", err)
	} else {
		authClient, err := app.Auth(ctx)
		if err != nil {
			slog.Warn("Firebase auth init failed - sign-in verification disabled", "error", err)
		} else {
			svc.Verifier = &auth.FirebaseVerifier{Client: authClient}
		}
	}

	return svc, nil
}
