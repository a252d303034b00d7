// Package api exposes the HTTP surface: leaderboard reads, per-participant
// daily breakdowns, the blocking refresh endpoint and sign-in upsert.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	shared "github.com/steprally/server/pkg"
	"github.com/steprally/server/pkg/dailycache"
	"github.com/steprally/server/pkg/googlefit"
	"github.com/steprally/server/pkg/leaderboard"
	"github.com/steprally/server/pkg/syncer"
)

// Server wires handlers onto a chi router. DB may be nil (degraded mode);
// data routes then answer 503 while /healthz keeps working.
type Server struct {
	DB       shared.Database
	Verifier shared.TokenVerifier
	Tokens   *googlefit.TokenManager
	Fitness  *googlefit.Client
	Syncer   *syncer.Coordinator
	Board    *leaderboard.Reader
	Cache    *dailycache.Store
	Logger   *slog.Logger
}

// Router builds the full route tree.
func (s *Server) Router() *chi.Mux {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireDatastore)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/refresh", s.handleRefresh)
		r.Get("/participants/{participantID}/daily", s.handleDailySteps)
		r.With(s.requireIDToken).Post("/participants/signin", s.handleSignIn)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// requireDatastore short-circuits data routes when Firestore never came up.
func (s *Server) requireDatastore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.DB == nil {
			writeError(w, http.StatusServiceUnavailable, "datastore not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireIDToken verifies the Firebase bearer token on the sign-in route.
func (s *Server) requireIDToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Verifier == nil {
			writeError(w, http.StatusServiceUnavailable, "auth not configured")
			return
		}
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		uid, err := s.Verifier.VerifyIDToken(r.Context(), token)
		if err != nil {
			s.Logger.Warn("ID token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid id token")
			return
		}
		s.Logger.Debug("Sign-in authenticated", "uid", uid)
		next.ServeHTTP(w, r)
	})
}
