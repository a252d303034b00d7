package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/steprally/server/pkg/participants"
	storage "github.com/steprally/server/pkg/storage/firestore"
	"github.com/steprally/server/pkg/syncer"
	"github.com/steprally/server/pkg/types"
)

// staleDataWarning accompanies a daily response served from an expired cache
// after a failed upstream fetch.
const staleDataWarning = "Data may be outdated due to sync failure"

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := s.Board.FetchLeaderboard(r.Context(), limit)
	if err != nil {
		s.Logger.Error("Leaderboard read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": rows,
		"count":       len(rows),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force := true
	if raw := r.URL.Query().Get("forceRefresh"); raw != "" {
		force = raw == "true"
	}

	ids, total, err := syncer.SelectParticipantIDs(r.Context(), s.DB, force, time.Now())
	if err != nil {
		s.Logger.Error("Participant selection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to select participants")
		return
	}

	stats, err := s.Syncer.RefreshParticipantsByIDs(r.Context(), ids)
	if err != nil {
		s.Logger.Error("Batch refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalParticipants": total,
		"refreshed":         stats.SuccessfulSyncs,
		"forceRefresh":      force,
		"stats":             stats,
	})
}

type dailyResponse struct {
	ParticipantID string            `json:"participantId"`
	DailySteps    []types.DailyStep `json:"dailySteps"`
	TotalSteps    int64             `json:"totalSteps"`
	FromCache     bool              `json:"fromCache"`
	Warning       string            `json:"warning,omitempty"`
}

func (s *Server) handleDailySteps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID := chi.URLParam(r, "participantID")

	participant, err := s.DB.GetParticipant(ctx, participantID)
	if err != nil {
		s.Logger.Error("Participant lookup failed", "participant_id", participantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load participant")
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}
	if participant.Tokens == nil || participant.Tokens.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "participant has no linked Google account")
		return
	}

	cached, err := s.Cache.Get(ctx, participantID)
	if err != nil {
		s.Logger.Warn("Daily cache read failed", "participant_id", participantID, "error", err)
	}

	if cached != nil && !s.Cache.ShouldFetchFreshData(cached) {
		writeJSON(w, http.StatusOK, dailyResponse{
			ParticipantID: participantID,
			DailySteps:    cached.DailySteps,
			TotalSteps:    sumSteps(cached.DailySteps),
			FromCache:     true,
		})
		return
	}

	summary, fetchErr := s.fetchAndPersistDaily(r, participant)
	if fetchErr == nil {
		writeJSON(w, http.StatusOK, dailyResponse{
			ParticipantID: participantID,
			DailySteps:    summary.DailySteps,
			TotalSteps:    summary.TotalSteps,
		})
		return
	}

	s.Logger.Error("Daily fetch failed", "participant_id", participantID, "error", fetchErr)
	if err := s.Cache.Put(ctx, participantID, nil, false, fetchErr); err != nil {
		s.Logger.Warn("Daily cache error write failed", "participant_id", participantID, "error", err)
	}

	// Serve the last good breakdown if one exists; better stale than blank.
	if cached != nil && !cached.LastSuccessAt.IsZero() {
		writeJSON(w, http.StatusOK, dailyResponse{
			ParticipantID: participantID,
			DailySteps:    cached.DailySteps,
			TotalSteps:    sumSteps(cached.DailySteps),
			FromCache:     true,
			Warning:       staleDataWarning,
		})
		return
	}

	writeError(w, http.StatusInternalServerError, "failed to fetch daily steps")
}

// fetchAndPersistDaily pulls a fresh summary and writes it through to the
// metrics record, the daily cache and (when rotated) the stored tokens.
func (s *Server) fetchAndPersistDaily(r *http.Request, p *types.Participant) (*types.StepSummary, error) {
	ctx := r.Context()

	result, err := s.Tokens.EnsureAccessToken(ctx, p.Tokens)
	if err != nil {
		return nil, err
	}
	summary, err := s.Fitness.FetchChallengeStepSummary(ctx, result.AccessToken)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.DB.UpsertMetrics(ctx, p.ID, map[string]interface{}{
		"steps":                  summary.TotalSteps,
		"daily_steps":            storage.DailyStepsToFirestore(summary.DailySteps),
		"daily_steps_updated_at": now,
		"last_synced_at":         now,
		"updated_at":             now,
		"status":                 string(types.StatusReady),
		"error_message":          "",
		"token_expired":          false,
	})
	if err != nil {
		s.Logger.Warn("Metrics write-through failed", "participant_id", p.ID, "error", err)
	}
	if err := s.Cache.Put(ctx, p.ID, summary.DailySteps, true, nil); err != nil {
		s.Logger.Warn("Daily cache write failed", "participant_id", p.ID, "error", err)
	}
	if result.Refreshed {
		err := s.DB.UpdateParticipant(ctx, p.ID, map[string]interface{}{
			"google_tokens": storage.TokenSetToFirestore(result.Updated),
			"updated_at":    now,
		})
		if err != nil {
			s.Logger.Warn("Failed to persist refreshed tokens", "participant_id", p.ID, "error", err)
		}
	}

	return summary, nil
}

type signInRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl"`
	Gender   string `json:"gender"`
	Tokens   struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresAt    int64  `json:"expiresAt"`
		Scope        string `json:"scope"`
		TokenType    string `json:"tokenType"`
	} `json:"tokens"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	var token *oauth2.Token
	if req.Tokens.AccessToken != "" || req.Tokens.RefreshToken != "" {
		token = &oauth2.Token{
			AccessToken:  req.Tokens.AccessToken,
			RefreshToken: req.Tokens.RefreshToken,
			TokenType:    req.Tokens.TokenType,
		}
		if req.Tokens.ExpiresAt > 0 {
			token.Expiry = time.UnixMilli(req.Tokens.ExpiresAt)
		}
	}

	result, err := participants.UpsertFromSignIn(ctx, s.DB, participants.SignInProfile{
		Name:     req.Name,
		Email:    req.Email,
		PhotoURL: req.PhotoURL,
		Gender:   req.Gender,
	}, token, req.Tokens.Scope)
	if err != nil {
		s.Logger.Error("Sign-in upsert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save participant")
		return
	}

	// A first-time credential link syncs inline so the new participant lands
	// on the board with real numbers; repeat sign-ins just queue.
	if result.FirstLink {
		if _, err := s.Syncer.RefreshParticipantsByIDs(ctx, []string{result.ParticipantID}); err != nil {
			s.Logger.Warn("Initial sync failed", "participant_id", result.ParticipantID, "error", err)
		}
	} else {
		s.Syncer.QueueParticipantSync([]string{result.ParticipantID})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"participantId": result.ParticipantID,
		"firstLink":     result.FirstLink,
	})
}

func sumSteps(days []types.DailyStep) int64 {
	var total int64
	for _, d := range days {
		total += d.Steps
	}
	return total
}
