package firestore

import (
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/steprally/server/pkg/types"
)

// IsNotFound reports whether err is Firestore's missing-document error.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// IsAlreadyExists reports whether err is Firestore's create-collision error.
func IsAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// Helper to safely get string from map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Helper to safely get bool from map
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Helper to safely get time from map (Firestore hands timestamps back as time.Time)
func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// Helper to safely get an integer from map. Firestore decodes numbers as
// int64 or float64 depending on how they were written.
func getInt64(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// --- Participant Converters ---

func ParticipantToFirestore(p *types.Participant) map[string]interface{} {
	m := map[string]interface{}{
		"id":         p.ID,
		"name":       p.Name,
		"email":      p.Email,
		"updated_at": p.UpdatedAt,
	}
	if p.PhotoURL != "" {
		m["photo_url"] = p.PhotoURL
	}
	if p.Gender != "" {
		m["gender"] = p.Gender
	}
	if !p.CreatedAt.IsZero() {
		m["created_at"] = p.CreatedAt
	}
	if p.Tokens != nil {
		m["google_tokens"] = TokenSetToFirestore(p.Tokens)
	}
	return m
}

func TokenSetToFirestore(t *types.TokenSet) map[string]interface{} {
	return map[string]interface{}{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expiry":        t.Expiry,
		"scope":         t.Scope,
		"token_type":    t.TokenType,
	}
}

func FirestoreToParticipant(m map[string]interface{}) *types.Participant {
	p := &types.Participant{
		ID:        getString(m, "id"),
		Name:      getString(m, "name"),
		Email:     getString(m, "email"),
		PhotoURL:  getString(m, "photo_url"),
		Gender:    getString(m, "gender"),
		CreatedAt: getTime(m, "created_at"),
		UpdatedAt: getTime(m, "updated_at"),
	}

	if raw, ok := m["google_tokens"].(map[string]interface{}); ok {
		p.Tokens = &types.TokenSet{
			AccessToken:  getString(raw, "access_token"),
			RefreshToken: getString(raw, "refresh_token"),
			Expiry:       getTime(raw, "expiry"),
			Scope:        getString(raw, "scope"),
			TokenType:    getString(raw, "token_type"),
		}
	}

	return p
}

// --- MetricsRecord Converters ---

func MetricsToFirestore(r *types.MetricsRecord) map[string]interface{} {
	m := map[string]interface{}{
		"participant_id": r.ParticipantID,
		"steps":          r.TotalSteps,
		"status":         string(r.Status),
		"token_expired":  r.TokenExpired,
	}
	if r.ErrorMessage != "" {
		m["error_message"] = r.ErrorMessage
	}
	if len(r.DailySteps) > 0 {
		m["daily_steps"] = DailyStepsToFirestore(r.DailySteps)
	}
	if !r.LastSyncedAt.IsZero() {
		m["last_synced_at"] = r.LastSyncedAt
	}
	if !r.RefreshStartedAt.IsZero() {
		m["refresh_started_at"] = r.RefreshStartedAt
	}
	if !r.DailyStepsUpdatedAt.IsZero() {
		m["daily_steps_updated_at"] = r.DailyStepsUpdatedAt
	}
	if !r.CreatedAt.IsZero() {
		m["created_at"] = r.CreatedAt
	}
	if !r.UpdatedAt.IsZero() {
		m["updated_at"] = r.UpdatedAt
	}
	return m
}

func FirestoreToMetrics(m map[string]interface{}) *types.MetricsRecord {
	return &types.MetricsRecord{
		ParticipantID:       getString(m, "participant_id"),
		TotalSteps:          getInt64(m, "steps"),
		DailySteps:          firestoreToDailySteps(m["daily_steps"]),
		Status:              types.SyncStatus(getString(m, "status")),
		ErrorMessage:        getString(m, "error_message"),
		TokenExpired:        getBool(m, "token_expired"),
		LastSyncedAt:        getTime(m, "last_synced_at"),
		RefreshStartedAt:    getTime(m, "refresh_started_at"),
		DailyStepsUpdatedAt: getTime(m, "daily_steps_updated_at"),
		CreatedAt:           getTime(m, "created_at"),
		UpdatedAt:           getTime(m, "updated_at"),
	}
}

// --- DailyStep Converters ---

func DailyStepsToFirestore(steps []types.DailyStep) []interface{} {
	out := make([]interface{}, len(steps))
	for i, s := range steps {
		entry := map[string]interface{}{
			"date":              s.Date,
			"steps":             s.Steps,
			"start_time_millis": s.StartTimeMillis,
			"end_time_millis":   s.EndTimeMillis,
		}
		if s.Source != "" {
			entry["source"] = s.Source
		}
		out[i] = entry
	}
	return out
}

func firestoreToDailySteps(v interface{}) []types.DailyStep {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]types.DailyStep, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, types.DailyStep{
			Date:            getString(entry, "date"),
			Steps:           getInt64(entry, "steps"),
			StartTimeMillis: getInt64(entry, "start_time_millis"),
			EndTimeMillis:   getInt64(entry, "end_time_millis"),
			Source:          getString(entry, "source"),
		})
	}
	return out
}

// --- DailyCacheRecord Converters ---

func DailyCacheToFirestore(r *types.DailyCacheRecord) map[string]interface{} {
	m := map[string]interface{}{
		"participant_id": r.ParticipantID,
		"error_count":    r.ErrorCount,
	}
	if len(r.DailySteps) > 0 {
		m["daily_steps"] = DailyStepsToFirestore(r.DailySteps)
	}
	if !r.FetchedAt.IsZero() {
		m["fetched_at"] = r.FetchedAt
	}
	if !r.LastSuccessAt.IsZero() {
		m["last_success_at"] = r.LastSuccessAt
	}
	if r.LastError != "" {
		m["last_error"] = r.LastError
	}
	return m
}

func FirestoreToDailyCache(m map[string]interface{}) *types.DailyCacheRecord {
	return &types.DailyCacheRecord{
		ParticipantID: getString(m, "participant_id"),
		DailySteps:    firestoreToDailySteps(m["daily_steps"]),
		FetchedAt:     getTime(m, "fetched_at"),
		LastSuccessAt: getTime(m, "last_success_at"),
		ErrorCount:    int(getInt64(m, "error_count")),
		LastError:     getString(m, "last_error"),
	}
}
