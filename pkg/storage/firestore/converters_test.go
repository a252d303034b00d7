package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/steprally/server/pkg/types"
)

func TestParticipantRoundTrip(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	p := &types.Participant{
		ID:       "p1",
		Name:     "Asha",
		Email:    "asha@example.com",
		PhotoURL: "https://example.com/a.png",
		Gender:   "female",
		Tokens: &types.TokenSet{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       now.Add(time.Hour),
			Scope:        "fitness.activity.read",
			TokenType:    "Bearer",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	got := FirestoreToParticipant(ParticipantToFirestore(p))
	assert.Equal(t, p, got)
}

func TestParticipantWithoutTokens(t *testing.T) {
	p := &types.Participant{ID: "p1", Name: "Asha", Email: "a@b.c"}

	m := ParticipantToFirestore(p)
	_, hasTokens := m["google_tokens"]
	assert.False(t, hasTokens)

	got := FirestoreToParticipant(m)
	assert.Nil(t, got.Tokens)
}

func TestMetricsRoundTrip(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	r := &types.MetricsRecord{
		ParticipantID: "p1",
		TotalSteps:    9001,
		DailySteps: []types.DailyStep{
			{Date: "2025-10-06", Steps: 4200, StartTimeMillis: 1, EndTimeMillis: 2, Source: "derived:steps"},
			{Date: "2025-10-07", Steps: 4801, StartTimeMillis: 2, EndTimeMillis: 3},
		},
		Status:              types.StatusReady,
		TokenExpired:        false,
		LastSyncedAt:        now,
		RefreshStartedAt:    now.Add(-time.Minute),
		DailyStepsUpdatedAt: now,
		CreatedAt:           now.Add(-time.Hour),
		UpdatedAt:           now,
	}

	got := FirestoreToMetrics(MetricsToFirestore(r))
	assert.Equal(t, r, got)
}

func TestMetricsErrorStateRoundTrip(t *testing.T) {
	r := &types.MetricsRecord{
		ParticipantID: "p1",
		Status:        types.StatusError,
		ErrorMessage:  "token refresh: 400",
		TokenExpired:  true,
	}

	got := FirestoreToMetrics(MetricsToFirestore(r))
	assert.Equal(t, types.StatusError, got.Status)
	assert.Equal(t, "token refresh: 400", got.ErrorMessage)
	assert.True(t, got.TokenExpired)
}

func TestDailyCacheRoundTrip(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	r := &types.DailyCacheRecord{
		ParticipantID: "p1",
		DailySteps:    []types.DailyStep{{Date: "2025-10-06", Steps: 4200, StartTimeMillis: 1, EndTimeMillis: 2}},
		FetchedAt:     now,
		LastSuccessAt: now,
		ErrorCount:    2,
		LastError:     "upstream 500",
	}

	got := FirestoreToDailyCache(DailyCacheToFirestore(r))
	assert.Equal(t, r, got)
}

func TestFirestoreNumericWidths(t *testing.T) {
	// Numbers come back as int64 or float64 depending on the writer.
	m := map[string]interface{}{
		"participant_id": "p1",
		"steps":          float64(4200),
	}
	got := FirestoreToMetrics(m)
	require.Equal(t, int64(4200), got.TotalSteps)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(status.Error(codes.NotFound, "missing")))
	assert.False(t, IsNotFound(status.Error(codes.PermissionDenied, "nope")))
	assert.False(t, IsNotFound(nil))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, IsAlreadyExists(status.Error(codes.AlreadyExists, "document already exists")))
	assert.False(t, IsAlreadyExists(status.Error(codes.NotFound, "missing")))
	assert.False(t, IsAlreadyExists(nil))
}
