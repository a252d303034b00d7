package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steprally/server/pkg/testing/mocks"
	"github.com/steprally/server/pkg/types"
)

func TestSelectParticipantIDsForce(t *testing.T) {
	db := &mocks.MockDatabase{
		ListParticipantsFunc: func(ctx context.Context) ([]*types.Participant, error) {
			return []*types.Participant{{ID: "a"}, {ID: "b"}}, nil
		},
	}

	ids, total, err := SelectParticipantIDs(context.Background(), db, true, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestSelectParticipantIDsThrottled(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	db := &mocks.MockDatabase{
		ListParticipantsFunc: func(ctx context.Context) ([]*types.Participant, error) {
			return []*types.Participant{
				{ID: "fresh"}, {ID: "stale"}, {ID: "never-synced"}, {ID: "fallback"},
			}, nil
		},
		ListMetricsFunc: func(ctx context.Context) ([]*types.MetricsRecord, error) {
			return []*types.MetricsRecord{
				{ParticipantID: "fresh", LastSyncedAt: now.Add(-5 * time.Minute)},
				{ParticipantID: "stale", LastSyncedAt: now.Add(-45 * time.Minute)},
				// No LastSyncedAt: UpdatedAt stands in.
				{ParticipantID: "fallback", UpdatedAt: now.Add(-10 * time.Minute)},
			}, nil
		},
	}

	ids, total, err := SelectParticipantIDs(context.Background(), db, false, now)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"stale", "never-synced"}, ids)
}
