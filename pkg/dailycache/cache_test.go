package dailycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steprally/server/pkg/challenge"
	"github.com/steprally/server/pkg/testing/mocks"
	"github.com/steprally/server/pkg/types"
)

func fixedStore(db *mocks.MockDatabase, now time.Time) *Store {
	s := New(db, challenge.DailyCacheTTL)
	s.now = func() time.Time { return now }
	return s
}

func TestShouldFetchFreshData(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	s := fixedStore(&mocks.MockDatabase{}, now)

	assert.True(t, s.ShouldFetchFreshData(nil), "no cache yet")

	assert.True(t, s.ShouldFetchFreshData(&types.DailyCacheRecord{
		FetchedAt:     now.Add(-90 * time.Minute),
		LastSuccessAt: now.Add(-90 * time.Minute),
	}), "older than the TTL")

	assert.False(t, s.ShouldFetchFreshData(&types.DailyCacheRecord{
		FetchedAt:     now.Add(-30 * time.Minute),
		LastSuccessAt: now.Add(-30 * time.Minute),
	}), "fresh cache is served")

	// A cache that has only ever failed keeps retrying even inside the TTL.
	assert.True(t, s.ShouldFetchFreshData(&types.DailyCacheRecord{
		FetchedAt:  now.Add(-time.Minute),
		ErrorCount: 1,
	}))
}

func TestPutSuccessResetsErrors(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	var written map[string]interface{}
	db := &mocks.MockDatabase{
		UpsertDailyCacheFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			written = data
			return nil
		},
	}

	steps := []types.DailyStep{{Date: "2025-10-06", Steps: 4200}}
	require.NoError(t, fixedStore(db, now).Put(context.Background(), "p1", steps, true, nil))

	assert.Equal(t, now, written["fetched_at"])
	assert.Equal(t, now, written["last_success_at"])
	assert.Equal(t, 0, written["error_count"])
	assert.Equal(t, "", written["last_error"])
	assert.NotNil(t, written["daily_steps"])
}

func TestPutFailurePreservesData(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	var written map[string]interface{}
	db := &mocks.MockDatabase{
		UpsertDailyCacheFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			written = data
			return nil
		},
	}

	err := fixedStore(db, now).Put(context.Background(), "p1", nil, false, errors.New("upstream 500"))
	require.NoError(t, err)

	// The stored breakdown and last_success_at are untouched; only the error
	// bookkeeping moves.
	_, hasSteps := written["daily_steps"]
	assert.False(t, hasSteps)
	_, hasSuccess := written["last_success_at"]
	assert.False(t, hasSuccess)
	assert.Equal(t, now, written["fetched_at"])
	assert.Equal(t, firestore.Increment(1), written["error_count"])
	assert.Equal(t, "upstream 500", written["last_error"])
}
