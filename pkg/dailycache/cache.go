// Package dailycache stores the last-known per-day step breakdown per
// participant, so the detail view doesn't hit Google Fit on every request.
package dailycache

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	shared "github.com/steprally/server/pkg"
	storage "github.com/steprally/server/pkg/storage/firestore"
	"github.com/steprally/server/pkg/types"
)

// Store reads and writes the daily-steps cache collection. Staleness here is
// independent of the metrics record: the breakdown has its own TTL.
type Store struct {
	db  shared.Database
	ttl time.Duration
	now func() time.Time
}

func New(db shared.Database, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl, now: time.Now}
}

// Get returns the cached record, or nil when none exists.
func (s *Store) Get(ctx context.Context, participantID string) (*types.DailyCacheRecord, error) {
	return s.db.GetDailyCache(ctx, participantID)
}

// Put records a fetch attempt. A success replaces the stored breakdown and
// resets the error counter; a failure bumps the counter and keeps the last
// good breakdown in place, so one bad upstream call never wipes usable data.
func (s *Store) Put(ctx context.Context, participantID string, dailySteps []types.DailyStep, success bool, fetchErr error) error {
	now := s.now()

	if success {
		return s.db.UpsertDailyCache(ctx, participantID, map[string]interface{}{
			"daily_steps":     storage.DailyStepsToFirestore(dailySteps),
			"fetched_at":      now,
			"last_success_at": now,
			"error_count":     0,
			"last_error":      "",
		})
	}

	update := map[string]interface{}{
		"fetched_at":  now,
		"error_count": firestore.Increment(1),
	}
	if fetchErr != nil {
		update["last_error"] = fetchErr.Error()
	}
	return s.db.UpsertDailyCache(ctx, participantID, update)
}

// ShouldFetchFreshData decides whether the upstream API must be consulted:
// no cache yet, cache older than the TTL, or a cache that has only ever
// failed (retry until the first success lands).
func (s *Store) ShouldFetchFreshData(rec *types.DailyCacheRecord) bool {
	if rec == nil {
		return true
	}
	if rec.FetchedAt.IsZero() || s.now().Sub(rec.FetchedAt) > s.ttl {
		return true
	}
	if rec.LastSuccessAt.IsZero() && rec.ErrorCount >= 1 {
		return true
	}
	return false
}
