// Package syncer owns the refresh pipeline: it de-duplicates refresh
// requests per participant, pulls fresh step totals from Google Fit and
// writes the results back to the metrics collection.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	shared "github.com/steprally/server/pkg"
	"github.com/steprally/server/pkg/googlefit"
	infrapubsub "github.com/steprally/server/pkg/infrastructure/pubsub"
	"github.com/steprally/server/pkg/infrastructure/sentry"
	storage "github.com/steprally/server/pkg/storage/firestore"
	"github.com/steprally/server/pkg/types"
)

// defaultQueueTimeout bounds one background batch. Upstream calls carry no
// per-request timeout, so the batch context is the backstop.
const defaultQueueTimeout = 5 * time.Minute

// Coordinator runs participant syncs. One Coordinator instance owns the
// pending set, so at most one sync per participant is in flight within this
// process. The guarantee is process-local; replicas can race, which is
// accepted.
type Coordinator struct {
	db      shared.Database
	tokens  *googlefit.TokenManager
	fitness *googlefit.Client
	pub     shared.Publisher
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}

	background   sync.WaitGroup
	queueTimeout time.Duration
	now          func() time.Time
}

func New(db shared.Database, tokens *googlefit.TokenManager, fitness *googlefit.Client, pub shared.Publisher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		db:           db,
		tokens:       tokens,
		fitness:      fitness,
		pub:          pub,
		logger:       logger.With("component", "syncer"),
		pending:      make(map[string]struct{}),
		queueTimeout: defaultQueueTimeout,
		now:          time.Now,
	}
}

// RefreshParticipantsByIDs syncs the given participants and blocks until the
// whole batch settles. Ids already queued or in flight are dropped silently.
func (c *Coordinator) RefreshParticipantsByIDs(ctx context.Context, ids []string) (*types.RefreshStats, error) {
	acquired := c.acquire(ids)
	if len(acquired) == 0 {
		return &types.RefreshStats{}, nil
	}
	defer c.release(acquired)

	return c.refreshAcquired(ctx, acquired)
}

// QueueParticipantSync schedules a refresh without blocking the caller.
// Failures are logged, not returned; the caller has already moved on.
// Completion is observable through Wait.
func (c *Coordinator) QueueParticipantSync(ids []string) {
	acquired := c.acquire(ids)
	if len(acquired) == 0 {
		return
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer c.release(acquired)

		ctx, cancel := context.WithTimeout(context.Background(), c.queueTimeout)
		defer cancel()

		stats, err := c.refreshAcquired(ctx, acquired)
		if err != nil {
			c.logger.Error("Background refresh failed", "error", err, "participants", len(acquired))
			return
		}
		c.logger.Info("Background refresh completed",
			"attempted", stats.TotalAttempted,
			"succeeded", stats.SuccessfulSyncs,
			"failed", stats.FailedSyncs)
	}()
}

// Wait blocks until all queued background refreshes have settled. Used by
// graceful shutdown and tests.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

// acquire claims the subset of ids not already pending. Claims happen
// synchronously, before any work starts, so two rapid requests for the same
// participant cannot both proceed.
func (c *Coordinator) acquire(ids []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var claimed []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := c.pending[id]; ok {
			continue
		}
		c.pending[id] = struct{}{}
		claimed = append(claimed, id)
	}
	return claimed
}

func (c *Coordinator) release(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.pending, id)
	}
}

// refreshAcquired does the actual batch work. Callers must hold the pending
// claims for ids and release them afterwards.
func (c *Coordinator) refreshAcquired(ctx context.Context, ids []string) (*types.RefreshStats, error) {
	participants, err := c.db.GetParticipantsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	stats := &types.RefreshStats{TotalAttempted: len(participants)}
	if len(participants) == 0 {
		return stats, nil
	}

	// Mark everyone refreshing up front so concurrent leaderboard reads see
	// the sync in progress rather than re-queueing it.
	now := c.now()
	for _, p := range participants {
		err := c.db.UpsertMetrics(ctx, p.ID, map[string]interface{}{
			"status":             string(types.StatusRefreshing),
			"refresh_started_at": now,
			"updated_at":         now,
		})
		if err != nil {
			c.logger.Warn("Failed to mark participant refreshing", "participant_id", p.ID, "error", err)
		}
	}

	// Fan out one goroutine per participant; every outcome is collected, no
	// failure cancels a sibling.
	var (
		statsMu sync.Mutex
		wg      sync.WaitGroup
	)
	for _, p := range participants {
		wg.Add(1)
		go func(p *types.Participant) {
			defer wg.Done()
			refreshed, syncErr := c.refreshParticipant(ctx, p)

			statsMu.Lock()
			defer statsMu.Unlock()
			if refreshed {
				stats.TokensRefreshed++
			}
			if syncErr != nil {
				stats.FailedSyncs++
				stats.FailedParticipants = append(stats.FailedParticipants, p.ID)
			} else {
				stats.SuccessfulSyncs++
			}
		}(p)
	}
	wg.Wait()

	c.publishCompletion(ctx, stats)
	return stats, nil
}

// refreshParticipant runs the token -> fetch -> persist chain for one
// participant. The bool reports whether a token refresh was performed.
func (c *Coordinator) refreshParticipant(ctx context.Context, p *types.Participant) (bool, error) {
	result, err := c.tokens.EnsureAccessToken(ctx, p.Tokens)
	if err != nil {
		c.markSyncError(ctx, p.ID, err)
		return false, err
	}

	summary, err := c.fitness.FetchChallengeStepSummary(ctx, result.AccessToken)
	if err != nil {
		c.markSyncError(ctx, p.ID, err)
		return result.Refreshed, err
	}

	now := c.now()
	err = c.db.UpsertMetrics(ctx, p.ID, map[string]interface{}{
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
		c.markSyncError(ctx, p.ID, fmt.Errorf("persist metrics: %w", err))
		return result.Refreshed, err
	}

	if result.Refreshed {
		err := c.db.UpdateParticipant(ctx, p.ID, map[string]interface{}{
			"google_tokens": storage.TokenSetToFirestore(result.Updated),
			"updated_at":    now,
		})
		if err != nil {
			// Metrics are already fresh; losing the rotated token only costs
			// an extra refresh next sync.
			c.logger.Warn("Failed to persist refreshed tokens", "participant_id", p.ID, "error", err)
		}
	}

	c.logger.Info("Participant synced", "participant_id", p.ID, "total_steps", summary.TotalSteps)
	return result.Refreshed, nil
}

func (c *Coordinator) markSyncError(ctx context.Context, participantID string, cause error) {
	c.logger.Error("Participant sync failed", "participant_id", participantID, "error", cause)

	switch googlefit.KindOf(cause) {
	case googlefit.KindUpstream, googlefit.KindNetwork:
		// Credential problems are user state, not bugs; only unexpected
		// upstream failures go to Sentry.
		sentry.CaptureException(cause, map[string]interface{}{"participant_id": participantID}, c.logger)
	}

	err := c.db.UpsertMetrics(ctx, participantID, map[string]interface{}{
		"status":        string(types.StatusError),
		"error_message": cause.Error(),
		"token_expired": googlefit.ReauthRequired(cause),
		"updated_at":    c.now(),
	})
	if err != nil {
		c.logger.Error("Failed to record sync error", "participant_id", participantID, "error", err)
	}
}

func (c *Coordinator) publishCompletion(ctx context.Context, stats *types.RefreshStats) {
	if c.pub == nil {
		return
	}
	e, err := infrapubsub.NewCloudEvent(infrapubsub.EventSourceSyncer, infrapubsub.EventTypeRefreshCompleted, stats)
	if err != nil {
		c.logger.Warn("Failed to build refresh event", "error", err)
		return
	}
	if _, err := c.pub.PublishCloudEvent(ctx, shared.TopicRefreshCompleted, e); err != nil {
		c.logger.Warn("Failed to publish refresh event", "error", err)
	}
}
