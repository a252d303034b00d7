// Package leaderboard builds the ranked challenge standings by joining
// participants with their synced step metrics.
package leaderboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	shared "github.com/steprally/server/pkg"
	"github.com/steprally/server/pkg/challenge"
	"github.com/steprally/server/pkg/types"
)

// DefaultLimit caps a leaderboard read when the caller doesn't say.
const DefaultLimit = 100

// Syncer is the slice of the sync coordinator the reader needs: a
// fire-and-forget enqueue for stale participants.
type Syncer interface {
	QueueParticipantSync(ids []string)
}

// Reader serves leaderboard rows. Reads have a side effect: participants
// whose data is stale are handed to the Syncer in one batch.
type Reader struct {
	db     shared.Database
	syncer Syncer
	logger *slog.Logger
	now    func() time.Time
}

func New(db shared.Database, syncer Syncer, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		db:     db,
		syncer: syncer,
		logger: logger.With("component", "leaderboard"),
		now:    time.Now,
	}
}

// FetchLeaderboard returns up to limit rows ordered by total steps
// descending, names collated ascending on ties. With no data store
// configured it returns an empty board rather than an error so the page
// still renders.
func (r *Reader) FetchLeaderboard(ctx context.Context, limit int) ([]types.LeaderboardRow, error) {
	if r.db == nil {
		return []types.LeaderboardRow{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	participants, err := r.db.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := r.db.ListMetrics(ctx)
	if err != nil {
		return nil, err
	}

	metricsByID := make(map[string]*types.MetricsRecord, len(metrics))
	for _, m := range metrics {
		metricsByID[m.ParticipantID] = m
	}

	now := r.now()
	rows := make([]types.LeaderboardRow, 0, len(participants))
	var staleIDs []string

	for _, p := range participants {
		row, stale := r.buildRow(p, metricsByID[p.ID], now)
		rows = append(rows, row)
		if stale {
			staleIDs = append(staleIDs, p.ID)
		}
	}

	// Collators mutate internal iterator state on every compare, so each read
	// gets its own; sharing one across requests is a data race.
	collator := collate.New(language.English)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalSteps != rows[j].TotalSteps {
			return rows[i].TotalSteps > rows[j].TotalSteps
		}
		return collator.CompareString(rows[i].Name, rows[j].Name) < 0
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	if len(staleIDs) > 0 && r.syncer != nil {
		r.logger.Debug("Scheduling background refresh", "stale", len(staleIDs))
		r.syncer.QueueParticipantSync(staleIDs)
	}

	return rows, nil
}

// buildRow derives the user-visible view of one participant and reports
// whether they need a refresh.
func (r *Reader) buildRow(p *types.Participant, m *types.MetricsRecord, now time.Time) (types.LeaderboardRow, bool) {
	row := types.LeaderboardRow{
		ParticipantID: p.ID,
		Name:          displayName(p),
		Email:         p.Email,
		Photo:         p.PhotoURL,
	}

	status := types.StatusReady
	var totalSteps int64
	var lastSynced, refreshStarted time.Time

	if m != nil {
		totalSteps = m.TotalSteps
		if m.Status != "" {
			status = m.Status
		}
		lastSynced = m.LastSyncedAt
		if lastSynced.IsZero() {
			lastSynced = m.UpdatedAt
		}
		refreshStarted = m.RefreshStartedAt
	}

	needsRefresh := lastSynced.IsZero() || now.Sub(lastSynced) > challenge.RefreshThrottle

	// A sync stuck past the timeout is dead; the row goes back to stale even
	// though its stored status still says refreshing.
	refreshTimedOut := status == types.StatusRefreshing &&
		!refreshStarted.IsZero() &&
		now.Sub(refreshStarted) > challenge.StuckRefreshTimeout

	row.IsRefreshing = status == types.StatusRefreshing &&
		!refreshTimedOut &&
		(refreshStarted.IsZero() || now.Sub(refreshStarted) < challenge.RefreshThrottle)

	switch {
	case refreshTimedOut || needsRefresh:
		row.SyncStatus = types.StatusStale
	case status == types.StatusError:
		row.SyncStatus = types.StatusError
	default:
		row.SyncStatus = status
	}

	row.TotalSteps = totalSteps
	if !lastSynced.IsZero() {
		t := lastSynced
		row.LastSyncedAt = &t
	}

	return row, needsRefresh || refreshTimedOut
}

func displayName(p *types.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Email != "" {
		return p.Email
	}
	return "Participant"
}
