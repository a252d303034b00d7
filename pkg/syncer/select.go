package syncer

import (
	"context"
	"time"

	shared "github.com/steprally/server/pkg"
	"github.com/steprally/server/pkg/challenge"
)

// SelectParticipantIDs picks which participants a batch refresh should cover.
// With force set, everyone; otherwise only those whose metrics are missing or
// synced longer ago than the refresh throttle. The int is the total
// participant count, for reporting.
func SelectParticipantIDs(ctx context.Context, db shared.Database, force bool, now time.Time) ([]string, int, error) {
	participants, err := db.ListParticipants(ctx)
	if err != nil {
		return nil, 0, err
	}

	if force {
		ids := make([]string, 0, len(participants))
		for _, p := range participants {
			ids = append(ids, p.ID)
		}
		return ids, len(participants), nil
	}

	metrics, err := db.ListMetrics(ctx)
	if err != nil {
		return nil, 0, err
	}
	lastSynced := make(map[string]time.Time, len(metrics))
	for _, m := range metrics {
		t := m.LastSyncedAt
		if t.IsZero() {
			t = m.UpdatedAt
		}
		lastSynced[m.ParticipantID] = t
	}

	var ids []string
	for _, p := range participants {
		t, ok := lastSynced[p.ID]
		if !ok || t.IsZero() || now.Sub(t) > challenge.RefreshThrottle {
			ids = append(ids, p.ID)
		}
	}
	return ids, len(participants), nil
}
