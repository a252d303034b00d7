// Package database adapts the typed Firestore storage client to the
// shared.Database interface the rest of the app depends on.
package database

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	shared "github.com/steprally/server/pkg"
	storage "github.com/steprally/server/pkg/storage/firestore"
	"github.com/steprally/server/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore.
type FirestoreAdapter struct {
	storage *storage.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{storage: storage.NewClient(client)}
}

var _ shared.Database = (*FirestoreAdapter)(nil)

// --- Participants ---

func (a *FirestoreAdapter) GetParticipant(ctx context.Context, id string) (*types.Participant, error) {
	p, err := a.storage.Participants().Doc(id).Get(ctx)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	p.ID = id
	return p, nil
}

func (a *FirestoreAdapter) GetParticipantByEmail(ctx context.Context, email string) (*types.Participant, error) {
	matches, err := a.storage.Participants().Where(ctx, "email", email)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (a *FirestoreAdapter) GetParticipantsByIDs(ctx context.Context, ids []string) ([]*types.Participant, error) {
	out := make([]*types.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := a.GetParticipant(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *FirestoreAdapter) ListParticipants(ctx context.Context) ([]*types.Participant, error) {
	return a.storage.Participants().All(ctx)
}

func (a *FirestoreAdapter) SetParticipant(ctx context.Context, p *types.Participant) error {
	return a.storage.Participants().Doc(p.ID).Set(ctx, p)
}

func (a *FirestoreAdapter) UpdateParticipant(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.Participants().Doc(id).Update(ctx, data)
}

// --- Step metrics ---

func (a *FirestoreAdapter) GetMetrics(ctx context.Context, participantID string) (*types.MetricsRecord, error) {
	r, err := a.storage.StepsData().Doc(participantID).Get(ctx)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (a *FirestoreAdapter) ListMetrics(ctx context.Context) ([]*types.MetricsRecord, error) {
	return a.storage.StepsData().All(ctx)
}

// UpsertMetrics merge-writes the given fields into the participant's metrics
// doc. created_at and participant_id are only stamped when the doc is being
// created, so an existing record keeps its original creation time. Create is
// tried first and loses atomically to a concurrent writer, so two first-time
// upserts cannot both stamp created_at.
func (a *FirestoreAdapter) UpsertMetrics(ctx context.Context, participantID string, data map[string]interface{}) error {
	doc := a.storage.StepsData().Doc(participantID)

	err := doc.Create(ctx, newMetricsDoc(participantID, data, time.Now()))
	if err == nil {
		return nil
	}
	if !storage.IsAlreadyExists(err) {
		return err
	}

	return doc.Update(ctx, data)
}

// newMetricsDoc copies data into a fresh map with the create-only fields
// stamped. The caller's map is never mutated.
func newMetricsDoc(participantID string, data map[string]interface{}, now time.Time) map[string]interface{} {
	doc := make(map[string]interface{}, len(data)+2)
	for k, v := range data {
		doc[k] = v
	}
	doc["participant_id"] = participantID
	if _, ok := doc["created_at"]; !ok {
		doc["created_at"] = now
	}
	return doc
}

// --- Daily-steps cache ---

func (a *FirestoreAdapter) GetDailyCache(ctx context.Context, participantID string) (*types.DailyCacheRecord, error) {
	r, err := a.storage.DailyStepsCache().Doc(participantID).Get(ctx)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (a *FirestoreAdapter) UpsertDailyCache(ctx context.Context, participantID string, data map[string]interface{}) error {
	data["participant_id"] = participantID
	return a.storage.DailyStepsCache().Doc(participantID).Update(ctx, data)
}
