package shared

import (
	"context"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/steprally/server/pkg/types"
)

// --- Persistence Interfaces ---

type Database interface {
	// Participants
	GetParticipant(ctx context.Context, id string) (*types.Participant, error)
	GetParticipantByEmail(ctx context.Context, email string) (*types.Participant, error)
	GetParticipantsByIDs(ctx context.Context, ids []string) ([]*types.Participant, error)
	ListParticipants(ctx context.Context) ([]*types.Participant, error)
	SetParticipant(ctx context.Context, p *types.Participant) error
	UpdateParticipant(ctx context.Context, id string, data map[string]interface{}) error

	// Step metrics (one doc per participant)
	GetMetrics(ctx context.Context, participantID string) (*types.MetricsRecord, error)
	ListMetrics(ctx context.Context) ([]*types.MetricsRecord, error)
	UpsertMetrics(ctx context.Context, participantID string, data map[string]interface{}) error

	// Daily-steps cache
	GetDailyCache(ctx context.Context, participantID string) (*types.DailyCacheRecord, error)
	UpsertDailyCache(ctx context.Context, participantID string, data map[string]interface{}) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Auth Interfaces ---

// TokenVerifier verifies an inbound identity token and returns the subject uid.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (string, error)
}
