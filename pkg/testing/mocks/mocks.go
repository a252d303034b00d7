package mocks

import (
	"context"
	"fmt"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/steprally/server/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	GetParticipantFunc        func(ctx context.Context, id string) (*types.Participant, error)
	GetParticipantByEmailFunc func(ctx context.Context, email string) (*types.Participant, error)
	GetParticipantsByIDsFunc  func(ctx context.Context, ids []string) ([]*types.Participant, error)
	ListParticipantsFunc      func(ctx context.Context) ([]*types.Participant, error)
	SetParticipantFunc        func(ctx context.Context, p *types.Participant) error
	UpdateParticipantFunc     func(ctx context.Context, id string, data map[string]interface{}) error
	GetMetricsFunc            func(ctx context.Context, participantID string) (*types.MetricsRecord, error)
	ListMetricsFunc           func(ctx context.Context) ([]*types.MetricsRecord, error)
	UpsertMetricsFunc         func(ctx context.Context, participantID string, data map[string]interface{}) error
	GetDailyCacheFunc         func(ctx context.Context, participantID string) (*types.DailyCacheRecord, error)
	UpsertDailyCacheFunc      func(ctx context.Context, participantID string, data map[string]interface{}) error
}

func (m *MockDatabase) GetParticipant(ctx context.Context, id string) (*types.Participant, error) {
	if m.GetParticipantFunc != nil {
		return m.GetParticipantFunc(ctx, id)
	}
	return nil, nil
}
func (m *MockDatabase) GetParticipantByEmail(ctx context.Context, email string) (*types.Participant, error) {
	if m.GetParticipantByEmailFunc != nil {
		return m.GetParticipantByEmailFunc(ctx, email)
	}
	return nil, nil
}
func (m *MockDatabase) GetParticipantsByIDs(ctx context.Context, ids []string) ([]*types.Participant, error) {
	if m.GetParticipantsByIDsFunc != nil {
		return m.GetParticipantsByIDsFunc(ctx, ids)
	}
	return nil, nil
}
func (m *MockDatabase) ListParticipants(ctx context.Context) ([]*types.Participant, error) {
	if m.ListParticipantsFunc != nil {
		return m.ListParticipantsFunc(ctx)
	}
	return nil, nil
}
func (m *MockDatabase) SetParticipant(ctx context.Context, p *types.Participant) error {
	if m.SetParticipantFunc != nil {
		return m.SetParticipantFunc(ctx, p)
	}
	return nil
}
func (m *MockDatabase) UpdateParticipant(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateParticipantFunc != nil {
		return m.UpdateParticipantFunc(ctx, id, data)
	}
	return nil
}
func (m *MockDatabase) GetMetrics(ctx context.Context, participantID string) (*types.MetricsRecord, error) {
	if m.GetMetricsFunc != nil {
		return m.GetMetricsFunc(ctx, participantID)
	}
	return nil, nil
}
func (m *MockDatabase) ListMetrics(ctx context.Context) ([]*types.MetricsRecord, error) {
	if m.ListMetricsFunc != nil {
		return m.ListMetricsFunc(ctx)
	}
	return nil, nil
}
func (m *MockDatabase) UpsertMetrics(ctx context.Context, participantID string, data map[string]interface{}) error {
	if m.UpsertMetricsFunc != nil {
		return m.UpsertMetricsFunc(ctx, participantID, data)
	}
	return nil
}
func (m *MockDatabase) GetDailyCache(ctx context.Context, participantID string) (*types.DailyCacheRecord, error) {
	if m.GetDailyCacheFunc != nil {
		return m.GetDailyCacheFunc(ctx, participantID)
	}
	return nil, nil
}
func (m *MockDatabase) UpsertDailyCache(ctx context.Context, participantID string, data map[string]interface{}) error {
	if m.UpsertDailyCacheFunc != nil {
		return m.UpsertDailyCacheFunc(ctx, participantID, data)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Token Verifier ---
type MockTokenVerifier struct {
	VerifyIDTokenFunc func(ctx context.Context, idToken string) (string, error)
}

func (m *MockTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	if m.VerifyIDTokenFunc != nil {
		return m.VerifyIDTokenFunc(ctx, idToken)
	}
	if idToken == "" {
		return "", fmt.Errorf("missing id token")
	}
	return "mock-uid", nil
}
