// Package firestore wraps the raw Firestore client with typed collections
// for the challenge documents.
package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/steprally/server/pkg"
	"github.com/steprally/server/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// Participants is the top-level collection: participants/{participantId}
func (c *Client) Participants() *Collection[types.Participant] {
	return &Collection[types.Participant]{
		Ref:           c.fs.Collection(shared.CollectionParticipants),
		ToFirestore:   ParticipantToFirestore,
		FromFirestore: FirestoreToParticipant,
	}
}

// StepsData holds one metrics doc per participant, keyed by participant id:
// steps_data/{participantId}
func (c *Client) StepsData() *Collection[types.MetricsRecord] {
	return &Collection[types.MetricsRecord]{
		Ref:           c.fs.Collection(shared.CollectionStepsData),
		ToFirestore:   MetricsToFirestore,
		FromFirestore: FirestoreToMetrics,
	}
}

// DailyStepsCache is the TTL'd breakdown snapshot collection:
// daily_steps_cache/{participantId}
func (c *Client) DailyStepsCache() *Collection[types.DailyCacheRecord] {
	return &Collection[types.DailyCacheRecord]{
		Ref:           c.fs.Collection(shared.CollectionDailyStepCache),
		ToFirestore:   DailyCacheToFirestore,
		FromFirestore: FirestoreToDailyCache,
	}
}
