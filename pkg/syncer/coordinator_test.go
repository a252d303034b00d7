package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/steprally/server/pkg"
	"github.com/steprally/server/pkg/challenge"
	"github.com/steprally/server/pkg/googlefit"
	"github.com/steprally/server/pkg/testing/mocks"
	"github.com/steprally/server/pkg/types"
)

// newFitServer serves both fitness endpoints with a single healthy source and
// one step bucket per participant request.
func newFitServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/dataSources", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"dataSource": []map[string]string{
				{"dataStreamId": "derived:com.google.step_count.delta:gms:estimated_steps"},
			},
		})
	})
	mux.HandleFunc("/aggregate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"bucket":[{"startTimeMillis":"%d","endTimeMillis":"%d","dataset":[{"point":[{"originDataSourceId":"derived:com.google.step_count.delta:gms:estimated_steps","value":[{"intVal":4200}]}]}]}]}`,
			challenge.WindowStartMillis, challenge.WindowStartMillis+int64(challenge.DayMillis))
	})
	return httptest.NewServer(mux)
}

func newTestCoordinator(db *mocks.MockDatabase, pub *mocks.MockPublisher, fitURL string) *Coordinator {
	fitness := &googlefit.Client{
		AggregateURL:   fitURL + "/aggregate",
		DataSourcesURL: fitURL + "/dataSources",
	}
	// A nil *MockPublisher must become a nil interface, or the coordinator's
	// nil check cannot see it.
	var publisher shared.Publisher
	if pub != nil {
		publisher = pub
	}
	return New(db, googlefit.NewTokenManager("cid", "secret"), fitness, publisher, nil)
}

func validTokens() *types.TokenSet {
	return &types.TokenSet{
		AccessToken:  "test-access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestRefreshParticipantsByIDsSuccess(t *testing.T) {
	srv := newFitServer(t)
	defer srv.Close()

	var mu sync.Mutex
	metricsWrites := map[string][]map[string]interface{}{}
	db := &mocks.MockDatabase{
		GetParticipantsByIDsFunc: func(ctx context.Context, ids []string) ([]*types.Participant, error) {
			return []*types.Participant{{ID: "p1", Name: "Asha", Tokens: validTokens()}}, nil
		},
		UpsertMetricsFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			mu.Lock()
			defer mu.Unlock()
			metricsWrites[id] = append(metricsWrites[id], data)
			return nil
		},
	}
	var published int32
	pub := &mocks.MockPublisher{
		PublishCloudEventFunc: func(ctx context.Context, topic string, e event.Event) (string, error) {
			atomic.AddInt32(&published, 1)
			return "msg-id", nil
		},
	}

	stats, err := newTestCoordinator(db, pub, srv.URL).RefreshParticipantsByIDs(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAttempted)
	assert.Equal(t, 1, stats.SuccessfulSyncs)
	assert.Equal(t, 0, stats.FailedSyncs)
	assert.Equal(t, 0, stats.TokensRefreshed, "valid access token needed no refresh")
	assert.Equal(t, int32(1), atomic.LoadInt32(&published))

	writes := metricsWrites["p1"]
	require.Len(t, writes, 2)
	assert.Equal(t, string(types.StatusRefreshing), writes[0]["status"])
	assert.NotNil(t, writes[0]["refresh_started_at"])
	assert.Equal(t, string(types.StatusReady), writes[1]["status"])
	assert.Equal(t, int64(4200), writes[1]["steps"])
	assert.Equal(t, "", writes[1]["error_message"])
	assert.Equal(t, false, writes[1]["token_expired"])
}

func TestRefreshMissingRefreshTokenFailsWithoutNetwork(t *testing.T) {
	srv := newFitServer(t)
	defer srv.Close()

	var mu sync.Mutex
	var lastWrite map[string]interface{}
	db := &mocks.MockDatabase{
		GetParticipantsByIDsFunc: func(ctx context.Context, ids []string) ([]*types.Participant, error) {
			return []*types.Participant{{ID: "p1", Name: "Asha"}}, nil
		},
		UpsertMetricsFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			mu.Lock()
			defer mu.Unlock()
			if _, ok := data["error_message"]; ok {
				lastWrite = data
			}
			return nil
		},
	}

	stats, err := newTestCoordinator(db, nil, srv.URL).RefreshParticipantsByIDs(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedSyncs)
	assert.Equal(t, []string{"p1"}, stats.FailedParticipants)

	require.NotNil(t, lastWrite)
	assert.Equal(t, string(types.StatusError), lastWrite["status"])
	assert.Equal(t, true, lastWrite["token_expired"], "missing credential needs a fresh sign-in")
}

func TestRefreshBatchIsAllSettled(t *testing.T) {
	srv := newFitServer(t)
	defer srv.Close()

	db := &mocks.MockDatabase{
		GetParticipantsByIDsFunc: func(ctx context.Context, ids []string) ([]*types.Participant, error) {
			return []*types.Participant{
				{ID: "good", Tokens: validTokens()},
				{ID: "bad"}, // no tokens
			}, nil
		},
	}

	stats, err := newTestCoordinator(db, nil, srv.URL).RefreshParticipantsByIDs(context.Background(), []string{"good", "bad"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAttempted)
	assert.Equal(t, 1, stats.SuccessfulSyncs)
	assert.Equal(t, 1, stats.FailedSyncs)
	assert.Equal(t, []string{"bad"}, stats.FailedParticipants)
}

func TestRefreshPersistsRotatedTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"rotated","expires_in":3600}`))
	})
	mux.HandleFunc("/dataSources", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"dataSource": []map[string]string{
				{"dataStreamId": "derived:com.google.step_count.delta:gms:estimated_steps"},
			},
		})
	})
	mux.HandleFunc("/aggregate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bucket":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var mu sync.Mutex
	var tokenUpdate map[string]interface{}
	db := &mocks.MockDatabase{
		GetParticipantsByIDsFunc: func(ctx context.Context, ids []string) ([]*types.Participant, error) {
			return []*types.Participant{{
				ID: "p1",
				// Expired access token forces the refresh grant.
				Tokens: &types.TokenSet{AccessToken: "old", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Hour)},
			}}, nil
		},
		UpdateParticipantFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			mu.Lock()
			defer mu.Unlock()
			tokenUpdate = data
			return nil
		},
	}

	tokens := googlefit.NewTokenManager("cid", "secret")
	tokens.TokenURL = srv.URL + "/token"
	fitness := &googlefit.Client{
		AggregateURL:   srv.URL + "/aggregate",
		DataSourcesURL: srv.URL + "/dataSources",
	}
	c := New(db, tokens, fitness, nil, nil)

	stats, err := c.RefreshParticipantsByIDs(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TokensRefreshed)
	assert.Equal(t, 1, stats.SuccessfulSyncs)

	require.NotNil(t, tokenUpdate)
	stored, ok := tokenUpdate["google_tokens"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "rotated", stored["access_token"])
	assert.Equal(t, "refresh", stored["refresh_token"])
}

func TestQueueParticipantSyncDeduplicates(t *testing.T) {
	srv := newFitServer(t)
	defer srv.Close()

	gate := make(chan struct{})
	var loads int32
	db := &mocks.MockDatabase{
		GetParticipantsByIDsFunc: func(ctx context.Context, ids []string) ([]*types.Participant, error) {
			atomic.AddInt32(&loads, 1)
			<-gate
			return []*types.Participant{{ID: "p1", Tokens: validTokens()}}, nil
		},
	}
	c := newTestCoordinator(db, nil, srv.URL)

	// Second enqueue for the same id lands while the first is in flight and
	// must be dropped.
	c.QueueParticipantSync([]string{"p1"})
	c.QueueParticipantSync([]string{"p1", ""})
	close(gate)
	c.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	// Once settled the id can be claimed again.
	c.QueueParticipantSync([]string{"p1"})
	c.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestAcquireSkipsEmptyAndDuplicateIDs(t *testing.T) {
	c := New(&mocks.MockDatabase{}, googlefit.NewTokenManager("", ""), googlefit.NewClient(), nil, nil)

	claimed := c.acquire([]string{"a", "", "b", "a"})
	assert.Equal(t, []string{"a", "b"}, claimed)

	assert.Empty(t, c.acquire([]string{"a", "b"}))

	c.release([]string{"a"})
	assert.Equal(t, []string{"a"}, c.acquire([]string{"a", "b"}))
}

func TestRefreshEmptyBatch(t *testing.T) {
	c := New(&mocks.MockDatabase{}, googlefit.NewTokenManager("", ""), googlefit.NewClient(), nil, nil)

	stats, err := c.RefreshParticipantsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalAttempted)
}
