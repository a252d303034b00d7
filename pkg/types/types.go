// Package types holds the documents persisted for the step challenge and the
// derived shapes served by the API.
package types

import "time"

// SyncStatus is the stored state of a participant's step metrics. Stored
// values are ready/refreshing/error; stale is derived at read time and never
// persisted.
type SyncStatus string

const (
	StatusReady      SyncStatus = "ready"
	StatusRefreshing SyncStatus = "refreshing"
	StatusError      SyncStatus = "error"
	StatusStale      SyncStatus = "stale"
)

// TokenSet is a participant's Google OAuth credential set. RefreshToken is
// required for any sync to run; AccessToken is only trusted while Expiry is
// comfortably in the future.
type TokenSet struct {
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
}

// Participant is one challenge entrant, created on first sign-in.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	PhotoURL  string    `json:"photoUrl,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Tokens    *TokenSet `json:"-"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// DailyStep is one non-zero day bucket inside the challenge window. Date is
// formatted in the challenge's home timezone.
type DailyStep struct {
	Date            string `json:"date"`
	Steps           int64  `json:"steps"`
	StartTimeMillis int64  `json:"startTimeMillis"`
	EndTimeMillis   int64  `json:"endTimeMillis"`
	Source          string `json:"source,omitempty"`
}

// MetricsRecord is the synced step data for one participant, keyed by the
// participant id. Written only by the sync coordinator.
type MetricsRecord struct {
	ParticipantID       string      `json:"participantId"`
	TotalSteps          int64       `json:"totalSteps"`
	DailySteps          []DailyStep `json:"dailySteps,omitempty"`
	Status              SyncStatus  `json:"status"`
	ErrorMessage        string      `json:"errorMessage,omitempty"`
	TokenExpired        bool        `json:"tokenExpired,omitempty"`
	LastSyncedAt        time.Time   `json:"lastSyncedAt,omitempty"`
	RefreshStartedAt    time.Time   `json:"refreshStartedAt,omitempty"`
	DailyStepsUpdatedAt time.Time   `json:"dailyStepsUpdatedAt,omitempty"`
	CreatedAt           time.Time   `json:"createdAt,omitempty"`
	UpdatedAt           time.Time   `json:"updatedAt,omitempty"`
}

// DailyCacheRecord is the TTL'd per-day breakdown snapshot backing the
// participant detail view. Staleness is independent of MetricsRecord.
type DailyCacheRecord struct {
	ParticipantID string      `json:"participantId"`
	DailySteps    []DailyStep `json:"dailySteps,omitempty"`
	FetchedAt     time.Time   `json:"fetchedAt,omitempty"`
	LastSuccessAt time.Time   `json:"lastSuccessAt,omitempty"`
	ErrorCount    int         `json:"errorCount,omitempty"`
	LastError     string      `json:"lastError,omitempty"`
}

// StepSummary is the upstream aggregation result for the challenge window.
type StepSummary struct {
	TotalSteps int64       `json:"totalSteps"`
	DailySteps []DailyStep `json:"dailySteps"`
}

// LeaderboardRow is Participant x MetricsRecord joined at read time.
type LeaderboardRow struct {
	ParticipantID string     `json:"participantId"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Photo         string     `json:"photo,omitempty"`
	TotalSteps    int64      `json:"totalSteps"`
	LastSyncedAt  *time.Time `json:"lastSyncedAt"`
	IsRefreshing  bool       `json:"isRefreshing"`
	SyncStatus    SyncStatus `json:"syncStatus"`
}

// RefreshStats summarizes one batch refresh.
type RefreshStats struct {
	TotalAttempted     int      `json:"totalAttempted"`
	TokensRefreshed    int      `json:"tokensRefreshed"`
	SuccessfulSyncs    int      `json:"successfulSyncs"`
	FailedSyncs        int      `json:"failedSyncs"`
	FailedParticipants []string `json:"failedParticipants,omitempty"`
}
