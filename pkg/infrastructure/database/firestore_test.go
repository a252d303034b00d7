package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMetricsDocStampsCreateOnlyFields(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	data := map[string]interface{}{
		"steps":  int64(4200),
		"status": "ready",
	}

	doc := newMetricsDoc("p1", data, now)
	assert.Equal(t, "p1", doc["participant_id"])
	assert.Equal(t, now, doc["created_at"])
	assert.Equal(t, int64(4200), doc["steps"])

	// The caller's map stays clean; only the create attempt carries stamps.
	_, stamped := data["participant_id"]
	assert.False(t, stamped)
	_, stamped = data["created_at"]
	assert.False(t, stamped)
}

func TestNewMetricsDocKeepsExplicitCreatedAt(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	explicit := now.Add(-time.Hour)

	doc := newMetricsDoc("p1", map[string]interface{}{"created_at": explicit}, now)
	assert.Equal(t, explicit, doc["created_at"])
}
