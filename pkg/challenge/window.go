// Package challenge defines the fixed date window the step challenge runs
// over, plus the timing knobs shared by the sync and leaderboard code.
package challenge

import "time"

// Timezone is the challenge's home timezone. Daily buckets and date labels
// are anchored here regardless of server locale.
const Timezone = "Asia/Kolkata"

const (
	// RefreshThrottle is how old a successful sync may get before a
	// leaderboard read schedules a new one.
	RefreshThrottle = 30 * time.Minute

	// StuckRefreshTimeout is how long a record may sit in status=refreshing
	// before a read treats the sync as dead and reclassifies the row stale.
	StuckRefreshTimeout = 60 * time.Second

	// TokenExpiryMargin is the safety margin applied when deciding whether a
	// stored access token is still usable.
	TokenExpiryMargin = 60 * time.Second

	// DailyCacheTTL bounds how long the per-day breakdown cache is served
	// without consulting Google Fit again.
	DailyCacheTTL = time.Hour

	// DayMillis is the upstream aggregation bucket size.
	DayMillis = 24 * 60 * 60 * 1000
)

// Location is the loaded challenge timezone.
var Location = mustLoadLocation(Timezone)

// Start and End bound the challenge window: 6 Oct 2025 00:00:00 IST through
// 30 Oct 2025 23:59:59.999 IST.
var (
	Start = time.Date(2025, time.October, 6, 0, 0, 0, 0, Location)
	End   = time.Date(2025, time.October, 30, 23, 59, 59, 999_000_000, Location)
)

// WindowStartMillis and WindowEndMillis are the exact instants sent to the
// aggregation endpoint.
var (
	WindowStartMillis = Start.UnixMilli()
	WindowEndMillis   = End.UnixMilli()
)

// FormatDate renders an epoch-millis instant as YYYY-MM-DD in the challenge
// timezone.
func FormatDate(millis int64) string {
	return time.UnixMilli(millis).In(Location).Format("2006-01-02")
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("challenge: load timezone " + name + ": " + err.Error())
	}
	return loc
}
