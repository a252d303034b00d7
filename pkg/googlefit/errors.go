package googlefit

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed token or fitness call so callers branch on a
// tag instead of matching error text.
type ErrorKind int

const (
	// KindUpstream is a non-2xx answer from Google that isn't a credential
	// problem: malformed data, quota, server errors.
	KindUpstream ErrorKind = iota

	// KindTokenExpired means the stored credentials were rejected and the
	// participant must re-authenticate.
	KindTokenExpired

	// KindNetwork is a transport-level failure before any upstream answer.
	KindNetwork

	// KindMissingRefreshToken means no refresh token is on file; terminal
	// until the participant reconnects. No network call was made.
	KindMissingRefreshToken

	// KindNoDataSources means source filtering left nothing to aggregate.
	KindNoDataSources
)

func (k ErrorKind) String() string {
	switch k {
	case KindTokenExpired:
		return "token_expired"
	case KindNetwork:
		return "network"
	case KindMissingRefreshToken:
		return "missing_refresh_token"
	case KindNoDataSources:
		return "no_data_sources"
	default:
		return "upstream"
	}
}

// Error is the tagged failure returned by the token manager and the step
// fetcher.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("googlefit: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReauthRequired reports whether err means the participant's Google link is
// unusable until they sign in again. Drives the token-expired UI hint.
func ReauthRequired(err error) bool {
	switch KindOf(err) {
	case KindTokenExpired, KindMissingRefreshToken:
		return true
	}
	return false
}

// KindOf extracts the ErrorKind from err, defaulting to KindUpstream for
// errors that did not come out of this package.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUpstream
}
