// Package oauth provides the bearer-auth HTTP plumbing for upstream Google
// API calls.
package oauth

import "net/http"

// Transport is an http.RoundTripper that authenticates every request with a
// fixed bearer access token. Token freshness is the caller's problem: the
// sync flow obtains a valid token up front and hands it to the fetcher for
// the handful of requests one sync makes.
type Transport struct {
	// AccessToken is attached as the Authorization bearer credential.
	AccessToken string

	// Base is the base RoundTripper used to make the actual HTTP requests.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	req2 := cloneRequest(req)
	req2.Header.Set("Authorization", "Bearer "+t.AccessToken)

	return base.RoundTrip(req2)
}

// NewClient returns an *http.Client that authenticates with accessToken and
// routes through base (nil for the default transport).
func NewClient(accessToken string, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &Transport{AccessToken: accessToken, Base: base}}
}

// cloneRequest returns a clone of the provided *http.Request.
// The clone is a shallow copy of the struct and its Header map.
func cloneRequest(r *http.Request) *http.Request {
	// shallow copy of the struct
	r2 := new(http.Request)
	*r2 = *r
	// deep copy of the Header
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}
