package googlefit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/steprally/server/pkg/challenge"
	httputil "github.com/steprally/server/pkg/infrastructure/http"
	"github.com/steprally/server/pkg/types"
)

// DefaultTokenEndpoint is Google's OAuth token endpoint.
const DefaultTokenEndpoint = "https://oauth2.googleapis.com/token"

// TokenResult is what EnsureAccessToken hands back: a usable access token and
// the credential set the caller should persist if Refreshed is true.
type TokenResult struct {
	AccessToken string
	Refreshed   bool
	Updated     *types.TokenSet
}

// TokenManager turns a stored credential set into a valid access token,
// performing a refresh-token grant against Google when the stored access
// token is absent or expiring.
type TokenManager struct {
	ClientID     string
	ClientSecret string

	// TokenURL overrides DefaultTokenEndpoint, for tests.
	TokenURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	now func() time.Time
}

func NewTokenManager(clientID, clientSecret string) *TokenManager {
	return &TokenManager{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     DefaultTokenEndpoint,
		now:          time.Now,
	}
}

// EnsureAccessToken returns a valid access token for tokens.
//
// A refresh token must be on file; without one this fails immediately with
// KindMissingRefreshToken and no network call. The stored access token is
// trusted only when its expiry is more than TokenExpiryMargin in the future.
func (m *TokenManager) EnsureAccessToken(ctx context.Context, tokens *types.TokenSet) (*TokenResult, error) {
	if tokens == nil || tokens.RefreshToken == "" {
		return nil, &Error{
			Kind: KindMissingRefreshToken,
			Op:   "ensure access token",
			Err:  errors.New("participant has no refresh token"),
		}
	}

	now := m.nowFunc()()
	stillValid := tokens.AccessToken != "" &&
		!tokens.Expiry.IsZero() &&
		tokens.Expiry.Sub(now) > challenge.TokenExpiryMargin

	if stillValid {
		copied := *tokens
		return &TokenResult{
			AccessToken: tokens.AccessToken,
			Refreshed:   false,
			Updated:     &copied,
		}, nil
	}

	return m.refresh(ctx, tokens, now)
}

func (m *TokenManager) refresh(ctx context.Context, tokens *types.TokenSet, now time.Time) (*TokenResult, error) {
	data := url.Values{}
	data.Set("client_id", m.ClientID)
	data.Set("client_secret", m.ClientSecret)
	data.Set("refresh_token", tokens.RefreshToken)
	data.Set("grant_type", "refresh_token")

	tokenURL := m.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "token refresh", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "token refresh", Err: err}
	}
	defer resp.Body.Close()

	if httpErr := httputil.ErrorFromResponse(resp); httpErr != nil {
		return nil, &Error{
			Kind: classifyRefreshFailure(httpErr),
			Op:   "token refresh",
			Err:  httpErr,
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
		Scope       string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "decode token response", Err: err}
	}
	if payload.AccessToken == "" {
		return nil, &Error{
			Kind: KindUpstream,
			Op:   "decode token response",
			Err:  errors.New("token endpoint returned no access_token"),
		}
	}

	// Google does not rotate refresh tokens on refresh; keep the stored one.
	// Scope and token type survive unless the provider sent new values.
	updated := &types.TokenSet{
		AccessToken:  payload.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       now.Add(time.Duration(payload.ExpiresIn) * time.Second),
		Scope:        tokens.Scope,
		TokenType:    tokens.TokenType,
	}
	if payload.Scope != "" {
		updated.Scope = payload.Scope
	}
	if payload.TokenType != "" {
		updated.TokenType = payload.TokenType
	}

	return &TokenResult{
		AccessToken: payload.AccessToken,
		Refreshed:   true,
		Updated:     updated,
	}, nil
}

// classifyRefreshFailure maps a token-endpoint error response to a kind. The
// OAuth spec puts revoked/expired grants behind 400 invalid_grant; 401 covers
// bad client credentials which equally needs a fresh sign-in to fix.
func classifyRefreshFailure(err error) ErrorKind {
	var httpErr *httputil.HTTPError
	if !errors.As(err, &httpErr) {
		return KindUpstream
	}
	switch httpErr.StatusCode {
	case http.StatusUnauthorized:
		return KindTokenExpired
	case http.StatusBadRequest:
		if strings.Contains(httpErr.Body, "invalid_grant") || strings.Contains(httpErr.Body, "invalid_client") {
			return KindTokenExpired
		}
	}
	return KindUpstream
}

func (m *TokenManager) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return http.DefaultClient
}

func (m *TokenManager) nowFunc() func() time.Time {
	if m.now != nil {
		return m.now
	}
	return time.Now
}
