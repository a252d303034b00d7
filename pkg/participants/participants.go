// Package participants handles participant creation and credential capture
// on sign-in. The OAuth dance itself happens in the web frontend; this layer
// receives the resulting profile and token set.
package participants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	shared "github.com/steprally/server/pkg"
	storage "github.com/steprally/server/pkg/storage/firestore"
	"github.com/steprally/server/pkg/types"
)

// SignInProfile is what the auth layer knows about the person who just
// signed in.
type SignInProfile struct {
	Name     string
	Email    string
	PhotoURL string
	Gender   string
}

// UpsertResult reports what happened. FirstLink is true when a refresh token
// landed for a participant that had none; the caller should sync them
// immediately so they show up on the board with real numbers.
type UpsertResult struct {
	ParticipantID string
	FirstLink     bool
}

// UpsertFromSignIn creates or updates a participant from a completed
// sign-in. Stored credentials are only replaced when the incoming set
// carries a refresh token; Google omits it on repeat consents and wiping the
// stored one would break syncing.
func UpsertFromSignIn(ctx context.Context, db shared.Database, profile SignInProfile, token *oauth2.Token, scope string) (*UpsertResult, error) {
	if profile.Email == "" {
		return nil, fmt.Errorf("sign-in profile has no email")
	}
	email := strings.ToLower(profile.Email)

	existing, err := db.GetParticipantByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup participant: %w", err)
	}

	now := time.Now()
	incoming := tokenSetFrom(token, scope)

	if existing == nil {
		p := &types.Participant{
			ID:        uuid.NewString(),
			Name:      nameOrEmail(profile.Name, email),
			Email:     email,
			PhotoURL:  profile.PhotoURL,
			Gender:    profile.Gender,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if incoming != nil && incoming.RefreshToken != "" {
			p.Tokens = incoming
		}
		if err := db.SetParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("create participant: %w", err)
		}
		return &UpsertResult{
			ParticipantID: p.ID,
			FirstLink:     p.Tokens != nil,
		}, nil
	}

	update := map[string]interface{}{
		"name":       nameOrEmail(profile.Name, email),
		"email":      email,
		"updated_at": now,
	}
	if profile.PhotoURL != "" {
		update["photo_url"] = profile.PhotoURL
	}
	if profile.Gender != "" {
		update["gender"] = profile.Gender
	}

	merged := mergeTokens(existing.Tokens, incoming)
	firstLink := false
	if merged != nil && merged.RefreshToken != "" {
		update["google_tokens"] = storage.TokenSetToFirestore(merged)
		firstLink = existing.Tokens == nil || existing.Tokens.RefreshToken == ""
	}

	if err := db.UpdateParticipant(ctx, existing.ID, update); err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}
	return &UpsertResult{ParticipantID: existing.ID, FirstLink: firstLink}, nil
}

func tokenSetFrom(token *oauth2.Token, scope string) *types.TokenSet {
	if token == nil {
		return nil
	}
	return &types.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Scope:        scope,
		TokenType:    token.TokenType,
	}
}

// mergeTokens overlays incoming on stored, incoming fields winning when
// non-empty.
func mergeTokens(stored, incoming *types.TokenSet) *types.TokenSet {
	if incoming == nil {
		return stored
	}
	if stored == nil {
		return incoming
	}

	merged := *stored
	if incoming.AccessToken != "" {
		merged.AccessToken = incoming.AccessToken
	}
	if incoming.RefreshToken != "" {
		merged.RefreshToken = incoming.RefreshToken
	}
	if !incoming.Expiry.IsZero() {
		merged.Expiry = incoming.Expiry
	}
	if incoming.Scope != "" {
		merged.Scope = incoming.Scope
	}
	if incoming.TokenType != "" {
		merged.TokenType = incoming.TokenType
	}
	return &merged
}

func nameOrEmail(name, email string) string {
	if name != "" {
		return name
	}
	return email
}
