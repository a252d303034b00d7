// Package auth verifies Firebase ID tokens for the sign-in endpoint.
package auth

import (
	"context"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// FirebaseVerifier checks ID tokens against Firebase Auth and returns the
// subject uid.
type FirebaseVerifier struct {
	Client *firebaseauth.Client
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	token, err := v.Client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("verify id token: %w", err)
	}
	return token.UID, nil
}
