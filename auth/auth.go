// Package auth wraps the external authentication collaborator (GoTrue).
// The gateway only needs one question answered: which account, if any, does a
// bearer token belong to. Sign-in, sign-up and password management stay on the
// collaborator's side.
package auth

import (
	"context"
	"fmt"

	"github.com/supabase-community/gotrue-go"
)

// Client verifies access tokens against the auth collaborator.
type Client interface {
	// ResolveAccount returns the account ID for a valid access token.
	ResolveAccount(ctx context.Context, accessToken string) (string, error)
}

type gotrueClient struct {
	client gotrue.Client
}

// NewClient creates a GoTrue-backed auth client. customURL, when non-empty,
// overrides the URL derived from the project reference (useful for self-hosted
// deployments and tests).
func NewClient(projectRef, apiKey, customURL string) Client {
	c := gotrue.New(projectRef, apiKey)
	if customURL != "" {
		c = c.WithCustomGoTrueURL(customURL)
	}
	return &gotrueClient{client: c}
}

func (g *gotrueClient) ResolveAccount(_ context.Context, accessToken string) (string, error) {
	user, err := g.client.WithToken(accessToken).GetUser()
	if err != nil {
		return "", fmt.Errorf("failed to verify access token: %w", err)
	}
	return user.ID.String(), nil
}
