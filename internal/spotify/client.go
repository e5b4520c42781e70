// Package spotify provides the catalog client backed by the Spotify Web API.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Client wraps the Spotify API client with the catalog operations the
// ingestion pipeline consumes.
type Client struct {
	api *spotify.Client
}

// New creates a Client around an already-authenticated API client.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// NewClientCredentials creates a Client using the client-credentials
// grant. Catalog ingestion reads public data only, so no user
// authorization flow is needed.
func NewClientCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	token, err := config.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting client-credentials token: %w", err)
	}

	httpClient := spotifyauth.New().Client(ctx, token)
	return New(spotify.New(httpClient, spotify.WithRetry(true))), nil
}
