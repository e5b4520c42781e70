package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/lowkeylabs/tracktracker/internal/ingest"
)

// ListNewContainers fetches one page of newly released albums. Only the
// first page is fetched; limit bounds its size.
func (c *Client) ListNewContainers(ctx context.Context, limit int) ([]ingest.Container, error) {
	page, err := c.api.NewReleases(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching new releases: %w", err)
	}

	containers := make([]ingest.Container, len(page.Albums))
	for i, album := range page.Albums {
		containers[i] = convertAlbum(album)
	}
	return containers, nil
}

// ListContainerItems fetches the tracks of one album.
func (c *Client) ListContainerItems(ctx context.Context, containerID string) ([]ingest.Item, error) {
	page, err := c.api.GetAlbumTracks(ctx, spotify.ID(containerID))
	if err != nil {
		return nil, fmt.Errorf("fetching album tracks: %w", err)
	}

	items := make([]ingest.Item, len(page.Tracks))
	for i, track := range page.Tracks {
		items[i] = convertAlbumTrack(track)
	}
	return items, nil
}

// GetItemDetail fetches the full record for one track, including its
// popularity score.
func (c *Client) GetItemDetail(ctx context.Context, itemID string) (*ingest.ItemDetail, error) {
	track, err := c.api.GetTrack(ctx, spotify.ID(itemID))
	if err != nil {
		return nil, fmt.Errorf("fetching track: %w", err)
	}
	return convertFullTrack(track), nil
}

// convertAlbum converts a Spotify SimpleAlbum to an ingest.Container.
func convertAlbum(album spotify.SimpleAlbum) ingest.Container {
	return ingest.Container{
		ID:   album.ID.String(),
		Name: album.Name,
	}
}

// convertAlbumTrack converts a Spotify SimpleTrack to an ingest.Item.
func convertAlbumTrack(track spotify.SimpleTrack) ingest.Item {
	return ingest.Item{
		ID:   track.ID.String(),
		Name: track.Name,
	}
}

// convertFullTrack converts a Spotify FullTrack to an ingest.ItemDetail.
func convertFullTrack(track *spotify.FullTrack) *ingest.ItemDetail {
	artists := make([]string, len(track.Artists))
	for i, a := range track.Artists {
		artists[i] = a.Name
	}

	return &ingest.ItemDetail{
		ID:         track.ID.String(),
		Name:       track.Name,
		Artists:    artists,
		Popularity: int(track.Popularity),
	}
}

var _ ingest.Catalog = (*Client)(nil)
