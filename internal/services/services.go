// Package services contains the catalog client.
package services

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// MaxTracksPerRequest is the catalog's ceiling on URIs per add-tracks call.
const MaxTracksPerRequest = 100

// Catalog defines the catalog and playlist operations the playlist workflow depends on.
//
// Every call is authorized with the caller's bearer token; the implementation keeps no session state.
type Catalog interface {
	// CurrentUser retrieves the profile of the token's owner.
	CurrentUser(ctx context.Context, token *oauth2.Token) (*SpotifyUser, error)

	// TopTracks retrieves the user's most played tracks for a time range (short_term, medium_term, long_term).
	TopTracks(ctx context.Context, token *oauth2.Token, limit int, timeRange string) ([]SpotifyTrack, error)

	// ArtistsByGenre searches for artists tagged with genre.
	ArtistsByGenre(ctx context.Context, token *oauth2.Token, genre string, limit int) ([]SpotifyArtist, error)

	// Recommendations retrieves tracks seeded by the given track and artist IDs.
	Recommendations(ctx context.Context, token *oauth2.Token, opts RecommendationOpts) ([]SpotifyTrack, error)

	// CreatePlaylist creates an empty playlist owned by userID.
	CreatePlaylist(ctx context.Context, token *oauth2.Token, userID string, req CreatePlaylistRequest) (*SpotifyPlaylist, error)

	// AddTracks appends up to [MaxTracksPerRequest] track URIs to a playlist and returns the new snapshot ID.
	AddTracks(ctx context.Context, token *oauth2.Token, playlistID string, uris []string) (string, error)
}

// RecommendationOpts are the query parameters of a recommendation request.
type RecommendationOpts struct {
	Limit       int
	SeedTracks  []string
	SeedArtists []string
}

// CreatePlaylistRequest is the body of a create playlist request.
type CreatePlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// RequestObserver receives one observation per completed catalog request.
//
// status is 0 when the request failed before a response was received.
type RequestObserver interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
}
