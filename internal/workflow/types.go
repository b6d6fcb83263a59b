package workflow

import (
	"strings"
	"time"

	"github.com/desertthunder/mixgen/internal/services"
	"golang.org/x/oauth2"
)

const (
	MinTracks = 5   // smallest playlist a run may request
	MaxTracks = 100 // largest playlist a run may request, also the attach ceiling

	defaultGenre  = "any"
	topTrackLimit = 5
	topTrackRange = "short_term"
	maxTrackSeeds = 3
	artistLimit   = 5
	maxArtistSeed = 2
)

// Session is the authenticated state obtained from the identity provider.
type Session struct {
	Token       *oauth2.Token
	ExpiresAt   time.Time
	UserID      string // empty until the profile fetch succeeds
	DisplayName string
}

// RecommendationRequest holds the user's generation parameters.
type RecommendationRequest struct {
	DesiredCount int
	Genre        string // "any" or empty means no genre bias
}

// Artist is a track credit.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Image is album artwork.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Track is a catalog track as returned by the recommendations endpoint.
type Track struct {
	ID          string   `json:"id"`
	URI         string   `json:"uri"`
	Name        string   `json:"name"`
	Artists     []Artist `json:"artists"`
	Album       string   `json:"album"`
	AlbumImages []Image  `json:"album_images"`
	DurationMS  int      `json:"duration_ms"`
}

// ArtistNames joins the credited artist names.
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Seeds records which catalog IDs seeded a recommendation request.
type Seeds struct {
	Tracks   []string `json:"tracks"`
	Artists  []string `json:"artists,omitempty"`
	Fallback bool     `json:"fallback"` // true when the configured fallback tracks were used
}

// PendingPlaylist is a generated set of tracks awaiting confirmation.
type PendingPlaylist struct {
	RunID       string                `json:"run_id"`
	Name        string                `json:"name"`
	Request     RecommendationRequest `json:"-"`
	Seeds       Seeds                 `json:"seeds"`
	Tracks      []Track               `json:"tracks"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// CreatedPlaylist is the remote playlist produced by a confirmed run.
type CreatedPlaylist struct {
	RunID       string `json:"run_id"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	ExternalURL string `json:"external_url"`
	SnapshotID  string `json:"snapshot_id"`
	TrackCount  int    `json:"track_count"`
	Dropped     int    `json:"dropped"` // generated tracks past the attach ceiling
	Public      bool   `json:"public"`
}

// Snapshot is a point-in-time copy of the workflow for rendering.
type Snapshot struct {
	State       State
	LoggedIn    bool
	UserID      string
	DisplayName string
	ExpiresAt   time.Time
	Pending     *PendingPlaylist
	Created     *CreatedPlaylist
	LastError   error
}

// ClampCount bounds a requested track count to [MinTracks, MaxTracks].
func ClampCount(n int) int {
	switch {
	case n < MinTracks:
		return MinTracks
	case n > MaxTracks:
		return MaxTracks
	default:
		return n
	}
}

func normalizeGenre(genre string) string {
	genre = strings.TrimSpace(genre)
	if strings.EqualFold(genre, defaultGenre) {
		return ""
	}
	return genre
}

func trackFromCatalog(t services.SpotifyTrack) Track {
	track := Track{
		ID:         t.ID,
		URI:        t.URI,
		Name:       t.Name,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
	}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, Artist{ID: a.ID, Name: a.Name})
	}
	for _, img := range t.Album.Images {
		track.AlbumImages = append(track.AlbumImages, Image{URL: img.URL, Height: img.Height, Width: img.Width})
	}
	return track
}

func trackIDs(tracks []services.SpotifyTrack, limit int) []string {
	ids := make([]string, 0, limit)
	for _, t := range tracks {
		if len(ids) == limit {
			break
		}
		if t.ID != "" {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func artistIDs(artists []services.SpotifyArtist, limit int) []string {
	ids := make([]string, 0, limit)
	for _, a := range artists {
		if len(ids) == limit {
			break
		}
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func (p *PendingPlaylist) clone() *PendingPlaylist {
	if p == nil {
		return nil
	}
	c := *p
	c.Tracks = append([]Track(nil), p.Tracks...)
	c.Seeds.Tracks = append([]string(nil), p.Seeds.Tracks...)
	c.Seeds.Artists = append([]string(nil), p.Seeds.Artists...)
	return &c
}

func (c *CreatedPlaylist) clone() *CreatedPlaylist {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// uris returns the attachable URIs of the pending tracks, capped at [MaxTracks], and how many were left out.
func (p *PendingPlaylist) uris() ([]string, int) {
	uris := make([]string, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.URI != "" {
			uris = append(uris, t.URI)
		}
	}
	if len(uris) <= services.MaxTracksPerRequest {
		return uris, 0
	}
	return uris[:services.MaxTracksPerRequest], len(uris) - services.MaxTracksPerRequest
}
