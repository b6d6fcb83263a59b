// Spotify Web API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"
	defaultTimeout = 15 * time.Second
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifyPlaylist represents a playlist resource as returned by create playlist.
type SpotifyPlaylist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Public       bool              `json:"public"`
	ExternalURLs map[string]string `json:"external_urls"`
	URI          string            `json:"uri"`
}

// URL returns the playlist's web player link.
func (p SpotifyPlaylist) URL() string {
	return p.ExternalURLs["spotify"]
}

type topTracksResponse struct {
	Items []SpotifyTrack `json:"items"`
}

type searchArtistsResponse struct {
	Artists struct {
		Items []SpotifyArtist `json:"items"`
	} `json:"artists"`
}

type recommendationsResponse struct {
	Tracks []SpotifyTrack `json:"tracks"`
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// SpotifyOpts configures a [SpotifyService].
type SpotifyOpts struct {
	BaseURL    string          // defaults to the public Web API
	HTTPClient *http.Client    // defaults to a client with a 15s timeout
	RateLimit  float64         // requests per second; 0 disables throttling
	Logger     *log.Logger     // defaults to shared.NewLogger(nil)
	Observer   RequestObserver // optional
}

// SpotifyService implements [Catalog] against the Spotify Web API.
//
// Requests are throttled with a [rate.Limiter] and carry the caller's [oauth2.Token] as a bearer header.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	observer   RequestObserver
}

var _ Catalog = (*SpotifyService)(nil)

// NewSpotifyService creates a new Spotify catalog client.
func NewSpotifyService(opts SpotifyOpts) *SpotifyService {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &SpotifyService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		limiter:    limiter,
		logger:     opts.Logger,
		observer:   opts.Observer,
	}
}

// request describes one catalog call. route is a low-cardinality label used for logs and metrics.
type request struct {
	method string
	route  string
	path   string
	query  url.Values
	body   any
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, token *oauth2.Token, r request, result any) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: no access token", shared.ErrNotAuthenticated)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
		}
	}

	apiURL := s.baseURL + r.path
	if len(r.query) > 0 {
		apiURL += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, apiURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.observe(r.route, 0, start)
		return fmt.Errorf("%w: %s %s: %v", shared.ErrServiceUnavailable, r.method, r.route, err)
	}
	defer resp.Body.Close()
	s.observe(r.route, resp.StatusCode, start)

	s.logger.Debug("catalog request", "method", r.method, "route", r.route, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return responseError(r.route, resp.StatusCode, data)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrAPIRequest, r.route, err)
		}
	}

	return nil
}

func (s *SpotifyService) observe(route string, status int, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveRequest(route, status, time.Since(start))
	}
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context, token *oauth2.Token) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, token, request{method: http.MethodGet, route: "/me", path: "/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopTracks retrieves the user's top tracks for the given time range.
func (s *SpotifyService) TopTracks(ctx context.Context, token *oauth2.Token, limit int, timeRange string) ([]SpotifyTrack, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	if timeRange == "" {
		timeRange = "medium_term"
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("time_range", timeRange)

	var response topTracksResponse
	r := request{method: http.MethodGet, route: "/me/top/tracks", path: "/me/top/tracks", query: query}
	if err := s.doRequest(ctx, token, r, &response); err != nil {
		return nil, err
	}

	return response.Items, nil
}

// ArtistsByGenre searches artists with a genre filter. Multi-word genres are quoted.
func (s *SpotifyService) ArtistsByGenre(ctx context.Context, token *oauth2.Token, genre string, limit int) ([]SpotifyArtist, error) {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return nil, fmt.Errorf("%w: empty genre", shared.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 5 {
		limit = 5
	}
	if strings.ContainsRune(genre, ' ') {
		genre = strconv.Quote(genre)
	}

	query := url.Values{}
	query.Set("q", "genre:"+genre)
	query.Set("type", "artist")
	query.Set("limit", strconv.Itoa(limit))

	var response searchArtistsResponse
	r := request{method: http.MethodGet, route: "/search", path: "/search", query: query}
	if err := s.doRequest(ctx, token, r, &response); err != nil {
		return nil, err
	}

	return response.Artists.Items, nil
}

// Recommendations retrieves recommended tracks for the given seeds.
func (s *SpotifyService) Recommendations(ctx context.Context, token *oauth2.Token, opts RecommendationOpts) ([]SpotifyTrack, error) {
	if len(opts.SeedTracks) == 0 && len(opts.SeedArtists) == 0 {
		return nil, fmt.Errorf("%w: at least one seed is required", shared.ErrInvalidArgument)
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(opts.Limit))
	if len(opts.SeedTracks) > 0 {
		query.Set("seed_tracks", strings.Join(opts.SeedTracks, ","))
	}
	if len(opts.SeedArtists) > 0 {
		query.Set("seed_artists", strings.Join(opts.SeedArtists, ","))
	}

	var response recommendationsResponse
	r := request{method: http.MethodGet, route: "/recommendations", path: "/recommendations", query: query}
	if err := s.doRequest(ctx, token, r, &response); err != nil {
		return nil, err
	}

	return response.Tracks, nil
}

// CreatePlaylist creates a playlist owned by userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, token *oauth2.Token, userID string, req CreatePlaylistRequest) (*SpotifyPlaylist, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", shared.ErrMissingArgument)
	}

	var playlist SpotifyPlaylist
	r := request{
		method: http.MethodPost,
		route:  "/users/{id}/playlists",
		path:   fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID)),
		body:   req,
	}
	if err := s.doRequest(ctx, token, r, &playlist); err != nil {
		return nil, err
	}

	return &playlist, nil
}

// AddTracks appends track URIs to a playlist.
func (s *SpotifyService) AddTracks(ctx context.Context, token *oauth2.Token, playlistID string, uris []string) (string, error) {
	if len(uris) == 0 {
		return "", fmt.Errorf("%w: no track URIs provided", shared.ErrInvalidArgument)
	}
	if len(uris) > MaxTracksPerRequest {
		return "", fmt.Errorf("%w: maximum %d track URIs allowed", shared.ErrInvalidArgument, MaxTracksPerRequest)
	}

	var response snapshotResponse
	r := request{
		method: http.MethodPost,
		route:  "/playlists/{id}/tracks",
		path:   fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID)),
		body:   addTracksRequest{URIs: uris},
	}
	if err := s.doRequest(ctx, token, r, &response); err != nil {
		return "", err
	}

	return response.SnapshotID, nil
}
