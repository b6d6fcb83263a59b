package workflow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/mixgen/internal/auth"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/shared"
	tu "github.com/desertthunder/mixgen/internal/testing"
)

const loginFragment = "access_token=T1&token_type=Bearer&expires_in=3600"

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []string
	operations  []string
}

func (r *fakeRecorder) RecordTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *fakeRecorder) RecordOperation(op, outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, op+":"+outcome)
}

type fixture struct {
	stub     *tu.CatalogStub
	clock    *tu.FakeClock
	recorder *fakeRecorder
	wf       *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stub := tu.NewCatalogStub(t)
	clock := tu.NewFakeClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	authorizer, err := auth.NewAuthorizer("client-id", "http://127.0.0.1:8888/callback", "")
	if err != nil {
		t.Fatalf("failed to create authorizer: %v", err)
	}
	recorder := &fakeRecorder{}

	wf := New(Options{
		Catalog:    services.NewSpotifyService(services.SpotifyOpts{BaseURL: stub.URL(), Logger: shared.NewLogger(io.Discard)}),
		Authorizer: authorizer,
		Clock:      clock,
		Logger:     shared.NewLogger(io.Discard),
		Recorder:   recorder,
		Config:     shared.DefaultConfig().Workflow,
	})

	return &fixture{stub: stub, clock: clock, recorder: recorder, wf: wf}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	if err := f.wf.CompleteLogin(context.Background(), loginFragment); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func (f *fixture) generate(t *testing.T, req RecommendationRequest) *PendingPlaylist {
	t.Helper()
	pending, err := f.wf.GenerateRecommendations(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	return pending
}

func assertState(t *testing.T, wf *Workflow, want State) {
	t.Helper()
	if got := wf.State(); got != want {
		t.Fatalf("expected state %s, got %s", want, got)
	}
}

func assertCleared(t *testing.T, wf *Workflow) {
	t.Helper()
	snap := wf.Snapshot()
	if snap.State != LoggedOut || snap.LoggedIn || snap.Pending != nil || snap.Created != nil {
		t.Fatalf("expected cleared logged out workflow, got %+v", snap)
	}
}

func TestState(t *testing.T) {
	tc := []struct {
		state State
		want  string
	}{
		{LoggedOut, "logged_out"},
		{Authenticating, "authenticating"},
		{Ready, "ready"},
		{Generating, "generating"},
		{Previewing, "previewing"},
		{Creating, "creating"},
		{Completed, "completed"},
		{State(42), "unknown"},
	}

	for _, tt := range tc {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}

	if !Generating.Busy() || !Creating.Busy() || Ready.Busy() {
		t.Error("only Generating and Creating should be busy")
	}
}

func TestClampCount(t *testing.T) {
	tc := []struct {
		in, want int
	}{
		{-1, 5}, {0, 5}, {3, 5}, {5, 5}, {20, 20}, {100, 100}, {150, 100},
	}

	for _, tt := range tc {
		if got := ClampCount(tt.in); got != tt.want {
			t.Errorf("ClampCount(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("StartLogin", func(t *testing.T) {
		f := newFixture(t)

		authURL, err := f.wf.StartLogin()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertState(t, f.wf, Authenticating)

		u, err := url.Parse(authURL)
		if err != nil {
			t.Fatalf("invalid URL: %v", err)
		}
		q := u.Query()
		if q.Get("response_type") != "token" || q.Get("client_id") != "client-id" || q.Get("state") == "" {
			t.Errorf("unexpected authorize query %v", q)
		}
	})

	t.Run("StartLogin Discards Session", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		if _, err := f.wf.StartLogin(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.wf.Snapshot().LoggedIn {
			t.Error("expected previous session to be discarded")
		}
		if f.clock.PendingTimers() != 0 {
			t.Error("expected expiry timer to be stopped")
		}
	})

	t.Run("StartLogin Without Authorizer", func(t *testing.T) {
		wf := New(Options{Logger: shared.NewLogger(io.Discard)})
		if _, err := wf.StartLogin(); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("Valid Fragment", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		snap := f.wf.Snapshot()
		if snap.State != Ready || !snap.LoggedIn {
			t.Fatalf("expected logged in Ready, got %+v", snap)
		}
		if snap.UserID != "u1" || snap.DisplayName != "Test User" {
			t.Errorf("unexpected profile %q %q", snap.UserID, snap.DisplayName)
		}
		if want := f.clock.Now().Add(time.Hour); !snap.ExpiresAt.Equal(want) {
			t.Errorf("expected expiry %v, got %v", want, snap.ExpiresAt)
		}
		if f.clock.PendingTimers() != 1 {
			t.Errorf("expected 1 expiry timer, got %d", f.clock.PendingTimers())
		}
		if header := f.stub.CallsTo(http.MethodGet, "/me")[0].Auth; header != "Bearer T1" {
			t.Errorf("expected token from fragment, got %q", header)
		}
	})

	t.Run("Absent Token Is A No-op", func(t *testing.T) {
		for _, fragment := range []string{"", "#", "state=abc", "#error=access_denied&state=abc"} {
			f := newFixture(t)

			if err := f.wf.CompleteLogin(ctx, fragment); err != nil {
				t.Errorf("fragment %q: expected nil error, got %v", fragment, err)
			}
			assertCleared(t, f.wf)
			if len(f.stub.Calls()) != 0 {
				t.Errorf("fragment %q: expected no catalog calls", fragment)
			}
		}
	})

	t.Run("Absent Token Keeps Active Session", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		pending := f.generate(t, RecommendationRequest{DesiredCount: 20, Genre: "any"})

		if err := f.wf.CompleteLogin(ctx, "error=access_denied"); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}

		snap := f.wf.Snapshot()
		if snap.State != Previewing || !snap.LoggedIn {
			t.Fatalf("expected session to survive, got %+v", snap)
		}
		if snap.Pending == nil || len(snap.Pending.Tracks) != len(pending.Tracks) {
			t.Error("expected pending playlist to survive")
		}
		if f.clock.PendingTimers() != 1 {
			t.Errorf("expected expiry timer to survive, got %d", f.clock.PendingTimers())
		}
	})

	t.Run("Absent Token Ends Pending Login", func(t *testing.T) {
		f := newFixture(t)
		f.wf.StartLogin()

		if err := f.wf.CompleteLogin(ctx, "error=access_denied"); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		assertCleared(t, f.wf)
	})

	t.Run("Matching State", func(t *testing.T) {
		f := newFixture(t)

		authURL, _ := f.wf.StartLogin()
		u, _ := url.Parse(authURL)
		state := u.Query().Get("state")

		if err := f.wf.CompleteLogin(ctx, "#access_token=T1&expires_in=3600&state="+state); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertState(t, f.wf, Ready)
	})

	t.Run("State Mismatch", func(t *testing.T) {
		f := newFixture(t)
		f.wf.StartLogin()

		err := f.wf.CompleteLogin(ctx, "access_token=T1&expires_in=3600&state=forged")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		assertCleared(t, f.wf)
	})

	t.Run("State After Logout Is Rejected", func(t *testing.T) {
		f := newFixture(t)

		authURL, _ := f.wf.StartLogin()
		u, _ := url.Parse(authURL)
		state := u.Query().Get("state")
		f.wf.Logout()

		err := f.wf.CompleteLogin(ctx, "access_token=T1&expires_in=3600&state="+state)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		assertCleared(t, f.wf)
		if len(f.stub.Calls()) != 0 {
			t.Error("expected no catalog calls")
		}
	})

	t.Run("Profile Failure Keeps Session", func(t *testing.T) {
		f := newFixture(t)
		f.stub.Fail(http.MethodGet, "/me", http.StatusInternalServerError, "boom")

		err := f.wf.CompleteLogin(ctx, loginFragment)
		if !errors.Is(err, shared.ErrProfileUnavailable) {
			t.Fatalf("expected ErrProfileUnavailable, got %v", err)
		}

		snap := f.wf.Snapshot()
		if snap.State != Ready || !snap.LoggedIn || snap.UserID != "" {
			t.Errorf("expected session without profile, got %+v", snap)
		}
		if !errors.Is(snap.LastError, shared.ErrProfileUnavailable) {
			t.Errorf("expected last error to be recorded, got %v", snap.LastError)
		}
	})

	t.Run("Profile Unauthorized Expires Session", func(t *testing.T) {
		f := newFixture(t)
		f.stub.Fail(http.MethodGet, "/me", http.StatusUnauthorized, "Invalid access token")

		err := f.wf.CompleteLogin(ctx, loginFragment)
		if !errors.Is(err, shared.ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
		assertCleared(t, f.wf)
	})

	t.Run("Expiry Timer", func(t *testing.T) {
		f := newFixture(t)
		expired := 0
		f.wf.SetExpireHook(func() { expired++ })

		if err := f.wf.CompleteLogin(ctx, "access_token=T1&expires_in=2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertState(t, f.wf, Ready)

		f.clock.Advance(1 * time.Second)
		assertState(t, f.wf, Ready)

		f.clock.Advance(1 * time.Second)
		assertCleared(t, f.wf)
		if expired != 1 {
			t.Errorf("expected expire hook to run once, got %d", expired)
		}
		if !errors.Is(f.wf.Snapshot().LastError, shared.ErrSessionExpired) {
			t.Error("expected session expired error to be surfaced")
		}

		_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20, Genre: "any"})
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated after expiry, got %v", err)
		}
	})

	t.Run("Stale Timer Does Not Expire New Session", func(t *testing.T) {
		f := newFixture(t)

		f.wf.CompleteLogin(ctx, "access_token=T1&expires_in=2")
		f.wf.CompleteLogin(ctx, "access_token=T2&expires_in=10")

		f.clock.Advance(3 * time.Second)
		assertState(t, f.wf, Ready)
	})
}

func TestGenerateRecommendations(t *testing.T) {
	ctx := context.Background()

	t.Run("Requires Session", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20})
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
		if len(f.stub.Calls()) != 0 {
			t.Errorf("expected no catalog calls, got %d", len(f.stub.Calls()))
		}
	})

	t.Run("Seeds From Top Tracks", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		pending := f.generate(t, RecommendationRequest{DesiredCount: 20, Genre: "any"})

		assertState(t, f.wf, Previewing)
		if len(pending.Tracks) != 20 || pending.RunID == "" || pending.Name != "Generated Playlist" {
			t.Errorf("unexpected pending playlist %+v", pending)
		}
		if pending.Seeds.Fallback {
			t.Error("expected top tracks to seed the request")
		}

		top := f.stub.CallsTo(http.MethodGet, "/me/top/tracks")[0].Query
		if top.Get("limit") != "5" || top.Get("time_range") != "short_term" {
			t.Errorf("unexpected top tracks query %v", top)
		}

		rec := f.stub.CallsTo(http.MethodGet, "/recommendations")[0].Query
		if rec.Get("seed_tracks") != "top-1,top-2,top-3" {
			t.Errorf("expected first three top tracks as seeds, got %q", rec.Get("seed_tracks"))
		}
		if len(f.stub.CallsTo(http.MethodGet, "/search")) != 0 {
			t.Error("genre any must not search artists")
		}

		track := pending.Tracks[0]
		if track.URI != "spotify:track:rec-1" || track.ArtistNames() != "Artist rec-1" || len(track.AlbumImages) != 1 {
			t.Errorf("unexpected track %+v", track)
		}
	})

	t.Run("Count Is Clamped", func(t *testing.T) {
		tc := []struct {
			count int
			want  string
		}{
			{count: 3, want: "5"},
			{count: 150, want: "100"},
		}

		for _, tt := range tc {
			f := newFixture(t)
			f.login(t)
			f.generate(t, RecommendationRequest{DesiredCount: tt.count, Genre: "any"})

			got := f.stub.CallsTo(http.MethodGet, "/recommendations")[0].Query.Get("limit")
			if got != tt.want {
				t.Errorf("count %d: expected limit %s, got %s", tt.count, tt.want, got)
			}
		}
	})

	t.Run("Top Tracks Failure Uses Fallback Seeds", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.stub.Fail(http.MethodGet, "/me/top/tracks", http.StatusInternalServerError, "boom")

		pending := f.generate(t, RecommendationRequest{DesiredCount: 20, Genre: "any"})

		if !pending.Seeds.Fallback {
			t.Error("expected fallback seeds")
		}
		rec := f.stub.CallsTo(http.MethodGet, "/recommendations")[0].Query
		if rec.Get("seed_tracks") != "4uLU6hMCjMI75M1A2tKUQC,0VjIjW4GlUZAMYd2vXMi3b" {
			t.Errorf("expected fallback seed pair, got %q", rec.Get("seed_tracks"))
		}
	})

	t.Run("Empty Top Tracks Uses Fallback Seeds", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.stub.Handle(http.MethodGet, "/me/top/tracks", tu.JSONHandler(http.StatusOK, map[string]any{"items": []any{}}))

		pending := f.generate(t, RecommendationRequest{DesiredCount: 20})
		if !pending.Seeds.Fallback || len(pending.Seeds.Tracks) != 2 {
			t.Errorf("expected fallback seeds, got %+v", pending.Seeds)
		}
	})

	t.Run("Genre Adds Artist Seeds", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		pending := f.generate(t, RecommendationRequest{DesiredCount: 20, Genre: "rock"})

		search := f.stub.CallsTo(http.MethodGet, "/search")
		if len(search) != 1 || search[0].Query.Get("q") != "genre:rock" {
			t.Fatalf("expected one genre search, got %+v", search)
		}
		rec := f.stub.CallsTo(http.MethodGet, "/recommendations")[0].Query
		if rec.Get("seed_artists") != "artist-1,artist-2" {
			t.Errorf("expected two artist seeds, got %q", rec.Get("seed_artists"))
		}
		if len(pending.Seeds.Artists) != 2 {
			t.Errorf("expected artist seeds recorded, got %v", pending.Seeds.Artists)
		}
	})

	t.Run("Genre Search Failure Is Ignored", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.stub.Fail(http.MethodGet, "/search", http.StatusBadGateway, "bad gateway")

		pending := f.generate(t, RecommendationRequest{DesiredCount: 10, Genre: "rock"})

		if len(pending.Seeds.Artists) != 0 {
			t.Errorf("expected no artist seeds, got %v", pending.Seeds.Artists)
		}
		if _, ok := f.stub.CallsTo(http.MethodGet, "/recommendations")[0].Query["seed_artists"]; ok {
			t.Error("expected seed_artists to be omitted")
		}
	})

	t.Run("Empty Recommendations", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.stub.Handle(http.MethodGet, "/recommendations", tu.JSONHandler(http.StatusOK, map[string]any{"tracks": []any{}}))

		_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20})
		if !errors.Is(err, shared.ErrNoResults) {
			t.Fatalf("expected ErrNoResults, got %v", err)
		}
		if err.Error() != "no tracks matched the selected filters" {
			t.Errorf("unexpected message %q", err.Error())
		}

		snap := f.wf.Snapshot()
		if snap.State != Ready || snap.Pending != nil || !errors.Is(snap.LastError, shared.ErrNoResults) {
			t.Errorf("expected Ready without pending playlist, got %+v", snap)
		}
	})

	t.Run("Recommendation API Error", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.stub.Fail(http.MethodGet, "/recommendations", http.StatusTooManyRequests, "API rate limit exceeded")

		_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20})

		var apiErr *services.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
			t.Fatalf("expected APIError 429, got %v", err)
		}
		assertState(t, f.wf, Ready)
	})

	t.Run("Unauthorized At Any Step Logs Out", func(t *testing.T) {
		tc := []struct {
			name string
			path string
		}{
			{name: "top tracks", path: "/me/top/tracks"},
			{name: "genre search", path: "/search"},
			{name: "recommendations", path: "/recommendations"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				f.login(t)
				expired := false
				f.wf.SetExpireHook(func() { expired = true })
				f.stub.Fail(http.MethodGet, tt.path, http.StatusUnauthorized, "The access token expired")

				_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20, Genre: "rock"})
				if !errors.Is(err, shared.ErrSessionExpired) {
					t.Fatalf("expected ErrSessionExpired, got %v", err)
				}
				assertCleared(t, f.wf)
				if !expired {
					t.Error("expected expire hook to run")
				}
				if f.clock.PendingTimers() != 0 {
					t.Error("expected expiry timer to be stopped")
				}
			})
		}
	})

	t.Run("Wrong State", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})

		_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20})
		if !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		assertState(t, f.wf, Previewing)
	})

	t.Run("Concurrent Generate Is Rejected", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		entered := make(chan struct{})
		release := make(chan struct{})
		f.stub.Handle(http.MethodGet, "/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-release
			tu.WriteJSON(w, http.StatusOK, map[string]any{"items": tu.Tracks("top", 5)})
		})

		done := make(chan error, 1)
		go func() {
			_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20})
			done <- err
		}()
		<-entered

		_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20})
		if !errors.Is(err, shared.ErrBusy) {
			t.Errorf("expected ErrBusy, got %v", err)
		}
		assertState(t, f.wf, Generating)

		close(release)
		if err := <-done; err != nil {
			t.Fatalf("first generate failed: %v", err)
		}
		assertState(t, f.wf, Previewing)
		if n := len(f.stub.CallsTo(http.MethodGet, "/recommendations")); n != 1 {
			t.Errorf("expected 1 recommendations call, got %d", n)
		}
	})

	t.Run("Expiry During Generate Wins", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		entered := make(chan struct{})
		release := make(chan struct{})
		f.stub.Handle(http.MethodGet, "/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-release
			tu.WriteJSON(w, http.StatusOK, map[string]any{"items": tu.Tracks("top", 5)})
		})

		done := make(chan error, 1)
		go func() {
			_, err := f.wf.GenerateRecommendations(ctx, RecommendationRequest{DesiredCount: 20})
			done <- err
		}()
		<-entered

		f.clock.Advance(time.Hour)
		assertCleared(t, f.wf)

		close(release)
		if err := <-done; !errors.Is(err, shared.ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
		assertCleared(t, f.wf)
		if n := len(f.stub.CallsTo(http.MethodGet, "/recommendations")); n != 0 {
			t.Errorf("expected no recommendations call after expiry, got %d", n)
		}
	})

	t.Run("Progress", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		progress := make(chan ProgressUpdate, 10)
		f.wf.SetProgress(progress)

		pending := f.generate(t, RecommendationRequest{DesiredCount: 20, Genre: "rock"})
		close(progress)

		var phases []string
		for update := range progress {
			if update.RunID != pending.RunID || update.Total != 3 {
				t.Errorf("unexpected update %+v", update)
			}
			phases = append(phases, update.Phase.String())
		}
		if got := strings.Join(phases, ","); got != "fetch_top_tracks,search_artists,fetch_recommendations" {
			t.Errorf("unexpected phases %s", got)
		}
	})

	t.Run("Full Progress Channel Does Not Block", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.wf.SetProgress(make(chan ProgressUpdate))

		f.generate(t, RecommendationRequest{DesiredCount: 20})
		assertState(t, f.wf, Previewing)
	})
}

func TestConfirmPlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates And Populates", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		pending := f.generate(t, RecommendationRequest{DesiredCount: 20})

		created, err := f.wf.ConfirmPlaylist(ctx, "  ")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if created.ID != "pl1" || created.ExternalURL != "https://open.spotify.com/playlist/pl1" {
			t.Errorf("unexpected created playlist %+v", created)
		}
		if created.TrackCount != 20 || created.Dropped != 0 || created.SnapshotID != "snap1" || created.RunID != pending.RunID {
			t.Errorf("unexpected created playlist %+v", created)
		}

		var body services.CreatePlaylistRequest
		f.stub.CallsTo(http.MethodPost, "/users/u1/playlists")[0].DecodeBody(t, &body)
		if body.Name != "Generated Playlist" || !body.Public || body.Description == "" {
			t.Errorf("unexpected create body %+v", body)
		}

		var add struct {
			URIs []string `json:"uris"`
		}
		f.stub.CallsTo(http.MethodPost, "/playlists/pl1/tracks")[0].DecodeBody(t, &add)
		if len(add.URIs) != 20 || add.URIs[0] != "spotify:track:rec-1" {
			t.Errorf("unexpected add body %v", add.URIs)
		}

		snap := f.wf.Snapshot()
		if snap.State != Completed || snap.Pending != nil || snap.Created == nil {
			t.Errorf("expected Completed with created playlist, got %+v", snap)
		}
	})

	t.Run("Custom Name", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})

		created, err := f.wf.ConfirmPlaylist(ctx, "Late Night")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if created.Name != "Late Night" {
			t.Errorf("expected custom name, got %q", created.Name)
		}
	})

	t.Run("Attaches At Most 100 Tracks", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.stub.Handle(http.MethodGet, "/recommendations", tu.JSONHandler(http.StatusOK, map[string]any{"tracks": tu.Tracks("rec", 150)}))
		f.generate(t, RecommendationRequest{DesiredCount: 150})

		created, err := f.wf.ConfirmPlaylist(ctx, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var add struct {
			URIs []string `json:"uris"`
		}
		f.stub.CallsTo(http.MethodPost, "/playlists/pl1/tracks")[0].DecodeBody(t, &add)
		if len(add.URIs) != 100 {
			t.Errorf("expected exactly 100 URIs, got %d", len(add.URIs))
		}
		if created.TrackCount != 100 || created.Dropped != 50 {
			t.Errorf("expected 100 attached and 50 dropped, got %+v", created)
		}
	})

	t.Run("Create Failure Returns To Preview", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})
		f.stub.Fail(http.MethodPost, "/users/u1/playlists", http.StatusForbidden, "Insufficient client scope")

		_, err := f.wf.ConfirmPlaylist(ctx, "")
		var apiErr *services.APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "Insufficient client scope" {
			t.Fatalf("expected APIError, got %v", err)
		}

		snap := f.wf.Snapshot()
		if snap.State != Previewing || snap.Pending == nil || len(snap.Pending.Tracks) != 20 {
			t.Errorf("expected preview to survive, got %+v", snap)
		}
		if len(f.stub.CallsTo(http.MethodPost, "/playlists/pl1/tracks")) != 0 {
			t.Error("expected no attach after failed create")
		}
	})

	t.Run("Attach Retry Reuses Created Playlist", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})
		f.stub.Fail(http.MethodPost, "/playlists/pl1/tracks", http.StatusInternalServerError, "boom")

		if _, err := f.wf.ConfirmPlaylist(ctx, ""); err == nil {
			t.Fatal("expected attach failure")
		}
		assertState(t, f.wf, Previewing)

		f.stub.Handle(http.MethodPost, "/playlists/pl1/tracks", tu.JSONHandler(http.StatusCreated, map[string]any{"snapshot_id": "snap2"}))

		created, err := f.wf.ConfirmPlaylist(ctx, "")
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if created.ID != "pl1" || created.SnapshotID != "snap2" {
			t.Errorf("unexpected created playlist %+v", created)
		}
		if n := len(f.stub.CallsTo(http.MethodPost, "/users/u1/playlists")); n != 1 {
			t.Errorf("expected a single create call, got %d", n)
		}
	})

	t.Run("Unauthorized Logs Out", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})
		f.stub.Fail(http.MethodPost, "/users/u1/playlists", http.StatusUnauthorized, "The access token expired")

		_, err := f.wf.ConfirmPlaylist(ctx, "")
		if !errors.Is(err, shared.ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
		assertCleared(t, f.wf)
	})

	t.Run("Fetches Missing Profile", func(t *testing.T) {
		f := newFixture(t)

		var calls atomic.Int32
		f.stub.Handle(http.MethodGet, "/me", func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				tu.ErrorHandler(http.StatusServiceUnavailable, "unavailable")(w, r)
				return
			}
			tu.WriteJSON(w, http.StatusOK, map[string]any{"id": "u1", "display_name": "Test User"})
		})

		if err := f.wf.CompleteLogin(ctx, loginFragment); !errors.Is(err, shared.ErrProfileUnavailable) {
			t.Fatalf("expected ErrProfileUnavailable, got %v", err)
		}
		f.generate(t, RecommendationRequest{DesiredCount: 20})

		created, err := f.wf.ConfirmPlaylist(ctx, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if created.ID != "pl1" {
			t.Errorf("unexpected created playlist %+v", created)
		}
		if snap := f.wf.Snapshot(); snap.UserID != "u1" {
			t.Errorf("expected profile to be stored, got %q", snap.UserID)
		}
	})

	t.Run("Requires Preview", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		_, err := f.wf.ConfirmPlaylist(ctx, "")
		if !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		if len(f.stub.CallsTo(http.MethodPost, "/users/u1/playlists")) != 0 {
			t.Error("expected no create call")
		}
	})

	t.Run("Progress", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})
		progress := make(chan ProgressUpdate, 10)
		f.wf.SetProgress(progress)

		f.wf.ConfirmPlaylist(ctx, "")
		close(progress)

		var phases []string
		for update := range progress {
			phases = append(phases, update.Phase.String())
		}
		if got := strings.Join(phases, ","); got != "create_playlist,add_tracks" {
			t.Errorf("unexpected phases %s", got)
		}
	})
}

func TestResetAndLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("Reset From Completed", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})
		if _, err := f.wf.ConfirmPlaylist(ctx, ""); err != nil {
			t.Fatalf("confirm failed: %v", err)
		}

		if err := f.wf.ResetForNewPlaylist(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		snap := f.wf.Snapshot()
		if snap.State != Ready || snap.Created != nil || snap.Pending != nil {
			t.Errorf("expected clean Ready, got %+v", snap)
		}
		if !snap.LoggedIn || snap.UserID != "u1" {
			t.Error("expected session to be untouched")
		}
		if f.clock.PendingTimers() != 1 {
			t.Error("expected expiry timer to keep running")
		}
	})

	t.Run("Reset From Preview", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})

		if err := f.wf.ResetForNewPlaylist(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertState(t, f.wf, Ready)
		f.generate(t, RecommendationRequest{DesiredCount: 10})
	})

	t.Run("Reset From Ready", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		if err := f.wf.ResetForNewPlaylist(); !errors.Is(err, shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.generate(t, RecommendationRequest{DesiredCount: 20})
		expired := false
		f.wf.SetExpireHook(func() { expired = true })

		f.wf.Logout()

		assertCleared(t, f.wf)
		if f.clock.PendingTimers() != 0 {
			t.Error("expected expiry timer to be stopped")
		}
		if expired {
			t.Error("logout must not run the expire hook")
		}

		f.clock.Advance(2 * time.Hour)
		assertState(t, f.wf, LoggedOut)
	})
}

func TestRecorder(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.generate(t, RecommendationRequest{DesiredCount: 20})
	f.wf.ConfirmPlaylist(context.Background(), "")

	wantTransitions := []string{
		"logged_out->ready",
		"ready->generating",
		"generating->previewing",
		"previewing->creating",
		"creating->completed",
	}
	if got := strings.Join(f.recorder.transitions, " "); got != strings.Join(wantTransitions, " ") {
		t.Errorf("unexpected transitions %s", got)
	}

	wantOps := "login:ok generate:ok confirm:ok"
	if got := strings.Join(f.recorder.operations, " "); got != wantOps {
		t.Errorf("unexpected operations %s", got)
	}
}

func TestOutcome(t *testing.T) {
	tc := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{shared.ErrSessionExpired, "expired"},
		{shared.ErrNotAuthenticated, "unauthenticated"},
		{shared.ErrNoResults, "no_results"},
		{shared.ErrBusy, "busy"},
		{shared.ErrInvalidState, "rejected"},
		{shared.ErrEmptyPlaylist, "rejected"},
		{shared.ErrAuthFailed, "auth_failed"},
		{shared.ErrProfileUnavailable, "profile_unavailable"},
		{shared.ErrServiceUnavailable, "unavailable"},
		{&services.APIError{Status: 500}, "error"},
	}

	for _, tt := range tc {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
