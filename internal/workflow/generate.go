package workflow

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/shared"
	"golang.org/x/oauth2"
)

// GenerateRecommendations builds a [PendingPlaylist] seeded by the user's recent top tracks and, optionally, a genre.
//
// The request count is clamped to [MinTracks, MaxTracks]. A failed or empty top tracks fetch falls back to the
// configured seed tracks and a failed genre search is ignored. An empty recommendation result returns
// [shared.ErrNoResults] and leaves the workflow in [Ready].
func (w *Workflow) GenerateRecommendations(ctx context.Context, req RecommendationRequest) (*PendingPlaylist, error) {
	start := w.clock.Now()

	epoch, session, err := w.begin(Generating, Ready)
	if err != nil {
		w.recordOperation("generate", err, start)
		return nil, err
	}

	pending, err := w.generate(ctx, epoch, session.Token, req)
	switch {
	case err != nil && errors.Is(err, shared.ErrSessionExpired):
		w.expire(epoch, "generate")
	case err != nil:
		if !w.finish(epoch, Ready, func() { w.lastErr = err }) {
			err = expiredError(err)
		}
	default:
		ok := w.finish(epoch, Previewing, func() {
			w.pending = pending
			w.created = nil
			w.remote = nil
			w.lastErr = nil
		})
		if !ok {
			pending, err = nil, expiredError(nil)
		}
	}

	w.recordOperation("generate", err, start)
	if err != nil {
		return nil, err
	}
	return pending.clone(), nil
}

func (w *Workflow) generate(ctx context.Context, epoch uint64, token *oauth2.Token, req RecommendationRequest) (*PendingPlaylist, error) {
	runID := shared.GenerateID()
	count := ClampCount(req.DesiredCount)
	genre := normalizeGenre(req.Genre)
	logger := shared.WithLogger(w.logger, "run", runID)

	total := 2
	if genre != "" {
		total = 3
	}
	step := 1

	logger.Info("generating recommendations", "count", count, "genre", genre)

	if err := w.check(epoch); err != nil {
		return nil, err
	}
	w.sendProgress(fetchTopTracksUpdate(runID, step, total))
	seeds, err := w.trackSeeds(ctx, token, logger)
	if err != nil {
		return nil, err
	}
	step++

	if genre != "" {
		if err := w.check(epoch); err != nil {
			return nil, err
		}
		w.sendProgress(searchArtistsUpdate(runID, step, total, genre))
		artists, err := w.catalog.ArtistsByGenre(ctx, token, genre, artistLimit)
		switch {
		case err != nil && errors.Is(err, shared.ErrSessionExpired):
			return nil, err
		case err != nil:
			logger.Warn("genre search failed, continuing without artist seeds", "genre", genre, "error", err)
		default:
			seeds.Artists = artistIDs(artists, maxArtistSeed)
			if len(seeds.Artists) == 0 {
				logger.Warn("no artists found for genre", "genre", genre)
			}
		}
		step++
	}

	if err := w.check(epoch); err != nil {
		return nil, err
	}
	w.sendProgress(fetchRecommendationsUpdate(runID, step, total, count))
	tracks, err := w.catalog.Recommendations(ctx, token, services.RecommendationOpts{
		Limit:       count,
		SeedTracks:  seeds.Tracks,
		SeedArtists: seeds.Artists,
	})
	if err != nil {
		logger.Error("recommendations failed", "error", err)
		return nil, err
	}
	if len(tracks) == 0 {
		logger.Warn("recommendations came back empty", "seeds", seeds.Tracks, "artists", seeds.Artists)
		return nil, shared.ErrNoResults
	}

	pending := &PendingPlaylist{
		RunID:       runID,
		Name:        w.cfg.DefaultName,
		Request:     RecommendationRequest{DesiredCount: count, Genre: req.Genre},
		Seeds:       seeds,
		Tracks:      make([]Track, 0, len(tracks)),
		GeneratedAt: w.clock.Now(),
	}
	for _, t := range tracks {
		pending.Tracks = append(pending.Tracks, trackFromCatalog(t))
	}

	logger.Info("recommendations ready", "tracks", len(pending.Tracks), "fallback", seeds.Fallback)
	return pending, nil
}

// trackSeeds picks up to three of the user's recent top tracks, or the fallback seeds when there are none.
func (w *Workflow) trackSeeds(ctx context.Context, token *oauth2.Token, logger *log.Logger) (Seeds, error) {
	top, err := w.catalog.TopTracks(ctx, token, topTrackLimit, topTrackRange)
	if err != nil {
		if errors.Is(err, shared.ErrSessionExpired) {
			return Seeds{}, err
		}
		logger.Warn("top tracks unavailable, using fallback seeds", "error", err)
	}

	if ids := trackIDs(top, maxTrackSeeds); len(ids) > 0 {
		return Seeds{Tracks: ids}, nil
	}
	if err == nil {
		logger.Warn("no recent top tracks, using fallback seeds")
	}
	return Seeds{Tracks: append([]string(nil), w.cfg.FallbackSeeds...), Fallback: true}, nil
}
