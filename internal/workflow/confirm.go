package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/shared"
)

// ConfirmPlaylist creates a playlist from the pending tracks and attaches at most [MaxTracks] of them.
//
// A blank name falls back to the pending playlist's name. On failure the workflow returns to [Previewing] so the
// user can retry; when the playlist was created but attaching tracks failed, the retry reuses the created playlist.
func (w *Workflow) ConfirmPlaylist(ctx context.Context, name string) (*CreatedPlaylist, error) {
	start := w.clock.Now()

	epoch, session, pending, remote, err := w.beginConfirm()
	if err != nil {
		w.recordOperation("confirm", err, start)
		return nil, err
	}

	created, err := w.confirm(ctx, epoch, session, pending, remote, name)
	switch {
	case err != nil && errors.Is(err, shared.ErrSessionExpired):
		w.expire(epoch, "confirm")
	case err != nil:
		if !w.finish(epoch, Previewing, func() { w.lastErr = err }) {
			err = expiredError(err)
		}
	default:
		ok := w.finish(epoch, Completed, func() {
			w.pending = nil
			w.remote = nil
			w.created = created
			w.lastErr = nil
		})
		if !ok {
			created, err = nil, expiredError(nil)
		}
	}

	w.recordOperation("confirm", err, start)
	if err != nil {
		return nil, err
	}
	return created.clone(), nil
}

// beginConfirm claims the single-flight slot and copies what the confirm step needs.
func (w *Workflow) beginConfirm() (uint64, *Session, *PendingPlaylist, *services.SpotifyPlaylist, error) {
	w.mu.Lock()
	empty := w.state == Previewing && (w.pending == nil || len(w.pending.Tracks) == 0)
	w.mu.Unlock()
	if empty {
		return 0, nil, nil, nil, shared.ErrEmptyPlaylist
	}

	epoch, session, err := w.begin(Creating, Previewing)
	if err != nil {
		return 0, nil, nil, nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var remote *services.SpotifyPlaylist
	if w.remote != nil {
		r := *w.remote
		remote = &r
	}
	return epoch, session, w.pending.clone(), remote, nil
}

func (w *Workflow) confirm(
	ctx context.Context,
	epoch uint64,
	session *Session,
	pending *PendingPlaylist,
	remote *services.SpotifyPlaylist,
	name string,
) (*CreatedPlaylist, error) {
	logger := shared.WithLogger(w.logger, "run", pending.RunID)

	name = strings.TrimSpace(name)
	if name == "" {
		name = pending.Name
	}

	total, step := 2, 1
	if session.UserID == "" {
		total++
	}
	if remote != nil {
		total--
	}

	if session.UserID == "" {
		userID, err := w.fetchProfile(ctx, epoch, session.Token, step, total)
		if err != nil {
			return nil, err
		}
		session.UserID = userID
		step++
	}

	if remote == nil {
		if err := w.check(epoch); err != nil {
			return nil, err
		}
		w.sendProgress(createPlaylistUpdate(pending.RunID, step, total, name))

		playlist, err := w.catalog.CreatePlaylist(ctx, session.Token, session.UserID, services.CreatePlaylistRequest{
			Name:        name,
			Description: w.cfg.Description,
			Public:      w.cfg.Public,
		})
		if err != nil {
			logger.Error("create playlist failed", "error", err)
			return nil, err
		}
		step++

		remote = playlist
		if !w.rememberRemote(epoch, playlist) {
			return nil, expiredError(nil)
		}
		logger.Info("playlist created", "id", playlist.ID, "name", playlist.Name)
	} else {
		logger.Info("reusing created playlist", "id", remote.ID)
	}

	uris, dropped := pending.uris()
	if dropped > 0 {
		logger.Warn("playlist truncated", "attached", len(uris), "dropped", dropped)
	}

	if err := w.check(epoch); err != nil {
		return nil, err
	}
	w.sendProgress(addTracksUpdate(pending.RunID, step, total, len(uris)))

	snapshot, err := w.catalog.AddTracks(ctx, session.Token, remote.ID, uris)
	if err != nil {
		logger.Error("add tracks failed", "playlist", remote.ID, "error", err)
		return nil, err
	}

	created := &CreatedPlaylist{
		RunID:       pending.RunID,
		ID:          remote.ID,
		Name:        remote.Name,
		ExternalURL: remote.URL(),
		SnapshotID:  snapshot,
		TrackCount:  len(uris),
		Dropped:     dropped,
		Public:      remote.Public,
	}
	if created.Name == "" {
		created.Name = name
	}

	logger.Info("playlist populated", "id", created.ID, "tracks", created.TrackCount)
	return created, nil
}

// rememberRemote keeps a created playlist so a failed attach can be retried without creating a duplicate.
func (w *Workflow) rememberRemote(epoch uint64, playlist *services.SpotifyPlaylist) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch {
		return false
	}
	p := *playlist
	w.remote = &p
	return true
}
