package workflow

import "fmt"

// ProgressUpdate represents a progress event during a network-bound workflow operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	RunID   string // Generation run the update belongs to
	Phase   Phase  // Operation phase
	Step    int    // Current step number within the operation
	Total   int    // Total steps in this operation
	Message string // Human-readable message for display
}

// Operation phase enumeration
type Phase int

const (
	FetchProfile Phase = iota
	FetchTopTracks
	SearchArtists
	FetchRecommendations
	CreatePlaylist
	AddTracks
)

func (p Phase) String() string {
	switch p {
	case FetchProfile:
		return "fetch_profile"
	case FetchTopTracks:
		return "fetch_top_tracks"
	case SearchArtists:
		return "search_artists"
	case FetchRecommendations:
		return "fetch_recommendations"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (w *Workflow) sendProgress(update ProgressUpdate) {
	w.mu.Lock()
	progress := w.progress
	w.mu.Unlock()

	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchProfileUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchProfile,
		Step:    step,
		Total:   total,
		Message: "Fetching your profile...",
	}
}

func fetchTopTracksUpdate(runID string, step, total int) ProgressUpdate {
	return ProgressUpdate{
		RunID:   runID,
		Phase:   FetchTopTracks,
		Step:    step,
		Total:   total,
		Message: "Reading your recent top tracks...",
	}
}

func searchArtistsUpdate(runID string, step, total int, genre string) ProgressUpdate {
	return ProgressUpdate{
		RunID:   runID,
		Phase:   SearchArtists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Searching %s artists...", genre),
	}
}

func fetchRecommendationsUpdate(runID string, step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		RunID:   runID,
		Phase:   FetchRecommendations,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Requesting %d recommendations...", count),
	}
}

func createPlaylistUpdate(runID string, step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		RunID:   runID,
		Phase:   CreatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Creating playlist %q...", name),
	}
}

func addTracksUpdate(runID string, step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		RunID:   runID,
		Phase:   AddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Adding %d tracks...", count),
	}
}
