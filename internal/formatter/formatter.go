// package formatter renders generated and created playlists as plain text, Markdown, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/mixgen/internal/shared"
	"github.com/desertthunder/mixgen/internal/workflow"
)

// Format is an output format for playlist previews.
type Format string

const (
	Text     Format = "text"
	Markdown Format = "markdown"
	CSV      Format = "csv"
	JSON     Format = "json"
)

// Formats lists the accepted values of [ParseFormat].
var Formats = []Format{Text, Markdown, CSV, JSON}

// ParseFormat validates a user supplied format name. "md" and "txt" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want text, markdown, csv or json)", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension conventionally used for the format.
func (f Format) Extension() string {
	switch f {
	case Markdown:
		return ".md"
	case CSV:
		return ".csv"
	case JSON:
		return ".json"
	default:
		return ".txt"
	}
}

// RenderPending renders a preview in the requested format.
func RenderPending(p *workflow.PendingPlaylist, format Format) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no pending playlist", shared.ErrInvalidInput)
	}

	switch format {
	case Text:
		return PendingToText(p), nil
	case Markdown:
		return PendingToMarkdown(p), nil
	case CSV:
		return PendingToCSV(p)
	case JSON:
		return shared.MarshalJSON(p, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// PendingToCSV converts a preview to CSV with columns: Position, ID, Title, Artists, Album, Duration, URI
func PendingToCSV(p *workflow.PendingPlaylist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "ID", "Title", "Artists", "Album", "Duration", "URI"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range p.Tracks {
		record := []string{
			fmt.Sprint(i + 1),
			track.ID,
			track.Name,
			track.ArtistNames(),
			track.Album,
			shared.FormatDuration(track.DurationMS),
			track.URI,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// PendingToMarkdown converts a preview to Markdown, using the first track's artwork as the cover.
func PendingToMarkdown(p *workflow.PendingPlaylist) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", p.Name)

	if cover := CoverURL(p); cover != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", cover)
	}

	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(p.Tracks))
	if genre := strings.TrimSpace(p.Request.Genre); genre != "" {
		fmt.Fprintf(&buf, "**Genre**: %s\n", genre)
	}
	fmt.Fprintf(&buf, "**Seeds**: %s\n\n", seedSummary(p.Seeds))

	buf.WriteString("## Tracks\n\n")
	for i, track := range p.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.ArtistNames(), track.Name, albumPart, shared.FormatDuration(track.DurationMS))
	}

	return buf.Bytes()
}

// PendingToText converts a preview to plain text.
func PendingToText(p *workflow.PendingPlaylist) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", p.Name)
	fmt.Fprintf(&buf, "Tracks: %d\n", len(p.Tracks))
	fmt.Fprintf(&buf, "Seeds: %s\n\n", seedSummary(p.Seeds))

	for i, track := range p.Tracks {
		fmt.Fprintf(&buf, "%3d. %s - %s\n", i+1, track.ArtistNames(), track.Name)
	}

	return buf.Bytes()
}

// CreatedToText summarizes a created playlist.
func CreatedToText(c *workflow.CreatedPlaylist) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "✓ Created playlist: %s\n", c.Name)
	fmt.Fprintf(&buf, "  ID: %s\n", c.ID)
	fmt.Fprintf(&buf, "  Tracks: %d\n", c.TrackCount)
	if c.Dropped > 0 {
		fmt.Fprintf(&buf, "  Skipped: %d (a playlist holds at most %d generated tracks)\n", c.Dropped, workflow.MaxTracks)
	}
	fmt.Fprintf(&buf, "  Visibility: %s\n", shared.VisibilityString(c.Public))
	if c.ExternalURL != "" {
		fmt.Fprintf(&buf, "  Open: %s\n", c.ExternalURL)
	}

	return buf.Bytes()
}

// CoverURL returns the largest album image of the first track that has one.
func CoverURL(p *workflow.PendingPlaylist) string {
	for _, track := range p.Tracks {
		best := ""
		height := -1
		for _, img := range track.AlbumImages {
			if img.Height > height {
				best, height = img.URL, img.Height
			}
		}
		if best != "" {
			return best
		}
	}
	return ""
}

// WriteFile writes rendered output to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func seedSummary(s workflow.Seeds) string {
	summary := fmt.Sprintf("%d tracks", len(s.Tracks))
	if s.Fallback {
		summary += " (fallback)"
	}
	if len(s.Artists) > 0 {
		summary += fmt.Sprintf(", %d artists", len(s.Artists))
	}
	return summary
}
