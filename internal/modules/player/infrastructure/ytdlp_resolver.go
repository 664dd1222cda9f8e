package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
)

// ErrNoStream is returned when yt-dlp produced no usable stream URL for a
// track.
var ErrNoStream = errors.New("no stream URL for track")

// YtdlpResolver resolves track IDs into direct-fetch audio URLs by invoking
// yt-dlp. The returned URLs are time-limited, so they are resolved shortly
// before playback rather than at enqueue time.
type YtdlpResolver struct{}

// NewYtdlpResolver creates a new YtdlpResolver.
func NewYtdlpResolver() *YtdlpResolver {
	return &YtdlpResolver{}
}

// Resolve extracts the best audio stream URL for a YouTube video ID.
func (r *YtdlpResolver) Resolve(ctx context.Context, trackID string) (string, error) {
	watchURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", trackID)

	result, err := ytdlp.New().
		Print("%(url)s").
		Format("bestaudio[ext=webm]/bestaudio").
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", watchURL)
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed for %s: %w", trackID, err)
	}

	streamURL := firstLine(result.Stdout)
	if streamURL == "" || !strings.HasPrefix(streamURL, "http") {
		return "", fmt.Errorf("%w: %s", ErrNoStream, trackID)
	}
	return streamURL, nil
}

// firstLine returns the first non-empty line of yt-dlp output.
func firstLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Ensure YtdlpResolver implements ports.StreamResolver.
var _ ports.StreamResolver = (*YtdlpResolver)(nil)
