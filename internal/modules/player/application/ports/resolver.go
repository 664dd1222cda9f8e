package ports

import "context"

// StreamResolver turns a track identifier into a time-limited direct-fetch
// audio URL.
type StreamResolver interface {
	Resolve(ctx context.Context, trackID string) (string, error)
}
