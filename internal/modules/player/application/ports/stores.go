package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

// SessionStore persists playback history. Every call is best-effort from the
// caller's perspective: a store failure must never abort playback.
type SessionStore interface {
	// CreateSession opens a listening session and returns its handle.
	CreateSession(ctx context.Context, guildID, channelID snowflake.ID) (string, error)

	// LogTrackStart records that an item started playing in a session and
	// returns the history row ID.
	LogTrackStart(ctx context.Context, sessionID string, item *domain.QueueItem) (int64, error)

	// MarkCompleted records whether the item played to completion or was
	// skipped.
	MarkCompleted(ctx context.Context, historyID int64, completed bool) error

	// EndSession closes a listening session.
	EndSession(ctx context.Context, sessionID string) error
}

// TrackStore persists durable per-track metadata.
type TrackStore interface {
	// GetOrCreate returns the durable record ID for the item's track,
	// creating the record if needed.
	GetOrCreate(ctx context.Context, item *domain.QueueItem) (int64, error)

	// SetGenres clears any previously stored genre tags for the track and
	// stores the given one.
	SetGenres(ctx context.Context, trackDBID int64, genre string) error

	// UpdateYear updates the stored release year for the track.
	UpdateYear(ctx context.Context, trackDBID int64, year int) error
}

// ConfigStore persists per-guild playback settings.
type ConfigStore interface {
	// Settings returns the guild's settings, or the defaults when no row
	// exists.
	Settings(ctx context.Context, guildID snowflake.ID) (domain.Settings, error)

	// SaveSettings stores the guild's settings.
	SaveSettings(ctx context.Context, guildID snowflake.ID, settings domain.Settings) error
}
