package domain

import "time"

// Settings are the durable per-guild playback knobs.
type Settings struct {
	// MaxTrackDuration caps the length of discovery candidates. 0 = no cap.
	MaxTrackDuration time.Duration

	// AlwaysOn exempts the guild from idle disconnection.
	AlwaysOn bool

	// Autoplay is the default discovery-refill setting for new players.
	Autoplay bool

	// PreBuffer enables deep pre-buffering beyond the immediate next track.
	PreBuffer bool

	// DiscoveryWeights is an opaque strategy-weight string passed through to
	// the discovery collaborator, which owns its meaning.
	DiscoveryWeights string

	// ReplayCooldown is how long a track stays ineligible for rediscovery
	// after playing.
	ReplayCooldown time.Duration
}

// DefaultSettings returns the settings applied to guilds without a stored row.
func DefaultSettings() Settings {
	return Settings{
		Autoplay:       true,
		PreBuffer:      true,
		ReplayCooldown: 2 * time.Hour,
	}
}
