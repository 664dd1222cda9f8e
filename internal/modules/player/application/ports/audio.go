package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// EndReason describes why a playback run ended.
type EndReason int

const (
	EndFinished EndReason = iota
	EndStopped
	EndLoadFailed
	EndReplaced
	EndCleanup
)

// String returns a log-friendly name for the end reason.
func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndStopped:
		return "stopped"
	case EndLoadFailed:
		return "load_failed"
	case EndReplaced:
		return "replaced"
	case EndCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// AudioSink plays resolved stream URLs into a guild's voice connection.
type AudioSink interface {
	// Play starts playback of the given stream URL. The returned channel
	// delivers exactly one end signal for this run; the caller selects on it
	// against its watchdog timer.
	Play(ctx context.Context, guildID snowflake.ID, streamURL string) (<-chan EndReason, error)

	// Stop force-stops the current playback. The end signal for the running
	// track is still delivered on its completion channel.
	Stop(ctx context.Context, guildID snowflake.ID) error
}

// VoiceConnector attaches and detaches guild voice connections.
type VoiceConnector interface {
	// Join connects to a voice channel and blocks until the connection is
	// usable or ctx expires.
	Join(ctx context.Context, guildID, channelID snowflake.ID) error

	// Leave disconnects from the guild's voice channel.
	Leave(ctx context.Context, guildID snowflake.ID) error
}
