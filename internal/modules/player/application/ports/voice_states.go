package ports

import "github.com/disgoorg/snowflake/v2"

// VoiceStates exposes who is listening in the guild's voice channel.
type VoiceStates interface {
	// Listeners returns the non-bot members sharing the bot's voice channel.
	Listeners(guildID snowflake.ID) ([]snowflake.ID, error)
}
