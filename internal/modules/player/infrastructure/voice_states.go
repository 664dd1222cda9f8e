package infrastructure

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
)

// DiscordVoiceStates reads listener presence from the discordgo state cache.
type DiscordVoiceStates struct {
	session *discordgo.Session
	botID   string
}

// NewDiscordVoiceStates creates a new DiscordVoiceStates. The session must
// already be open so the bot user is known.
func NewDiscordVoiceStates(session *discordgo.Session) *DiscordVoiceStates {
	return &DiscordVoiceStates{
		session: session,
		botID:   session.State.User.ID,
	}
}

// Listeners returns the non-bot members sharing the bot's voice channel.
// It returns an empty slice when the bot holds no voice connection in the
// guild.
func (v *DiscordVoiceStates) Listeners(guildID snowflake.ID) ([]snowflake.ID, error) {
	guild, err := v.session.State.Guild(guildID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read guild state: %w", err)
	}

	var botChannel string
	for _, vs := range guild.VoiceStates {
		if vs.UserID == v.botID {
			botChannel = vs.ChannelID
			break
		}
	}
	if botChannel == "" {
		return nil, nil
	}

	var listeners []snowflake.ID
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != botChannel || vs.UserID == v.botID {
			continue
		}
		if v.isBot(guildID.String(), vs) {
			continue
		}
		id, err := snowflake.Parse(vs.UserID)
		if err != nil {
			continue
		}
		listeners = append(listeners, id)
	}
	return listeners, nil
}

// isBot reports whether the voice state belongs to a bot account. Member
// data may be missing from the voice state itself, so fall back to the
// member cache.
func (v *DiscordVoiceStates) isBot(guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	member, err := v.session.State.Member(guildID, vs.UserID)
	if err != nil || member.User == nil {
		return false
	}
	return member.User.Bot
}

// Ensure DiscordVoiceStates implements ports.VoiceStates.
var _ ports.VoiceStates = (*DiscordVoiceStates)(nil)
