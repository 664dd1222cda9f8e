package player

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/bot"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/usecases"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/infrastructure"
)

func init() {
	bot.Register(&PlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*PlayerModule)(nil)

// PlayerModule provides continuous per-guild audio playback with autoplay
// discovery and multi-source metadata resolution.
type PlayerModule struct {
	config *Config

	store    *infrastructure.SQLiteStore
	sink     *infrastructure.LavalinkSink
	playback *usecases.PlaybackService
	reaper   *usecases.IdleReaperService

	// Context for the idle reaper
	ctx    context.Context
	cancel context.CancelFunc
}

// Name returns the module name.
func (m *PlayerModule) Name() string {
	return "player"
}

// EventHandlers returns the event handlers for this module.
func (m *PlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *PlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Playback exposes the playback operations for embedding callers.
func (m *PlayerModule) Playback() *usecases.PlaybackService {
	return m.playback
}

// Init initializes the module. The session must already be open: the
// Lavalink handshake and listener enumeration both need the bot identity.
func (m *PlayerModule) Init(deps bot.ModuleDependencies) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	store, err := infrastructure.NewSQLiteStore(m.config.DatabasePath)
	if err != nil {
		return err
	}
	m.store = store

	sink, err := infrastructure.NewLavalinkSink(deps.Session, infrastructure.LavalinkConfig{
		Address:  m.config.LavalinkAddress,
		Password: m.config.LavalinkPassword,
	})
	if err != nil {
		return err
	}
	m.sink = sink

	repo := infrastructure.NewMemoryRepository()
	voiceStates := infrastructure.NewDiscordVoiceStates(deps.Session)
	resolver := infrastructure.NewYtdlpResolver()
	discovery := infrastructure.NewChartsDiscovery()

	providers := []ports.MetadataProvider{infrastructure.NewMusicBrainzProvider()}
	if m.config.DiscogsToken != "" {
		providers = append(providers, infrastructure.NewDiscogsProvider(m.config.DiscogsToken))
	}
	if m.config.CuratorAPIKey != "" {
		providers = append(providers, infrastructure.NewCuratorProvider(
			m.config.CuratorAPIKey,
			m.config.CuratorBaseURL,
			m.config.CuratorModel,
		))
	}

	consensus := usecases.NewConsensusService(providers, store, m.config.MetadataTimeout)
	prefetch := usecases.NewPrefetchService(discovery, resolver, consensus, voiceStates, store)
	m.playback = usecases.NewPlaybackService(
		repo,
		sink,
		sink,
		resolver,
		prefetch,
		consensus,
		store,
		store,
		store,
		usecases.PlaybackConfig{
			TestMode:     m.config.TestMode,
			TestDuration: m.config.TestDuration,
		},
	)

	m.reaper = usecases.NewIdleReaperService(repo, store, sink, store, 0, 0)
	go m.reaper.Run(m.ctx)

	slog.Info("player module initialized", "metadata_providers", len(providers))

	return nil
}

// Shutdown cleans up module resources.
func (m *PlayerModule) Shutdown() error {
	// Stop the reaper first so it cannot race the teardown below
	if m.cancel != nil {
		m.cancel()
	}

	if m.playback != nil {
		m.playback.Close()
	}

	if m.sink != nil {
		m.sink.Close()
	}

	if m.store != nil {
		return m.store.Close()
	}

	return nil
}

// Event handlers.

func (m *PlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.sink != nil {
		m.sink.OnVoiceServerUpdate(event)
	}
}

func (m *PlayerModule) handleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.sink == nil {
		return
	}
	m.sink.OnVoiceStateUpdate(event)

	// Discord removing the bot from voice, by kick or channel delete, must
	// tear down the guild's session too.
	if m.playback != nil && event.UserID == s.State.User.ID && event.ChannelID == "" {
		guildID, err := snowflake.Parse(event.GuildID)
		if err != nil {
			return
		}
		m.playback.HandleVoiceDisconnect(context.Background(), usecases.VoiceDisconnectInput{
			GuildID: guildID,
		})
	}
}
