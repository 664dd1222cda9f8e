package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

const (
	// defaultReapInterval is how often the reaper sweeps the players.
	defaultReapInterval = 60 * time.Second

	// defaultIdleThreshold is how long a connected, non-playing player may
	// sit without activity before its connection is released.
	defaultIdleThreshold = 300 * time.Second
)

// IdleReaperService releases voice connections that have gone quiet. Guilds
// flagged always-on are exempt; with autoplay enabled they are kept fresh
// instead, since a player that should be discovering tracks is never idle.
type IdleReaperService struct {
	players  domain.PlayerRepository
	sessions ports.SessionStore
	voice    ports.VoiceConnector
	configs  ports.ConfigStore

	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

// NewIdleReaperService creates an IdleReaperService. Zero interval or
// threshold selects the defaults.
func NewIdleReaperService(
	players domain.PlayerRepository,
	sessions ports.SessionStore,
	voice ports.VoiceConnector,
	configs ports.ConfigStore,
	interval time.Duration,
	threshold time.Duration,
) *IdleReaperService {
	if interval <= 0 {
		interval = defaultReapInterval
	}
	if threshold <= 0 {
		threshold = defaultIdleThreshold
	}
	return &IdleReaperService{
		players:   players,
		sessions:  sessions,
		voice:     voice,
		configs:   configs,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *IdleReaperService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over all known players and disconnects the idle ones.
func (s *IdleReaperService) Sweep(ctx context.Context) {
	for _, player := range s.players.All() {
		if !player.Connected() || player.IsPlaying() {
			continue
		}
		if s.now().Sub(player.LastActivity()) < s.threshold {
			continue
		}

		settings := guildSettings(ctx, s.configs, player.GuildID)
		if settings.AlwaysOn {
			if player.Autoplay() {
				player.Touch()
			}
			continue
		}

		s.disconnect(ctx, player)
	}
}

func (s *IdleReaperService) disconnect(ctx context.Context, player *domain.Player) {
	slog.Info("disconnecting idle player",
		"guild_id", player.GuildID,
		"last_activity", player.LastActivity(),
	)

	player.CancelLoop()

	if sessionID := player.SessionID(); sessionID != "" {
		if err := s.sessions.EndSession(ctx, sessionID); err != nil {
			slog.Warn("failed to end playback session",
				"guild_id", player.GuildID,
				"session_id", sessionID,
				"error", err,
			)
		}
		player.ClearSession()
	}

	if err := s.voice.Leave(ctx, player.GuildID); err != nil {
		slog.Warn("failed to leave voice channel", "guild_id", player.GuildID, "error", err)
	}
	player.SetConnected(false)
	player.SetChannelID(0)
}
