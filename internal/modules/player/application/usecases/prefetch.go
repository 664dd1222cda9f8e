package usecases

import (
	"context"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

// discoveryAttempts caps how many candidates one fill pass may request.
const discoveryAttempts = 3

// PrefetchService keeps a guild's queue non-starved and its head item ready
// to play, so that the gap between two tracks stays inaudible.
//
// Prepare may be invoked concurrently for the same guild, both eagerly when
// the queue runs empty and right after a track starts. Racing invocations
// are harmless: stream resolution and metadata resolution are idempotent
// once the item carries a URL or has been attempted.
type PrefetchService struct {
	discovery ports.Discovery
	resolver  ports.StreamResolver
	consensus *ConsensusService
	voices    ports.VoiceStates
	configs   ports.ConfigStore

	// wake restarts an idle playback loop after a fill lands an item while
	// the loop was already shutting down. Set once during wiring.
	wake func(*domain.Player)
}

// SetWake installs the loop restart hook. Must be called before Prepare runs.
func (s *PrefetchService) SetWake(wake func(*domain.Player)) {
	s.wake = wake
}

// NewPrefetchService creates a PrefetchService.
func NewPrefetchService(
	discovery ports.Discovery,
	resolver ports.StreamResolver,
	consensus *ConsensusService,
	voices ports.VoiceStates,
	configs ports.ConfigStore,
) *PrefetchService {
	return &PrefetchService{
		discovery: discovery,
		resolver:  resolver,
		consensus: consensus,
		voices:    voices,
		configs:   configs,
	}
}

// Prepare tops up an empty queue from discovery when autoplay is enabled,
// then makes sure the head of the queue has a resolved stream URL and, once
// it does, kicks off metadata resolution for it.
func (s *PrefetchService) Prepare(ctx context.Context, player *domain.Player) {
	settings := guildSettings(ctx, s.configs, player.GuildID)

	if player.Queue.Len() == 0 && player.Autoplay() {
		s.fill(ctx, player, settings)
	}

	s.primeHead(ctx, player)
}

// fill asks discovery for candidates until one passes the guild's maximum
// duration filter and enqueues it at the autoplay tier.
func (s *PrefetchService) fill(ctx context.Context, player *domain.Player, settings domain.Settings) {
	listeners := s.listeners(player.GuildID)

	for attempt := 0; attempt < discoveryAttempts; attempt++ {
		candidate, err := s.discovery.NextTrack(ctx, player.GuildID, listeners, settings.DiscoveryWeights, settings.ReplayCooldown)
		if err != nil {
			slog.Warn("discovery failed", "guild_id", player.GuildID, "error", err)
			return
		}
		if candidate == nil {
			slog.Debug("discovery returned no candidate", "guild_id", player.GuildID)
			return
		}

		if settings.MaxTrackDuration > 0 && candidate.Duration > settings.MaxTrackDuration {
			slog.Debug("discovery candidate over duration limit",
				"guild_id", player.GuildID,
				"track", candidate.TrackID,
				"duration", candidate.Duration,
				"limit", settings.MaxTrackDuration,
			)
			continue
		}

		item := domain.NewQueueItem(candidate.TrackID, candidate.Title, candidate.Artist)
		item.Source = domain.ParseSource(candidate.Strategy)
		item.Reason = candidate.Reason
		item.ForUserID = candidate.ForUserID
		item.Duration = candidate.Duration
		if candidate.Genre != "" {
			item.SetGenre(candidate.Genre)
		}
		if candidate.Year != 0 {
			item.SetYear(candidate.Year)
		}

		player.Queue.Enqueue(item, domain.TierAutoplay)
		slog.Info("autoplay track enqueued",
			"guild_id", player.GuildID,
			"track", item.TrackID,
			"title", item.Title,
			"source", item.Source,
		)
		if s.wake != nil {
			s.wake(player)
		}
		return
	}
}

// primeHead resolves the stream URL for the next-to-play item. Metadata
// resolution follows in the background once the URL is in hand, so genre and
// year are usually known before the item becomes current. A resolve failure
// only logs; the playback loop makes the final call on discarding the item.
func (s *PrefetchService) primeHead(ctx context.Context, player *domain.Player) {
	head, ok := player.Queue.Peek()
	if !ok {
		return
	}
	if head.StreamURL() != "" {
		return
	}

	url, err := s.resolver.Resolve(ctx, head.TrackID)
	if err != nil {
		slog.Warn("prefetch stream resolution failed",
			"guild_id", player.GuildID,
			"track", head.TrackID,
			"error", err,
		)
		return
	}
	head.SetStreamURL(url)
	slog.Debug("prefetched stream url", "guild_id", player.GuildID, "track", head.TrackID)

	go s.consensus.Resolve(ctx, head)
}

func (s *PrefetchService) listeners(guildID snowflake.ID) []snowflake.ID {
	listeners, err := s.voices.Listeners(guildID)
	if err != nil {
		slog.Debug("failed to list voice channel members", "guild_id", guildID, "error", err)
		return nil
	}
	return listeners
}

// guildSettings loads a guild's persisted settings, falling back to defaults
// when the store cannot serve them.
func guildSettings(ctx context.Context, configs ports.ConfigStore, guildID snowflake.ID) domain.Settings {
	settings, err := configs.Settings(ctx, guildID)
	if err != nil {
		slog.Warn("failed to load guild settings", "guild_id", guildID, "error", err)
		return domain.DefaultSettings()
	}
	return settings
}
