package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

const (
	// defaultWatchdogGrace is added on top of a track's known duration
	// before the watchdog declares the sink stuck.
	defaultWatchdogGrace = 20 * time.Second

	// defaultFallbackDuration stands in for tracks with unknown duration.
	defaultFallbackDuration = 600 * time.Second

	// defaultStopGrace is how long a force-stopped track may still deliver
	// its completion signal before one is synthesized.
	defaultStopGrace = 2 * time.Second

	// defaultTestDuration is the watchdog deadline in test mode.
	defaultTestDuration = 5 * time.Second
)

// PlaybackConfig carries the timing knobs of the playback loop. The zero
// value selects production defaults.
type PlaybackConfig struct {
	// TestMode replaces the per-track watchdog deadline with TestDuration,
	// so automated runs finish in seconds instead of song lengths.
	TestMode     bool
	TestDuration time.Duration

	WatchdogGrace    time.Duration
	FallbackDuration time.Duration
	StopGrace        time.Duration
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.WatchdogGrace <= 0 {
		c.WatchdogGrace = defaultWatchdogGrace
	}
	if c.FallbackDuration <= 0 {
		c.FallbackDuration = defaultFallbackDuration
	}
	if c.StopGrace <= 0 {
		c.StopGrace = defaultStopGrace
	}
	if c.TestDuration <= 0 {
		c.TestDuration = defaultTestDuration
	}
	return c
}

// JoinInput contains the input for the Join use case.
type JoinInput struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

// LeaveInput contains the input for the Leave use case.
type LeaveInput struct {
	GuildID snowflake.ID
}

// EnqueueInput contains the input for the Enqueue use case.
type EnqueueInput struct {
	GuildID snowflake.ID
	Item    *domain.QueueItem
	Tier    domain.Tier
}

// EnqueueOutput contains the result of the Enqueue use case.
type EnqueueOutput struct {
	QueueLength int
}

// StopInput contains the input for the Stop use case.
type StopInput struct {
	GuildID snowflake.ID
}

// SkipInput contains the input for the SkipCurrent use case.
type SkipInput struct {
	GuildID snowflake.ID
}

// SkipOutput contains the result of the SkipCurrent use case.
type SkipOutput struct {
	SkippedTrack *domain.QueueItem
}

// VoteSkipInput contains the input for the VoteSkip use case.
type VoteSkipInput struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

// VoteSkipOutput contains the result of the VoteSkip use case.
type VoteSkipOutput struct {
	Votes int
}

// ClearQueueInput contains the input for the ClearQueue use case.
type ClearQueueInput struct {
	GuildID snowflake.ID
}

// VoiceDisconnectInput contains the input for the HandleVoiceDisconnect use
// case.
type VoiceDisconnectInput struct {
	GuildID snowflake.ID
}

// ClearQueueOutput contains the result of the ClearQueue use case.
type ClearQueueOutput struct {
	Removed int
}

// SetAutoplayInput contains the input for the SetAutoplay use case.
type SetAutoplayInput struct {
	GuildID snowflake.ID
	Enabled bool
}

// StateInput contains the input for the State use case.
type StateInput struct {
	GuildID     snowflake.ID
	UpNextLimit int // Optional: caps the returned queue preview (0 means all)
}

// StateOutput is a point-in-time snapshot of a guild's playback state.
// Readers must tolerate the underlying state changing concurrently.
type StateOutput struct {
	Connected   bool
	Playing     bool
	Autoplay    bool
	Current     *domain.QueueItem
	QueueLength int
	UpNext      []*domain.QueueItem
	SkipVotes   int
}

// PlaybackService drives the per-guild playback loops and exposes the
// operations command handlers call. One loop goroutine per guild drains the
// queue, resolves streams, plays them, and recovers from stalls; the loop is
// the only writer of the guild's current item and playing flag.
type PlaybackService struct {
	repo      domain.PlayerRepository
	sink      ports.AudioSink
	voice     ports.VoiceConnector
	resolver  ports.StreamResolver
	prefetch  *PrefetchService
	consensus *ConsensusService
	sessions  ports.SessionStore
	tracks    ports.TrackStore
	configs   ports.ConfigStore
	config    PlaybackConfig

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewPlaybackService creates a PlaybackService. Call Close to cancel all
// guild loops and background work on shutdown.
func NewPlaybackService(
	repo domain.PlayerRepository,
	sink ports.AudioSink,
	voice ports.VoiceConnector,
	resolver ports.StreamResolver,
	prefetch *PrefetchService,
	consensus *ConsensusService,
	sessions ports.SessionStore,
	tracks ports.TrackStore,
	configs ports.ConfigStore,
	config PlaybackConfig,
) *PlaybackService {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &PlaybackService{
		repo:       repo,
		sink:       sink,
		voice:      voice,
		resolver:   resolver,
		prefetch:   prefetch,
		consensus:  consensus,
		sessions:   sessions,
		tracks:     tracks,
		configs:    configs,
		config:     config.withDefaults(),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	prefetch.SetWake(s.startLoop)
	return s
}

// Close cancels every guild loop and waits for background work to drain.
func (s *PlaybackService) Close() {
	s.baseCancel()
	s.wg.Wait()
}

// Join attaches the player to a voice channel and starts its playback loop.
// Joining a different channel while connected moves the player and keeps its
// queue.
func (s *PlaybackService) Join(ctx context.Context, input JoinInput) error {
	player := s.repo.Get(input.GuildID)
	if player != nil && player.Connected() && player.ChannelID() == input.ChannelID {
		return ErrAlreadyConnected
	}

	if err := s.voice.Join(ctx, input.GuildID, input.ChannelID); err != nil {
		return err
	}

	if player == nil {
		player = s.repo.GetOrCreate(input.GuildID)
		settings := guildSettings(ctx, s.configs, input.GuildID)
		player.SetAutoplay(settings.Autoplay)
		player.SetPreBuffer(settings.PreBuffer)
	}
	player.SetConnected(true)
	player.SetChannelID(input.ChannelID)
	player.Touch()

	s.startLoop(player)

	return nil
}

// Leave releases the voice connection but keeps the queue, so a later Join
// resumes where playback left off.
func (s *PlaybackService) Leave(ctx context.Context, input LeaveInput) error {
	player := s.repo.Get(input.GuildID)
	if player == nil || !player.Connected() {
		return ErrNotConnected
	}

	player.CancelLoop()
	if err := s.sink.Stop(ctx, input.GuildID); err != nil {
		slog.Warn("failed to stop audio sink", "guild_id", input.GuildID, "error", err)
	}
	s.release(ctx, player)

	return nil
}

// Stop halts playback, drains the queue, and releases the voice connection.
func (s *PlaybackService) Stop(ctx context.Context, input StopInput) error {
	player := s.repo.Get(input.GuildID)
	if player == nil || !player.Connected() {
		return ErrNotConnected
	}

	player.CancelLoop()
	if err := s.sink.Stop(ctx, input.GuildID); err != nil {
		slog.Warn("failed to stop audio sink", "guild_id", input.GuildID, "error", err)
	}
	player.Queue.Clear()
	s.release(ctx, player)

	return nil
}

// Enqueue adds an item to the guild's queue and makes sure the playback
// loop is running. Tier 0 items play before tier 1 items regardless of
// enqueue order; within a tier, items play in enqueue order.
func (s *PlaybackService) Enqueue(ctx context.Context, input EnqueueInput) (*EnqueueOutput, error) {
	player := s.repo.Get(input.GuildID)
	if player == nil || !player.Connected() {
		return nil, ErrNotConnected
	}

	player.Queue.Enqueue(input.Item, input.Tier)
	length := player.Queue.Len()
	player.Touch()

	s.startLoop(player)

	return &EnqueueOutput{QueueLength: length}, nil
}

// SkipCurrent stops the current track. The playback loop observes the stop
// as the track's end and advances to the next item on its own.
func (s *PlaybackService) SkipCurrent(ctx context.Context, input SkipInput) (*SkipOutput, error) {
	player := s.repo.Get(input.GuildID)
	if player == nil || !player.Connected() {
		return nil, ErrNotConnected
	}
	current := player.Current()
	if current == nil {
		return nil, ErrNotPlaying
	}

	if err := s.sink.Stop(ctx, input.GuildID); err != nil {
		return nil, err
	}

	return &SkipOutput{SkippedTrack: current}, nil
}

// VoteSkip records a skip vote for the current track and returns the number
// of distinct voters so far. Applying a vote threshold is the caller's job.
func (s *PlaybackService) VoteSkip(ctx context.Context, input VoteSkipInput) (*VoteSkipOutput, error) {
	player := s.repo.Get(input.GuildID)
	if player == nil || !player.Connected() {
		return nil, ErrNotConnected
	}
	if player.Current() == nil {
		return nil, ErrNotPlaying
	}

	return &VoteSkipOutput{Votes: player.AddSkipVote(input.UserID)}, nil
}

// ClearQueue drains all queued items without touching the current track.
func (s *PlaybackService) ClearQueue(ctx context.Context, input ClearQueueInput) (*ClearQueueOutput, error) {
	player := s.repo.Get(input.GuildID)
	if player == nil {
		return nil, ErrNotConnected
	}

	removed := player.Queue.Clear()
	if removed == 0 {
		return nil, ErrQueueEmpty
	}

	return &ClearQueueOutput{Removed: removed}, nil
}

// SetAutoplay toggles discovery refill for the guild and persists the
// choice. Enabling it while connected restarts an idle loop so discovery
// kicks in right away.
func (s *PlaybackService) SetAutoplay(ctx context.Context, input SetAutoplayInput) error {
	player := s.repo.GetOrCreate(input.GuildID)
	player.SetAutoplay(input.Enabled)

	settings := guildSettings(ctx, s.configs, input.GuildID)
	settings.Autoplay = input.Enabled
	if err := s.configs.SaveSettings(ctx, input.GuildID, settings); err != nil {
		return err
	}

	if input.Enabled && player.Connected() {
		s.startLoop(player)
	}

	return nil
}

// HandleVoiceDisconnect reconciles local state after Discord drops the bot's
// voice connection from outside, such as a kick or a channel delete. The
// connection is already gone, so unlike Leave this never talks to the
// gateway.
func (s *PlaybackService) HandleVoiceDisconnect(ctx context.Context, input VoiceDisconnectInput) {
	player := s.repo.Get(input.GuildID)
	if player == nil || !player.Connected() {
		return
	}

	slog.Info("voice connection dropped externally", "guild_id", input.GuildID)

	player.CancelLoop()
	s.endSession(ctx, player)
	player.SetConnected(false)
	player.SetChannelID(0)
}

// State returns a snapshot of the guild's playback state.
func (s *PlaybackService) State(ctx context.Context, input StateInput) (*StateOutput, error) {
	player := s.repo.Get(input.GuildID)
	if player == nil {
		return nil, ErrNotConnected
	}

	return &StateOutput{
		Connected:   player.Connected(),
		Playing:     player.IsPlaying(),
		Autoplay:    player.Autoplay(),
		Current:     player.Current(),
		QueueLength: player.Queue.Len(),
		UpNext:      player.Queue.Snapshot(input.UpNextLimit),
		SkipVotes:   player.SkipVotes(),
	}, nil
}

// startLoop launches the guild's playback loop unless one is already
// running.
func (s *PlaybackService) startLoop(player *domain.Player) {
	loopCtx, cancel := context.WithCancel(s.baseCtx)
	if !player.BeginLoop(cancel) {
		cancel()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runLoop(loopCtx, player)
	}()
}

// runLoop is the per-guild playback state machine. It drains the queue item
// by item until the queue stays empty after a discovery pass, the connection
// drops, or the context is cancelled. Per-item failures skip the item and
// never end the loop.
func (s *PlaybackService) runLoop(ctx context.Context, player *domain.Player) {
	defer func() {
		player.ClearCurrent()
		player.SetPlaying(false)
		player.EndLoop()
		// An enqueue racing the idle exit lands after the final dequeue but
		// before the loop slot frees, so its startLoop was a no-op. Restart
		// for it, or the item would sit until the next enqueue.
		if ctx.Err() == nil && player.Connected() && player.Queue.Len() > 0 {
			s.startLoop(player)
		}
	}()

	slog.Info("playback loop started", "guild_id", player.GuildID)
	defer slog.Info("playback loop stopped", "guild_id", player.GuildID)

	for {
		if ctx.Err() != nil || !player.Connected() {
			return
		}

		player.ClearSkipVotes()

		item, ok := player.Queue.Dequeue()
		if !ok {
			// One synchronous discovery pass; if the queue is still empty
			// the loop goes idle and a future enqueue restarts it.
			s.prefetch.Prepare(ctx, player)
			item, ok = player.Queue.Dequeue()
			if !ok {
				return
			}
		}

		streamURL := item.StreamURL()
		if streamURL == "" {
			url, err := s.resolver.Resolve(ctx, item.TrackID)
			if err != nil {
				slog.Warn("stream resolution failed, skipping track",
					"guild_id", player.GuildID,
					"track", item.TrackID,
					"title", item.Title,
					"error", err,
				)
				continue
			}
			item.SetStreamURL(url)
			streamURL = url
		}

		player.SetPlaying(true)
		player.SetCurrent(item)
		player.Touch()

		s.logTrackStart(ctx, player, item)

		done, err := s.sink.Play(ctx, player.GuildID, streamURL)
		if err != nil {
			slog.Warn("playback start failed, skipping track",
				"guild_id", player.GuildID,
				"track", item.TrackID,
				"title", item.Title,
				"error", err,
			)
			player.ClearCurrent()
			player.SetPlaying(false)
			continue
		}

		slog.Info("track started",
			"guild_id", player.GuildID,
			"track", item.TrackID,
			"title", item.Title,
			"source", item.Source,
		)

		s.kickBackground(ctx, player, item)

		reason := s.awaitCompletion(ctx, player, item, done)
		if ctx.Err() != nil {
			return
		}

		completed := reason == ports.EndFinished && player.SkipVotes() == 0
		s.finishTrack(ctx, item, completed)

		player.ClearCurrent()
		player.SetPlaying(false)
		player.Touch()

		slog.Info("track finished",
			"guild_id", player.GuildID,
			"track", item.TrackID,
			"reason", reason,
			"completed", completed,
		)
	}
}

// kickBackground schedules metadata resolution for the playing item and a
// prefetch pass for the next one, so the following track's stream URL is
// ready before this one ends.
func (s *PlaybackService) kickBackground(ctx context.Context, player *domain.Player, item *domain.QueueItem) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.consensus.Resolve(ctx, item)
	}()
	go func() {
		defer s.wg.Done()
		s.prefetch.Prepare(ctx, player)
	}()
}

// awaitCompletion waits for the track's end signal or the watchdog
// deadline, whichever comes first. On a watchdog hit it force-stops the
// sink, then gives the end signal a short grace window before synthesizing
// one, so the loop can never deadlock on a stuck decode.
func (s *PlaybackService) awaitCompletion(
	ctx context.Context,
	player *domain.Player,
	item *domain.QueueItem,
	done <-chan ports.EndReason,
) ports.EndReason {
	deadline := s.watchdogDeadline(item)
	watchdog := time.NewTimer(deadline)
	defer watchdog.Stop()

	select {
	case reason := <-done:
		return reason
	case <-ctx.Done():
		return ports.EndCleanup
	case <-watchdog.C:
	}

	slog.Warn("watchdog deadline hit, forcing stop",
		"guild_id", player.GuildID,
		"track", item.TrackID,
		"title", item.Title,
		"deadline", deadline,
	)
	if err := s.sink.Stop(ctx, player.GuildID); err != nil {
		slog.Warn("failed to stop stalled playback", "guild_id", player.GuildID, "error", err)
	}

	grace := time.NewTimer(s.config.StopGrace)
	defer grace.Stop()

	select {
	case reason := <-done:
		return reason
	case <-ctx.Done():
		return ports.EndCleanup
	case <-grace.C:
		slog.Warn("no end signal after forced stop, synthesizing completion",
			"guild_id", player.GuildID,
			"track", item.TrackID,
		)
		return ports.EndStopped
	}
}

func (s *PlaybackService) watchdogDeadline(item *domain.QueueItem) time.Duration {
	if s.config.TestMode {
		return s.config.TestDuration
	}
	if item.Duration > 0 {
		return item.Duration + s.config.WatchdogGrace
	}
	return s.config.FallbackDuration + s.config.WatchdogGrace
}

// logTrackStart attaches session bookkeeping to the item. Every write here
// is best effort; playback proceeds regardless.
func (s *PlaybackService) logTrackStart(ctx context.Context, player *domain.Player, item *domain.QueueItem) {
	if player.SessionID() == "" {
		sessionID, err := s.sessions.CreateSession(ctx, player.GuildID, player.ChannelID())
		if err != nil {
			slog.Warn("failed to create playback session", "guild_id", player.GuildID, "error", err)
		} else {
			player.SetSessionID(sessionID)
		}
	}

	if item.TrackDBID() == 0 {
		id, err := s.tracks.GetOrCreate(ctx, item)
		if err != nil {
			slog.Warn("failed to upsert track record", "track", item.TrackID, "error", err)
		} else {
			item.SetTrackDBID(id)
		}
	}

	if sessionID := player.SessionID(); sessionID != "" {
		historyID, err := s.sessions.LogTrackStart(ctx, sessionID, item)
		if err != nil {
			slog.Warn("failed to log track start", "track", item.TrackID, "error", err)
		} else {
			item.SetHistoryID(historyID)
		}
	}
}

// finishTrack records how the item ended in the session log, best effort.
func (s *PlaybackService) finishTrack(ctx context.Context, item *domain.QueueItem, completed bool) {
	historyID := item.HistoryID()
	if historyID == 0 {
		return
	}
	if err := s.sessions.MarkCompleted(ctx, historyID, completed); err != nil {
		slog.Warn("failed to mark track completion", "track", item.TrackID, "error", err)
	}
}

// release ends the session and detaches the voice connection. Failures are
// logged; the player is marked disconnected regardless so state cannot wedge.
func (s *PlaybackService) release(ctx context.Context, player *domain.Player) {
	s.endSession(ctx, player)

	if err := s.voice.Leave(ctx, player.GuildID); err != nil {
		slog.Warn("failed to leave voice channel", "guild_id", player.GuildID, "error", err)
	}
	player.SetConnected(false)
	player.SetChannelID(0)
}

// endSession closes the playback session in the store, best effort.
func (s *PlaybackService) endSession(ctx context.Context, player *domain.Player) {
	sessionID := player.SessionID()
	if sessionID == "" {
		return
	}
	if err := s.sessions.EndSession(ctx, sessionID); err != nil {
		slog.Warn("failed to end playback session",
			"guild_id", player.GuildID,
			"session_id", sessionID,
			"error", err,
		)
	}
	player.ClearSession()
}
