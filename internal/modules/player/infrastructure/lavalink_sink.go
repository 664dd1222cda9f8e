package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
)

// voiceConnectionTimeout is the maximum time to wait for a voice connection
// to be established.
const voiceConnectionTimeout = 10 * time.Second

// pendingVoiceConnection tracks a join in progress. The ready channel closes
// once both the voice state and voice server events arrived.
type pendingVoiceConnection struct {
	mu             sync.Mutex
	hasVoiceState  bool
	hasVoiceServer bool
	ready          chan struct{}
}

func (p *pendingVoiceConnection) onEvent(isVoiceState bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if isVoiceState {
		p.hasVoiceState = true
	} else {
		p.hasVoiceServer = true
	}

	if p.hasVoiceState && p.hasVoiceServer {
		select {
		case <-p.ready:
			// Already closed
		default:
			close(p.ready)
		}
	}
}

// voiceEventBuffer holds voice events until both VoiceStateUpdate and
// VoiceServerUpdate arrived, since Discord delivers them in either order and
// Lavalink rejects partial voice state.
type voiceEventBuffer struct {
	mu sync.Mutex

	// From VoiceStateUpdate
	hasVoiceState bool
	channelID     *snowflake.ID
	sessionID     string

	// From VoiceServerUpdate
	hasVoiceServer bool
	token          string
	endpoint       string
}

// setVoiceState stores the voice state half and reports whether both halves
// are now present.
func (b *voiceEventBuffer) setVoiceState(channelID *snowflake.ID, sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceState = true
	b.channelID = channelID
	b.sessionID = sessionID

	return b.hasVoiceState && b.hasVoiceServer
}

// setVoiceServer stores the voice server half and reports whether both
// halves are now present.
func (b *voiceEventBuffer) setVoiceServer(token, endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceServer = true
	b.token = token
	b.endpoint = endpoint

	return b.hasVoiceState && b.hasVoiceServer
}

// getData returns the buffered data and resets the buffer.
func (b *voiceEventBuffer) getData() (channelID *snowflake.ID, sessionID, token, endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channelID = b.channelID
	sessionID = b.sessionID
	token = b.token
	endpoint = b.endpoint

	b.hasVoiceState = false
	b.hasVoiceServer = false
	b.channelID = nil
	b.sessionID = ""
	b.token = ""
	b.endpoint = ""

	return
}

// endWaiter is the completion side of one Play call. End events are matched
// by encoded track so a late signal from a superseded track cannot complete
// the wrong wait.
type endWaiter struct {
	done    chan ports.EndReason
	encoded string
}

// LavalinkSink plays resolved stream URLs through a Lavalink node and
// reports per-track completion. It implements the audio sink and voice
// connector ports on top of DisGoLink.
type LavalinkSink struct {
	link    disgolink.Client
	session *discordgo.Session
	botID   snowflake.ID

	pendingMu sync.Mutex
	pending   map[snowflake.ID]*pendingVoiceConnection

	// voiceBuffers holds buffered voice events per guild to handle
	// out-of-order delivery
	voiceBufferMu sync.Mutex
	voiceBuffers  map[snowflake.ID]*voiceEventBuffer

	waiterMu sync.Mutex
	waiters  map[snowflake.ID]endWaiter
}

// LavalinkConfig contains Lavalink connection configuration.
type LavalinkConfig struct {
	Address  string
	Password string
}

// NewLavalinkSink creates a LavalinkSink and connects it to the configured
// node. The session must already be open so the bot user is known.
func NewLavalinkSink(session *discordgo.Session, config LavalinkConfig) (*LavalinkSink, error) {
	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bot ID: %w", err)
	}

	sink := &LavalinkSink{
		session:      session,
		botID:        botID,
		pending:      make(map[snowflake.ID]*pendingVoiceConnection),
		voiceBuffers: make(map[snowflake.ID]*voiceEventBuffer),
		waiters:      make(map[snowflake.ID]endWaiter),
	}

	link := disgolink.New(botID,
		disgolink.WithListenerFunc(sink.onTrackStart),
		disgolink.WithListenerFunc(sink.onTrackEnd),
		disgolink.WithListenerFunc(sink.onTrackException),
		disgolink.WithListenerFunc(sink.onTrackStuck),
	)
	sink.link = link

	node, err := link.AddNode(context.Background(), disgolink.NodeConfig{
		Name:     "main",
		Address:  config.Address,
		Password: config.Password,
		Secure:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	slog.Info("connected to Lavalink", "node", node.Config().Name, "address", config.Address)

	return sink, nil
}

// Close shuts down the Lavalink connection.
func (s *LavalinkSink) Close() {
	s.link.Close()
}

// Join connects to a voice channel. It waits until both VoiceStateUpdate
// and VoiceServerUpdate arrived, so Lavalink holds a complete voice state
// before any playback starts.
func (s *LavalinkSink) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	pending := &pendingVoiceConnection{
		ready: make(chan struct{}),
	}

	s.pendingMu.Lock()
	s.pending[guildID] = pending
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, guildID)
		s.pendingMu.Unlock()
	}()

	err := s.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, false)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	select {
	case <-pending.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	case <-time.After(voiceConnectionTimeout):
		return fmt.Errorf("timeout waiting for voice connection")
	}
}

// Leave disconnects from the voice channel and destroys the guild's
// Lavalink player. A pending completion wait is released with a cleanup
// signal.
func (s *LavalinkSink) Leave(ctx context.Context, guildID snowflake.ID) error {
	if player := s.link.ExistingPlayer(guildID); player != nil {
		if err := player.Destroy(ctx); err != nil {
			slog.Warn("failed to destroy player", "guild", guildID, "error", err)
		}
	}

	s.deliverAny(guildID, ports.EndCleanup)

	err := s.session.ChannelVoiceJoinManual(guildID.String(), "", false, false)
	if err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// Play loads the stream URL on the best node and starts playback. The
// returned channel delivers exactly one end signal for this track.
func (s *LavalinkSink) Play(
	ctx context.Context,
	guildID snowflake.ID,
	streamURL string,
) (<-chan ports.EndReason, error) {
	node := s.link.BestNode()
	if node == nil {
		return nil, fmt.Errorf("no available Lavalink node")
	}

	result, err := node.LoadTracks(ctx, streamURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream: %w", err)
	}

	track, err := firstTrack(result)
	if err != nil {
		return nil, err
	}

	done := make(chan ports.EndReason, 1)
	s.waiterMu.Lock()
	if old, ok := s.waiters[guildID]; ok {
		select {
		case old.done <- ports.EndReplaced:
		default:
		}
	}
	s.waiters[guildID] = endWaiter{done: done, encoded: track.Encoded}
	s.waiterMu.Unlock()

	player := s.link.Player(guildID)
	if err := player.Update(ctx, lavalink.WithEncodedTrack(track.Encoded)); err != nil {
		s.waiterMu.Lock()
		delete(s.waiters, guildID)
		s.waiterMu.Unlock()
		return nil, fmt.Errorf("failed to play track: %w", err)
	}

	return done, nil
}

// Stop stops the current playback. The end signal for the stopped track is
// delivered through its Play channel.
func (s *LavalinkSink) Stop(ctx context.Context, guildID snowflake.ID) error {
	player := s.link.ExistingPlayer(guildID)
	if player == nil {
		return nil
	}

	if err := player.Update(ctx, lavalink.WithNullTrack()); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}

	return nil
}

// firstTrack extracts the playable track from a load result.
func firstTrack(result *lavalink.LoadResult) (lavalink.Track, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return data, nil
	case lavalink.Playlist:
		if len(data.Tracks) > 0 {
			return data.Tracks[0], nil
		}
	case lavalink.Search:
		if len(data) > 0 {
			return data[0], nil
		}
	case lavalink.Exception:
		return lavalink.Track{}, fmt.Errorf("failed to load stream: %s", data.Message)
	}
	return lavalink.Track{}, fmt.Errorf("stream produced no playable track")
}

// OnVoiceServerUpdate handles Discord voice server updates.
// This must be called from the Discord event handler.
func (s *LavalinkSink) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	buffer := s.getOrCreateVoiceBuffer(guildID)
	if buffer.setVoiceServer(event.Token, event.Endpoint) {
		s.forwardBufferedVoiceEvents(guildID, buffer)
	}

	s.pendingMu.Lock()
	pending := s.pending[guildID]
	s.pendingMu.Unlock()

	if pending != nil {
		pending.onEvent(false)
	}
}

// OnVoiceStateUpdate handles Discord voice state updates for the bot user.
// This must be called from the Discord event handler.
func (s *LavalinkSink) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	if event.UserID != s.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	sessionID := event.SessionID

	// An empty channel ID means the bot is disconnecting
	var channelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		channelID = &id
	}

	// A disconnect needs no matching VoiceServerUpdate; forward right away
	// and release any completion wait.
	if channelID == nil {
		s.link.OnVoiceStateUpdate(context.Background(), guildID, nil, sessionID)
		s.clearVoiceBuffer(guildID)
		s.deliverAny(guildID, ports.EndCleanup)
		return
	}

	buffer := s.getOrCreateVoiceBuffer(guildID)
	if buffer.setVoiceState(channelID, sessionID) {
		s.forwardBufferedVoiceEvents(guildID, buffer)
	}

	s.pendingMu.Lock()
	pending := s.pending[guildID]
	s.pendingMu.Unlock()

	if pending != nil {
		pending.onEvent(true)
	}
}

func (s *LavalinkSink) getOrCreateVoiceBuffer(guildID snowflake.ID) *voiceEventBuffer {
	s.voiceBufferMu.Lock()
	defer s.voiceBufferMu.Unlock()

	buffer, exists := s.voiceBuffers[guildID]
	if !exists {
		buffer = &voiceEventBuffer{}
		s.voiceBuffers[guildID] = buffer
	}
	return buffer
}

func (s *LavalinkSink) clearVoiceBuffer(guildID snowflake.ID) {
	s.voiceBufferMu.Lock()
	defer s.voiceBufferMu.Unlock()
	delete(s.voiceBuffers, guildID)
}

// forwardBufferedVoiceEvents sends the buffered voice events to Lavalink in
// the order it expects.
func (s *LavalinkSink) forwardBufferedVoiceEvents(guildID snowflake.ID, buffer *voiceEventBuffer) {
	channelID, sessionID, token, endpoint := buffer.getData()

	slog.Debug("forwarding buffered voice events to Lavalink",
		"guild", guildID,
		"channel", channelID,
		"hasSessionID", sessionID != "",
	)

	s.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, sessionID)
	s.link.OnVoiceServerUpdate(context.Background(), guildID, token, endpoint)
}

// deliver completes the guild's pending wait when the ended track matches.
func (s *LavalinkSink) deliver(guildID snowflake.ID, encoded string, reason ports.EndReason) {
	s.waiterMu.Lock()
	waiter, ok := s.waiters[guildID]
	if ok && (encoded == "" || waiter.encoded == encoded) {
		delete(s.waiters, guildID)
	} else {
		ok = false
	}
	s.waiterMu.Unlock()

	if ok {
		waiter.done <- reason
	}
}

// deliverAny completes the guild's pending wait regardless of track.
func (s *LavalinkSink) deliverAny(guildID snowflake.ID, reason ports.EndReason) {
	s.deliver(guildID, "", reason)
}

func (s *LavalinkSink) onTrackStart(player disgolink.Player, event lavalink.TrackStartEvent) {
	slog.Debug("track started", "guild", player.GuildID(), "track", event.Track.Info.Title)
}

func (s *LavalinkSink) onTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	slog.Debug("track ended", "guild", player.GuildID(), "reason", event.Reason)
	s.deliver(player.GuildID(), event.Track.Encoded, convertEndReason(event.Reason))
}

func (s *LavalinkSink) onTrackException(player disgolink.Player, event lavalink.TrackExceptionEvent) {
	slog.Warn("track exception", "guild", player.GuildID(), "error", event.Exception.Message)
}

func (s *LavalinkSink) onTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	slog.Warn("track stuck", "guild", player.GuildID(), "threshold", event.Threshold)
}

func convertEndReason(reason lavalink.TrackEndReason) ports.EndReason {
	switch reason {
	case lavalink.TrackEndReasonFinished:
		return ports.EndFinished
	case lavalink.TrackEndReasonLoadFailed:
		return ports.EndLoadFailed
	case lavalink.TrackEndReasonStopped:
		return ports.EndStopped
	case lavalink.TrackEndReasonReplaced:
		return ports.EndReplaced
	case lavalink.TrackEndReasonCleanup:
		return ports.EndCleanup
	default:
		return ports.EndStopped
	}
}

// Ensure LavalinkSink implements the port interfaces.
var (
	_ ports.AudioSink      = (*LavalinkSink)(nil)
	_ ports.VoiceConnector = (*LavalinkSink)(nil)
)
