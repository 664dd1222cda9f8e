package domain

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Player holds the per-guild playback state. One Player is created lazily on
// first use and lives for the process lifetime.
//
// The playback loop is the only writer of the current item and playing flag;
// other goroutines (prefetcher, reaper, status readers) access state through
// the mutex-guarded accessors and must tolerate it changing between reads.
type Player struct {
	GuildID snowflake.ID
	Queue   *Queue

	mu           sync.Mutex
	current      *QueueItem
	playing      bool
	looping      bool
	autoplay     bool
	preBuffer    bool
	connected    bool
	channelID    snowflake.ID
	sessionID    string
	lastActivity time.Time
	skipVotes    map[snowflake.ID]struct{}
	cancelLoop   context.CancelFunc
}

// NewPlayer creates a Player for the given guild with autoplay and
// pre-buffering enabled.
func NewPlayer(guildID snowflake.ID) *Player {
	return &Player{
		GuildID:      guildID,
		Queue:        NewQueue(),
		autoplay:     true,
		preBuffer:    true,
		lastActivity: time.Now().UTC(),
		skipVotes:    make(map[snowflake.ID]struct{}),
	}
}

// Current returns the item in playback, or nil.
func (p *Player) Current() *QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SetCurrent marks an item as the one in playback.
func (p *Player) SetCurrent(item *QueueItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = item
}

// ClearCurrent clears the in-playback item.
func (p *Player) ClearCurrent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
}

// IsPlaying reports whether the playback loop is active.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetPlaying sets the playing flag.
func (p *Player) SetPlaying(playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = playing
}

// Autoplay reports whether discovery refills the queue when it runs dry.
func (p *Player) Autoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

// SetAutoplay toggles discovery refill.
func (p *Player) SetAutoplay(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoplay = enabled
}

// PreBuffer reports whether deep pre-buffering is enabled. The immediate
// next track is always primed regardless of this flag.
func (p *Player) PreBuffer() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preBuffer
}

// SetPreBuffer toggles deep pre-buffering.
func (p *Player) SetPreBuffer(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preBuffer = enabled
}

// Connected reports whether a voice connection is attached.
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SetConnected sets the voice connection flag.
func (p *Player) SetConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = connected
}

// ChannelID returns the attached voice channel, or 0.
func (p *Player) ChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// SetChannelID stores the attached voice channel.
func (p *Player) SetChannelID(id snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channelID = id
}

// SessionID returns the external session handle, or "".
func (p *Player) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// SetSessionID stores the external session handle.
func (p *Player) SetSessionID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = id
}

// ClearSession clears the external session handle.
func (p *Player) ClearSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = ""
}

// LastActivity returns the time of the last playback activity.
func (p *Player) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}

// Touch refreshes the last-activity timestamp.
func (p *Player) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = time.Now().UTC()
}

// AddSkipVote records a skip vote for the current track and returns the
// total number of distinct voters so far.
func (p *Player) AddSkipVote(userID snowflake.ID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipVotes[userID] = struct{}{}
	return len(p.skipVotes)
}

// SkipVotes returns the number of distinct skip voters for the current track.
func (p *Player) SkipVotes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.skipVotes)
}

// ClearSkipVotes resets the skip-vote accumulator. The playback loop calls
// this at the top of every iteration.
func (p *Player) ClearSkipVotes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.skipVotes)
}

// Looping reports whether a playback loop currently drives this guild.
func (p *Player) Looping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.looping
}

// BeginLoop claims the playback loop slot. It returns false if a loop is
// already running, so at most one loop instance drives a guild at a time.
func (p *Player) BeginLoop(cancel context.CancelFunc) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.looping {
		return false
	}
	p.looping = true
	p.cancelLoop = cancel
	return true
}

// EndLoop releases the playback loop slot.
func (p *Player) EndLoop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.looping = false
	p.cancelLoop = nil
}

// CancelLoop cancels the running playback loop, if any.
func (p *Player) CancelLoop() {
	p.mu.Lock()
	cancel := p.cancelLoop
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// PlayerRepository stores the per-guild players.
type PlayerRepository interface {
	// Get returns the Player for the guild, or nil if none exists.
	Get(guildID snowflake.ID) *Player

	// GetOrCreate returns the Player for the guild, creating it if needed.
	GetOrCreate(guildID snowflake.ID) *Player

	// Delete removes the Player for the guild.
	Delete(guildID snowflake.ID)

	// All returns a snapshot of every known Player.
	All() []*Player
}
