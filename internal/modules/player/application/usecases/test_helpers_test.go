package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

func mockItem(id string) *domain.QueueItem {
	item := domain.NewQueueItem(id, "Track "+id, "Artist")
	item.RequesterID = snowflake.ID(123)
	item.Duration = 3 * time.Minute
	return item
}

// waitUntil polls cond until it holds or the timeout passes. Tests use it to
// observe the playback loop goroutine settling.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type mockRepository struct {
	mu      sync.Mutex
	players map[snowflake.ID]*domain.Player
}

func newMockRepository() *mockRepository {
	return &mockRepository{players: make(map[snowflake.ID]*domain.Player)}
}

func (m *mockRepository) Get(guildID snowflake.ID) *domain.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[guildID]
}

func (m *mockRepository) GetOrCreate(guildID snowflake.ID) *domain.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if player, ok := m.players[guildID]; ok {
		return player
	}
	player := domain.NewPlayer(guildID)
	m.players[guildID] = player
	return player
}

func (m *mockRepository) Delete(guildID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, guildID)
}

func (m *mockRepository) All() []*domain.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	players := make([]*domain.Player, 0, len(m.players))
	for _, player := range m.players {
		players = append(players, player)
	}
	return players
}

// createConnectedPlayer creates a Player already attached to a voice channel
// and saves it to the mock repository.
func (m *mockRepository) createConnectedPlayer(guildID, channelID snowflake.ID) *domain.Player {
	player := domain.NewPlayer(guildID)
	player.SetConnected(true)
	player.SetChannelID(channelID)
	m.mu.Lock()
	m.players[guildID] = player
	m.mu.Unlock()
	return player
}

// mockSink is a controllable AudioSink. Each Play hands back a completion
// channel the test finishes explicitly; Stop delivers a stopped signal
// unless silentStop simulates a wedged pipeline.
type mockSink struct {
	mu         sync.Mutex
	playErr    error
	stopErr    error
	silentStop bool
	plays      []string
	stops      int
	current    chan ports.EndReason

	started chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{started: make(chan struct{}, 16)}
}

func (m *mockSink) Play(_ context.Context, _ snowflake.ID, streamURL string) (<-chan ports.EndReason, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		return nil, m.playErr
	}
	done := make(chan ports.EndReason, 1)
	m.current = done
	m.plays = append(m.plays, streamURL)
	select {
	case m.started <- struct{}{}:
	default:
	}
	return done, nil
}

func (m *mockSink) Stop(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	if m.stopErr != nil {
		return m.stopErr
	}
	if !m.silentStop && m.current != nil {
		m.current <- ports.EndStopped
		m.current = nil
	}
	return nil
}

// awaitStart blocks until the next track starts playing.
func (m *mockSink) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-m.started:
	case <-time.After(2 * time.Second):
		t.Fatal("track did not start in time")
	}
}

// finish delivers the end signal for the track currently playing.
func (m *mockSink) finish(reason ports.EndReason) {
	m.mu.Lock()
	done := m.current
	m.current = nil
	m.mu.Unlock()
	if done != nil {
		done <- reason
	}
}

func (m *mockSink) playedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, len(m.plays))
	copy(urls, m.plays)
	return urls
}

func (m *mockSink) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

type mockVoiceConnector struct {
	mu       sync.Mutex
	joinErr  error
	leaveErr error
	joins    []snowflake.ID
	leaves   []snowflake.ID
}

func (m *mockVoiceConnector) Join(_ context.Context, guildID, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joins = append(m.joins, guildID)
	return nil
}

func (m *mockVoiceConnector) Leave(_ context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leaveErr != nil {
		return m.leaveErr
	}
	m.leaves = append(m.leaves, guildID)
	return nil
}

func (m *mockVoiceConnector) leaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leaves)
}

// mockResolver resolves every track to "stream://<id>" except the ones
// marked failing.
type mockResolver struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   []string
}

func (m *mockResolver) Resolve(_ context.Context, trackID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, trackID)
	if m.failing[trackID] {
		return "", errors.New("no stream found")
	}
	return "stream://" + trackID, nil
}

func (m *mockResolver) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockProvider struct {
	name   string
	genres []string
	year   int
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls int
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Lookup(ctx context.Context, _, _ string) (*ports.Lookup, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &ports.Lookup{Genres: m.genres, Year: m.year}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockDiscovery hands out its candidates in order, then reports none left.
type mockDiscovery struct {
	mu         sync.Mutex
	candidates []*ports.Candidate
	err        error
	calls      int
}

func (m *mockDiscovery) NextTrack(
	_ context.Context,
	_ snowflake.ID,
	_ []snowflake.ID,
	_ string,
	_ time.Duration,
) (*ports.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.candidates) == 0 {
		return nil, nil
	}
	candidate := m.candidates[0]
	m.candidates = m.candidates[1:]
	return candidate, nil
}

func (m *mockDiscovery) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockVoiceStates struct {
	listeners []snowflake.ID
	err       error
}

func (m *mockVoiceStates) Listeners(_ snowflake.ID) ([]snowflake.ID, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.listeners, nil
}

type mockSessionStore struct {
	mu        sync.Mutex
	createErr error
	logErr    error
	markErr   error
	endErr    error

	created       int
	starts        []string
	completions   map[int64]bool
	ended         []string
	nextHistoryID int64
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{completions: make(map[int64]bool)}
}

func (m *mockSessionStore) CreateSession(_ context.Context, _, _ snowflake.ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created++
	return fmt.Sprintf("session-%d", m.created), nil
}

func (m *mockSessionStore) LogTrackStart(_ context.Context, _ string, item *domain.QueueItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return 0, m.logErr
	}
	m.nextHistoryID++
	m.starts = append(m.starts, item.TrackID)
	return m.nextHistoryID, nil
}

func (m *mockSessionStore) MarkCompleted(_ context.Context, historyID int64, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.completions[historyID] = completed
	return nil
}

func (m *mockSessionStore) EndSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endErr != nil {
		return m.endErr
	}
	m.ended = append(m.ended, sessionID)
	return nil
}

func (m *mockSessionStore) startedTracks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tracks := make([]string, len(m.starts))
	copy(tracks, m.starts)
	return tracks
}

func (m *mockSessionStore) completionOf(historyID int64) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	completed, ok := m.completions[historyID]
	return completed, ok
}

func (m *mockSessionStore) endedSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]string, len(m.ended))
	copy(sessions, m.ended)
	return sessions
}

type mockTrackStore struct {
	mu       sync.Mutex
	getErr   error
	genreErr error
	yearErr  error

	ids    map[string]int64
	nextID int64
	genres map[int64]string
	years  map[int64]int
}

func newMockTrackStore() *mockTrackStore {
	return &mockTrackStore{
		ids:    make(map[string]int64),
		genres: make(map[int64]string),
		years:  make(map[int64]int),
	}
}

func (m *mockTrackStore) GetOrCreate(_ context.Context, item *domain.QueueItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	if id, ok := m.ids[item.TrackID]; ok {
		return id, nil
	}
	m.nextID++
	m.ids[item.TrackID] = m.nextID
	return m.nextID, nil
}

func (m *mockTrackStore) SetGenres(_ context.Context, trackDBID int64, genre string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.genreErr != nil {
		return m.genreErr
	}
	m.genres[trackDBID] = genre
	return nil
}

func (m *mockTrackStore) UpdateYear(_ context.Context, trackDBID int64, year int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.yearErr != nil {
		return m.yearErr
	}
	m.years[trackDBID] = year
	return nil
}

func (m *mockTrackStore) genreOf(trackDBID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.genres[trackDBID]
}

func (m *mockTrackStore) yearOf(trackDBID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.years[trackDBID]
}

type mockConfigStore struct {
	mu       sync.Mutex
	err      error
	saveErr  error
	settings map[snowflake.ID]domain.Settings
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{settings: make(map[snowflake.ID]domain.Settings)}
}

func (m *mockConfigStore) Settings(_ context.Context, guildID snowflake.ID) (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Settings{}, m.err
	}
	if settings, ok := m.settings[guildID]; ok {
		return settings, nil
	}
	return domain.DefaultSettings(), nil
}

func (m *mockConfigStore) SaveSettings(_ context.Context, guildID snowflake.ID, settings domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.settings[guildID] = settings
	return nil
}

func (m *mockConfigStore) set(guildID snowflake.ID, settings domain.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[guildID] = settings
}

func (m *mockConfigStore) get(guildID snowflake.ID) (domain.Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	settings, ok := m.settings[guildID]
	return settings, ok
}

// testPlayback wires a PlaybackService with mocks for every port.
type testPlayback struct {
	repo      *mockRepository
	sink      *mockSink
	voice     *mockVoiceConnector
	resolver  *mockResolver
	discovery *mockDiscovery
	voices    *mockVoiceStates
	configs   *mockConfigStore
	sessions  *mockSessionStore
	tracks    *mockTrackStore
	service   *PlaybackService
}

func newTestPlayback(t *testing.T, config PlaybackConfig, providers ...ports.MetadataProvider) *testPlayback {
	t.Helper()

	tp := &testPlayback{
		repo:      newMockRepository(),
		sink:      newMockSink(),
		voice:     &mockVoiceConnector{},
		resolver:  &mockResolver{},
		discovery: &mockDiscovery{},
		voices:    &mockVoiceStates{},
		configs:   newMockConfigStore(),
		sessions:  newMockSessionStore(),
		tracks:    newMockTrackStore(),
	}

	consensus := NewConsensusService(providers, tp.tracks, 100*time.Millisecond)
	prefetch := NewPrefetchService(tp.discovery, tp.resolver, consensus, tp.voices, tp.configs)
	tp.service = NewPlaybackService(
		tp.repo,
		tp.sink,
		tp.voice,
		tp.resolver,
		prefetch,
		consensus,
		tp.sessions,
		tp.tracks,
		tp.configs,
		config,
	)
	t.Cleanup(tp.service.Close)

	return tp
}
