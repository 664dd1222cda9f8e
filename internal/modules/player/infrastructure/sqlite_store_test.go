package infrastructure

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, snowflake.ID(100), snowflake.ID(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session ID")
	}

	item := domain.NewQueueItem("abc123", "Test Track", "Test Artist")
	item.RequesterID = snowflake.ID(42)

	trackID, err := store.GetOrCreate(ctx, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item.SetTrackDBID(trackID)

	historyID, err := store.LogTrackStart(ctx, sessionID, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if historyID == 0 {
		t.Fatal("expected a history ID")
	}

	if err := store.MarkCompleted(ctx, historyID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var completed bool
	var forUser string
	err = store.db.QueryRow(`
		SELECT completed, for_user_id FROM playback_history WHERE id = ?
	`, historyID).Scan(&completed, &forUser)
	if err != nil {
		t.Fatalf("failed to read history row: %v", err)
	}
	if !completed {
		t.Error("expected the play to be marked completed")
	}
	if forUser != "42" {
		t.Errorf("expected for_user_id to fall back to the requester, got %q", forUser)
	}

	if err := store.EndSession(ctx, sessionID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ended sql.NullTime
	err = store.db.QueryRow(`
		SELECT ended_at FROM playback_sessions WHERE id = ?
	`, sessionID).Scan(&ended)
	if err != nil {
		t.Fatalf("failed to read session row: %v", err)
	}
	if !ended.Valid {
		t.Error("expected ended_at to be set")
	}
}

func TestSQLiteStore_LogTrackStartWithoutTrackRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, snowflake.ID(1), snowflake.ID(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := domain.NewQueueItem("xyz", "Orphan", "Nobody")
	historyID, err := store.LogTrackStart(ctx, sessionID, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var trackID *int64
	err = store.db.QueryRow(`
		SELECT track_id FROM playback_history WHERE id = ?
	`, historyID).Scan(&trackID)
	if err != nil {
		t.Fatalf("failed to read history row: %v", err)
	}
	if trackID != nil {
		t.Errorf("expected NULL track_id, got %d", *trackID)
	}
}

func TestSQLiteStore_GetOrCreateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := domain.NewQueueItem("abc123", "Test Track", "Test Artist")

	first, err := store.GetOrCreate(ctx, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.GetOrCreate(ctx, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected the same record ID, got %d then %d", first, second)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&count); err != nil {
		t.Fatalf("failed to count tracks: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 track row, got %d", count)
	}
}

func TestSQLiteStore_UserRequestMakesTrackPermanent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	discovered := &domain.QueueItem{
		TrackID: "abc123",
		Title:   "Found Track",
		Artist:  "Someone",
		Source:  domain.SourceSimilar,
	}
	id, err := store.GetOrCreate(ctx, discovered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ephemeralOf := func() int {
		var ephemeral int
		err := store.db.QueryRow(`SELECT is_ephemeral FROM tracks WHERE id = ?`, id).Scan(&ephemeral)
		if err != nil {
			t.Fatalf("failed to read track row: %v", err)
		}
		return ephemeral
	}

	if got := ephemeralOf(); got != 1 {
		t.Fatalf("expected a discovery track to be ephemeral, got %d", got)
	}

	requested := domain.NewQueueItem("abc123", "Found Track", "Someone")
	if _, err := store.GetOrCreate(ctx, requested); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ephemeralOf(); got != 0 {
		t.Errorf("expected a user request to make the track permanent, got %d", got)
	}

	// A later discovery hit must not flip it back.
	if _, err := store.GetOrCreate(ctx, discovered); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ephemeralOf(); got != 0 {
		t.Errorf("expected the track to stay permanent, got %d", got)
	}
}

func TestSQLiteStore_SetGenresReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.GetOrCreate(ctx, domain.NewQueueItem("abc", "T", "A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.SetGenres(ctx, id, "House"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.SetGenres(ctx, id, "Techno"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := store.db.Query(`SELECT genre FROM track_genres WHERE track_id = ?`, id)
	if err != nil {
		t.Fatalf("failed to read genres: %v", err)
	}
	defer rows.Close()

	var genres []string
	for rows.Next() {
		var genre string
		if err := rows.Scan(&genre); err != nil {
			t.Fatalf("failed to scan genre: %v", err)
		}
		genres = append(genres, genre)
	}
	if len(genres) != 1 || genres[0] != "Techno" {
		t.Errorf("expected [Techno], got %v", genres)
	}
}

func TestSQLiteStore_UpdateYear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.GetOrCreate(ctx, domain.NewQueueItem("abc", "T", "A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.UpdateYear(ctx, id, 1998); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var year int
	if err := store.db.QueryRow(`SELECT release_year FROM tracks WHERE id = ?`, id).Scan(&year); err != nil {
		t.Fatalf("failed to read track row: %v", err)
	}
	if year != 1998 {
		t.Errorf("expected year 1998, got %d", year)
	}
}

func TestSQLiteStore_SettingsDefaultsWhenEmpty(t *testing.T) {
	store := newTestStore(t)

	settings, err := store.Settings(context.Background(), snowflake.ID(999))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings != domain.DefaultSettings() {
		t.Errorf("expected defaults, got %+v", settings)
	}
}

func TestSQLiteStore_SaveAndLoadSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	guildID := snowflake.ID(555)

	saved := domain.Settings{
		MaxTrackDuration: 10 * time.Minute,
		AlwaysOn:         true,
		Autoplay:         false,
		PreBuffer:        true,
		DiscoveryWeights: "similar:40,artist_radio:30,wildcard:20,library:10",
		ReplayCooldown:   90 * time.Minute,
	}
	if err := store.SaveSettings(ctx, guildID, saved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.Settings(ctx, guildID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != saved {
		t.Errorf("expected %+v, got %+v", saved, loaded)
	}

	// Settings for other guilds stay untouched.
	other, err := store.Settings(ctx, snowflake.ID(556))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != domain.DefaultSettings() {
		t.Errorf("expected defaults for the other guild, got %+v", other)
	}
}
