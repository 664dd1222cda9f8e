package infrastructure

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS playback_sessions (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		release_year INTEGER NOT NULL DEFAULT 0,
		is_ephemeral INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS track_genres (
		track_id INTEGER NOT NULL REFERENCES tracks(id),
		genre TEXT NOT NULL,
		PRIMARY KEY (track_id, genre)
	)`,
	`CREATE TABLE IF NOT EXISTS playback_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT REFERENCES playback_sessions(id),
		track_id INTEGER REFERENCES tracks(id),
		played_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed INTEGER NOT NULL DEFAULT 0,
		source TEXT,
		reason TEXT,
		for_user_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (guild_id, key)
	)`,
}

// SQLiteStore persists sessions, history, track metadata and guild settings
// in a single SQLite database. It backs the session, track and config store
// ports.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path, applies the pragmas and
// bootstraps the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY
	// churn between the playback loop and the consensus writers.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	defer tx.Rollback()

	for _, statement := range schemaStatements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession opens a listening session and returns its handle.
func (s *SQLiteStore) CreateSession(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO playback_sessions (id, guild_id, channel_id) VALUES (?, ?, ?)
	`, id, guildID.String(), channelID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// LogTrackStart records that an item started playing and returns the
// history row ID.
func (s *SQLiteStore) LogTrackStart(
	ctx context.Context,
	sessionID string,
	item *domain.QueueItem,
) (int64, error) {
	target := item.ForUserID
	if target == 0 {
		target = item.RequesterID
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO playback_history (session_id, track_id, source, reason, for_user_id)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, nullInt64(item.TrackDBID()), string(item.Source), item.Reason, nullID(target))
	if err != nil {
		return 0, fmt.Errorf("failed to log track start: %w", err)
	}
	return result.LastInsertId()
}

// MarkCompleted records whether the play finished naturally.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, historyID int64, completed bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE playback_history SET completed = ? WHERE id = ?
	`, completed, historyID)
	return err
}

// EndSession closes a listening session.
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE playback_sessions SET ended_at = CURRENT_TIMESTAMP WHERE id = ?
	`, sessionID)
	return err
}

// GetOrCreate returns the durable record ID for the item's track, creating
// the record if needed. Discovery tracks are marked ephemeral; a later user
// request for the same track makes it permanent, never the reverse.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, item *domain.QueueItem) (int64, error) {
	ephemeral := item.Source != domain.SourceUserRequest

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tracks (track_id, title, artist, duration_seconds, release_year, is_ephemeral)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			is_ephemeral = min(tracks.is_ephemeral, excluded.is_ephemeral)
		RETURNING id
	`, item.TrackID, item.Title, item.Artist,
		int(item.Duration.Seconds()), item.Year(), ephemeral,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert track: %w", err)
	}
	return id, nil
}

// SetGenres replaces the track's stored genre tags with the given one.
func (s *SQLiteStore) SetGenres(ctx context.Context, trackDBID int64, genre string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM track_genres WHERE track_id = ?
	`, trackDBID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO track_genres (track_id, genre) VALUES (?, ?)
	`, trackDBID, genre); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateYear updates the stored release year for the track.
func (s *SQLiteStore) UpdateYear(ctx context.Context, trackDBID int64, year int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracks SET release_year = ? WHERE id = ?
	`, year, trackDBID)
	return err
}

// Settings returns the guild's settings, with defaults for any key without
// a stored row.
func (s *SQLiteStore) Settings(ctx context.Context, guildID snowflake.ID) (domain.Settings, error) {
	settings := domain.DefaultSettings()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM guild_settings WHERE guild_id = ?
	`, guildID.String())
	if err != nil {
		return settings, fmt.Errorf("failed to read guild settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		applySetting(&settings, key, value)
	}
	return settings, rows.Err()
}

// SaveSettings stores the guild's settings as key-value rows.
func (s *SQLiteStore) SaveSettings(
	ctx context.Context,
	guildID snowflake.ID,
	settings domain.Settings,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range settingPairs(settings) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guild_settings (guild_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(guild_id, key) DO UPDATE SET
				value = excluded.value,
				updated_at = CURRENT_TIMESTAMP
		`, guildID.String(), key, value); err != nil {
			return fmt.Errorf("failed to save setting %q: %w", key, err)
		}
	}
	return tx.Commit()
}

func applySetting(settings *domain.Settings, key, value string) {
	switch key {
	case "autoplay":
		if parsed, err := strconv.ParseBool(value); err == nil {
			settings.Autoplay = parsed
		}
	case "always_on":
		if parsed, err := strconv.ParseBool(value); err == nil {
			settings.AlwaysOn = parsed
		}
	case "prebuffer":
		if parsed, err := strconv.ParseBool(value); err == nil {
			settings.PreBuffer = parsed
		}
	case "max_track_duration":
		if seconds, err := strconv.Atoi(value); err == nil {
			settings.MaxTrackDuration = time.Duration(seconds) * time.Second
		}
	case "discovery_weights":
		settings.DiscoveryWeights = value
	case "replay_cooldown":
		if seconds, err := strconv.Atoi(value); err == nil {
			settings.ReplayCooldown = time.Duration(seconds) * time.Second
		}
	}
}

func settingPairs(settings domain.Settings) map[string]string {
	return map[string]string{
		"autoplay":           strconv.FormatBool(settings.Autoplay),
		"always_on":          strconv.FormatBool(settings.AlwaysOn),
		"prebuffer":          strconv.FormatBool(settings.PreBuffer),
		"max_track_duration": strconv.Itoa(int(settings.MaxTrackDuration.Seconds())),
		"discovery_weights":  settings.DiscoveryWeights,
		"replay_cooldown":    strconv.Itoa(int(settings.ReplayCooldown.Seconds())),
	}
}

func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullID(id snowflake.ID) any {
	if id == 0 {
		return nil
	}
	return id.String()
}

// Ensure SQLiteStore implements the persistence ports.
var (
	_ ports.SessionStore = (*SQLiteStore)(nil)
	_ ports.TrackStore   = (*SQLiteStore)(nil)
	_ ports.ConfigStore  = (*SQLiteStore)(nil)
)
