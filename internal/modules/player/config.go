package player

import "time"

// Config holds the player module configuration.
type Config struct {
	LavalinkAddress  string `env:"LAVALINK_ADDRESS,notEmpty"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD,notEmpty"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/vexo.db"`

	// Optional metadata providers. MusicBrainz needs no credentials and is
	// always on; these two join the consensus pool only when configured.
	DiscogsToken   string `env:"DISCOGS_TOKEN"`
	CuratorAPIKey  string `env:"CURATOR_API_KEY"`
	CuratorBaseURL string `env:"CURATOR_BASE_URL"`
	CuratorModel   string `env:"CURATOR_MODEL"`

	MetadataTimeout time.Duration `env:"METADATA_TIMEOUT" envDefault:"5s"`

	// TestMode caps every track at TestDuration so end-to-end runs finish
	// quickly against real audio.
	TestMode     bool          `env:"PLAYBACK_TEST_MODE" envDefault:"false"`
	TestDuration time.Duration `env:"PLAYBACK_TEST_DURATION" envDefault:"5s"`
}
