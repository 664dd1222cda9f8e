package ports

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Candidate is a track proposed by the discovery collaborator.
type Candidate struct {
	TrackID   string
	Title     string
	Artist    string
	Strategy  string
	Reason    string
	ForUserID snowflake.ID
	Duration  time.Duration
	Genre     string
	Year      int
}

// Discovery proposes the next autoplay track for a guild.
type Discovery interface {
	// NextTrack returns a candidate for the given listeners, or nil when the
	// collaborator has nothing to offer. Weights is an opaque strategy-weight
	// string owned by the collaborator; cooldown is how long played tracks
	// stay ineligible.
	NextTrack(
		ctx context.Context,
		guildID snowflake.ID,
		listeners []snowflake.ID,
		weights string,
		cooldown time.Duration,
	) (*Candidate, error)
}
