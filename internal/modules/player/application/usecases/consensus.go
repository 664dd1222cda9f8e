package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

// defaultConsensusTimeout bounds a whole consensus round.
const defaultConsensusTimeout = 5 * time.Second

// ConsensusService reconciles metadata answers from several providers into
// one genre/year decision per track.
//
// Providers run in parallel under a single global deadline. A provider error
// or a miss of the deadline counts as an abstention for that provider and
// never fails the round. The round itself runs at most once per item,
// gated by the item's metadata-attempted flag.
type ConsensusService struct {
	providers []ports.MetadataProvider
	tracks    ports.TrackStore
	timeout   time.Duration

	now func() time.Time
}

// NewConsensusService creates a ConsensusService. A timeout of 0 selects the
// default round deadline.
func NewConsensusService(
	providers []ports.MetadataProvider,
	tracks ports.TrackStore,
	timeout time.Duration,
) *ConsensusService {
	if timeout <= 0 {
		timeout = defaultConsensusTimeout
	}
	return &ConsensusService{
		providers: providers,
		tracks:    tracks,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Resolve runs one consensus round for the item and applies the result to
// it. Calling Resolve again for the same item is a no-op.
func (c *ConsensusService) Resolve(ctx context.Context, item *domain.QueueItem) {
	if !item.BeginMetadata() {
		return
	}
	if item.Genre() != "" && item.Year() != 0 {
		return
	}
	if len(c.providers) == 0 {
		return
	}

	votes := c.collectVotes(ctx, item)
	if len(votes) == 0 {
		slog.Debug("metadata consensus produced no votes",
			"track", item.TrackID,
			"title", item.Title,
		)
		return
	}

	c.apply(ctx, item, votes)
}

type providerAnswer struct {
	vote domain.Vote
	ok   bool
}

// collectVotes fans out one task per provider and gathers answers until all
// providers replied or the round deadline passed. Tasks still running at the
// deadline are abandoned; the buffered channel lets them exit without
// leaking.
func (c *ConsensusService) collectVotes(ctx context.Context, item *domain.QueueItem) []domain.Vote {
	roundCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answers := make(chan providerAnswer, len(c.providers))
	for _, provider := range c.providers {
		go func(p ports.MetadataProvider) {
			lookup, err := p.Lookup(roundCtx, item.Artist, item.Title)
			if err != nil {
				slog.Debug("metadata provider abstained",
					"provider", p.Name(),
					"track", item.TrackID,
					"error", err,
				)
				answers <- providerAnswer{}
				return
			}
			answers <- providerAnswer{
				vote: domain.Vote{Source: p.Name(), Genres: lookup.Genres, Year: lookup.Year},
				ok:   true,
			}
		}(provider)
	}

	votes := make([]domain.Vote, 0, len(c.providers))
	for range c.providers {
		select {
		case a := <-answers:
			if a.ok {
				votes = append(votes, a.vote)
			}
		case <-roundCtx.Done():
			return votes
		}
	}
	return votes
}

// apply tallies the votes, updates the in-flight item, and writes the result
// back to the track store. Persistence failures are logged and swallowed;
// the in-memory result stands regardless.
func (c *ConsensusService) apply(ctx context.Context, item *domain.QueueItem, votes []domain.Vote) {
	year := domain.TallyYears(votes, c.now().Year()+1)
	genre, genreVotes := domain.TallyGenres(votes)

	if year != 0 && year != item.Year() {
		item.SetYear(year)
	}

	if genre != "" {
		switch {
		case item.Genre() == "":
			item.SetGenre(genre)
		case item.Source == domain.SourceWildcard && genreVotes > 1:
			// A wildcard pick's initial genre is a low-confidence guess;
			// replace it only when more than one provider agreed.
			item.SetGenre(genre)
		}
	}

	slog.Info("metadata consensus resolved",
		"track", item.TrackID,
		"title", item.Title,
		"genre", item.Genre(),
		"year", item.Year(),
		"votes", len(votes),
	)

	c.persist(ctx, item)
}

func (c *ConsensusService) persist(ctx context.Context, item *domain.QueueItem) {
	if item.Genre() == "" && item.Year() == 0 {
		return
	}

	trackDBID := item.TrackDBID()
	if trackDBID == 0 {
		id, err := c.tracks.GetOrCreate(ctx, item)
		if err != nil {
			slog.Warn("failed to persist resolved metadata",
				"track", item.TrackID,
				"error", err,
			)
			return
		}
		item.SetTrackDBID(id)
		trackDBID = id
	}

	if genre := item.Genre(); genre != "" {
		if err := c.tracks.SetGenres(ctx, trackDBID, genre); err != nil {
			slog.Warn("failed to persist genre", "track", item.TrackID, "error", err)
		}
	}
	if year := item.Year(); year != 0 {
		if err := c.tracks.UpdateYear(ctx, trackDBID, year); err != nil {
			slog.Warn("failed to persist year", "track", item.TrackID, "error", err)
		}
	}
}
