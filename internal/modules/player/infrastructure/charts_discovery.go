package infrastructure

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/raitonoberu/ytmusic"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
)

const chartSearchTimeout = 5 * time.Second

var chartRegions = []string{"US", "UK"}

// ChartsDiscovery proposes autoplay tracks by sampling a current Top 100
// chart on YouTube Music. It serves the wildcard strategy only; tracks it
// proposed recently are held back for the caller's cooldown window.
type ChartsDiscovery struct {
	mu     sync.Mutex
	recent map[snowflake.ID]map[string]time.Time
}

// NewChartsDiscovery creates a new ChartsDiscovery.
func NewChartsDiscovery() *ChartsDiscovery {
	return &ChartsDiscovery{
		recent: make(map[snowflake.ID]map[string]time.Time),
	}
}

// NextTrack returns a random chart track the guild has not heard within the
// cooldown window, or nil when the charts offer nothing new. The weights
// string is accepted for the port but a single-strategy picker has nothing
// to weigh.
func (d *ChartsDiscovery) NextTrack(
	ctx context.Context,
	guildID snowflake.ID,
	listeners []snowflake.ID,
	weights string,
	cooldown time.Duration,
) (*ports.Candidate, error) {
	if len(listeners) == 0 {
		return nil, nil
	}

	region := chartRegions[rand.Intn(len(chartRegions))]
	query := fmt.Sprintf("Top 100 Songs %s %d", region, time.Now().Year())

	tracks, err := searchCharts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chart search failed: %w", err)
	}

	choice, ok := d.pick(guildID, tracks, cooldown)
	if !ok {
		return nil, nil
	}

	return &ports.Candidate{
		TrackID:  choice.videoID,
		Title:    choice.title,
		Artist:   choice.artist,
		Strategy: "wildcard",
		Reason:   fmt.Sprintf("Random from %s Top 100", region),
		Duration: choice.duration,
	}, nil
}

// pick selects a random eligible track and records it against the guild's
// cooldown window.
func (d *ChartsDiscovery) pick(
	guildID snowflake.ID,
	tracks []chartTrack,
	cooldown time.Duration,
) (chartTrack, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := d.recent[guildID]
	if seen == nil {
		seen = make(map[string]time.Time)
		d.recent[guildID] = seen
	}

	now := time.Now()
	for id, playedAt := range seen {
		if now.Sub(playedAt) >= cooldown {
			delete(seen, id)
		}
	}

	var eligible []chartTrack
	for _, track := range tracks {
		if _, onCooldown := seen[track.videoID]; onCooldown {
			continue
		}
		eligible = append(eligible, track)
	}
	if len(eligible) == 0 {
		return chartTrack{}, false
	}

	choice := eligible[rand.Intn(len(eligible))]
	seen[choice.videoID] = now
	return choice, true
}

type chartTrack struct {
	videoID  string
	title    string
	artist   string
	duration time.Duration
}

// searchCharts runs the search on a goroutine since the ytmusic client does
// not take a context.
func searchCharts(ctx context.Context, query string) ([]chartTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, chartSearchTimeout)
	defer cancel()

	type searchOutcome struct {
		tracks []chartTrack
		err    error
	}
	done := make(chan searchOutcome, 1)

	go func() {
		search := ytmusic.TrackSearch(query)
		page, err := search.Next()
		if err != nil {
			done <- searchOutcome{err: err}
			return
		}

		var tracks []chartTrack
		for _, track := range page.Tracks {
			if track.VideoID == "" {
				continue
			}
			artist := ""
			if len(track.Artists) > 0 {
				artist = track.Artists[0].Name
			}
			tracks = append(tracks, chartTrack{
				videoID:  track.VideoID,
				title:    track.Title,
				artist:   artist,
				duration: time.Duration(track.Duration) * time.Second,
			})
		}
		done <- searchOutcome{tracks: tracks}
	}()

	select {
	case outcome := <-done:
		return outcome.tracks, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ensure ChartsDiscovery implements ports.Discovery.
var _ ports.Discovery = (*ChartsDiscovery)(nil)
