package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
	"github.com/Axiom3D-YT/vexo/internal/modules/player/domain"
)

const (
	defaultMusicBrainzBase = "https://musicbrainz.org/ws/2"

	// MusicBrainz and Discogs both reject anonymous clients, so identify
	// ourselves.
	apiUserAgent = "vexo/1.0 ( https://github.com/Axiom3D-YT/vexo )"
)

// MusicBrainzProvider answers consensus lookups from the MusicBrainz web
// service. Recording tags carry the vote; artist tags broaden it when the
// recording is sparsely tagged. The first-release-date of the best matching
// recording supplies the year.
type MusicBrainzProvider struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewMusicBrainzProvider creates a new MusicBrainzProvider. The client is
// throttled to one request per second per the MusicBrainz rate limit.
func NewMusicBrainzProvider() *MusicBrainzProvider {
	return &MusicBrainzProvider{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultMusicBrainzBase,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Name identifies this provider in logs and votes.
func (p *MusicBrainzProvider) Name() string {
	return "musicbrainz"
}

// Lookup searches for the recording and its artist and returns the combined
// tags plus the first release year.
func (p *MusicBrainzProvider) Lookup(ctx context.Context, artist, title string) (*ports.Lookup, error) {
	query := fmt.Sprintf("artist:%s AND recording:%s", luceneQuote(artist), luceneQuote(title))

	var recordings mbRecordingSearch
	if err := p.get(ctx, "/recording", query, &recordings); err != nil {
		return nil, err
	}

	lookup := &ports.Lookup{}
	if len(recordings.Recordings) > 0 {
		best := recordings.Recordings[0]
		lookup.Genres = tagNames(best.Tags)
		lookup.Year = yearFromDate(best.FirstReleaseDate)
	}

	// The artist search is a bonus; its failure must not cost us the
	// recording's answer.
	var artists mbArtistSearch
	err := p.get(ctx, "/artist", fmt.Sprintf("artist:%s", luceneQuote(artist)), &artists)
	if err == nil && len(artists.Artists) > 0 {
		lookup.Genres = mergeGenres(lookup.Genres, tagNames(artists.Artists[0].Tags))
	} else {
		lookup.Genres = mergeGenres(lookup.Genres)
	}

	return lookup, nil
}

func (p *MusicBrainzProvider) get(ctx context.Context, path, query string, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", apiUserAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("musicbrainz request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("musicbrainz returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type mbTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type mbRecording struct {
	Title            string  `json:"title"`
	FirstReleaseDate string  `json:"first-release-date"`
	Tags             []mbTag `json:"tags"`
}

type mbRecordingSearch struct {
	Recordings []mbRecording `json:"recordings"`
}

type mbArtist struct {
	Name string  `json:"name"`
	Tags []mbTag `json:"tags"`
}

type mbArtistSearch struct {
	Artists []mbArtist `json:"artists"`
}

func tagNames(tags []mbTag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}

// luceneQuote wraps a value as a Lucene phrase, escaping embedded quotes.
func luceneQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// yearFromDate extracts the year from a date string such as "1998-05-11" or
// a bare "1998".
func yearFromDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// mergeGenres combines genre lists into one normalized, deduplicated vote so
// a provider never votes twice for a case variant of the same name.
func mergeGenres(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, list := range lists {
		for _, name := range list {
			normalized := domain.NormalizeGenre(name)
			if normalized == "" {
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			merged = append(merged, normalized)
		}
	}
	return merged
}

// Ensure MusicBrainzProvider implements ports.MetadataProvider.
var _ ports.MetadataProvider = (*MusicBrainzProvider)(nil)
