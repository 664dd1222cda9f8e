package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
)

const defaultDiscogsBase = "https://api.discogs.com"

// DiscogsProvider answers consensus lookups from the Discogs database
// search. Release genres and styles merge into one vote; the release year
// supplies the year vote.
type DiscogsProvider struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewDiscogsProvider creates a new DiscogsProvider using a personal access
// token.
func NewDiscogsProvider(token string) *DiscogsProvider {
	return &DiscogsProvider{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultDiscogsBase,
		token:   token,
	}
}

// Name identifies this provider in logs and votes.
func (p *DiscogsProvider) Name() string {
	return "discogs"
}

// Lookup searches Discogs releases for the pair and returns the best match's
// genres, styles and year.
func (p *DiscogsProvider) Lookup(ctx context.Context, artist, title string) (*ports.Lookup, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%s - %s", artist, title))
	params.Set("type", "release")
	params.Set("per_page", "3")

	endpoint := p.baseURL + "/database/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", apiUserAgent)
	req.Header.Set("Authorization", "Discogs token="+p.token)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discogs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discogs returned status %d", resp.StatusCode)
	}

	var search discogsSearch
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, err
	}

	lookup := &ports.Lookup{}
	if len(search.Results) > 0 {
		best := search.Results[0]
		lookup.Genres = mergeGenres(best.Genres, best.Styles)
		lookup.Year = yearFromDate(best.Year)
	}
	return lookup, nil
}

type discogsResult struct {
	Title  string   `json:"title"`
	Year   string   `json:"year"`
	Genres []string `json:"genre"`
	Styles []string `json:"style"`
}

type discogsSearch struct {
	Results []discogsResult `json:"results"`
}

// Ensure DiscogsProvider implements ports.MetadataProvider.
var _ ports.MetadataProvider = (*DiscogsProvider)(nil)
