package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Axiom3D-YT/vexo/internal/modules/player/application/ports"
)

const (
	defaultCuratorBase  = "https://api.groq.com/openai/v1"
	defaultCuratorModel = "groq/compound-mini"
)

const curatorSystemPrompt = `You are a music metadata assistant. Given a song title and artist, reply with a JSON object holding two keys: "genre", the single genre that best fits the track, and "release_date", the year of original release. Use an empty string for anything you do not know.`

// CuratorProvider answers consensus lookups from an OpenAI-compatible chat
// completion endpoint. The model's single genre guess and release year count
// as one vote next to the database-backed providers.
type CuratorProvider struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewCuratorProvider creates a new CuratorProvider. Empty baseURL and model
// fall back to the Groq API defaults.
func NewCuratorProvider(apiKey, baseURL, model string) *CuratorProvider {
	if baseURL == "" {
		baseURL = defaultCuratorBase
	}
	if model == "" {
		model = defaultCuratorModel
	}
	return &CuratorProvider{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
	}
}

// Name identifies this provider in logs and votes.
func (p *CuratorProvider) Name() string {
	return "curator"
}

// Lookup asks the model for the track's genre and release year.
func (p *CuratorProvider) Lookup(ctx context.Context, artist, title string) (*ports.Lookup, error) {
	payload := curatorRequest{
		Model: p.model,
		Messages: []curatorMessage{
			{Role: "system", Content: curatorSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Song Title: %s\nArtist: %s", title, artist)},
		},
		Temperature:    0.2,
		ResponseFormat: curatorResponseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("curator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("curator returned status %d", resp.StatusCode)
	}

	var completion curatorCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("curator returned no choices")
	}

	// The message content is itself a JSON document per response_format.
	var answer curatorAnswer
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &answer); err != nil {
		return nil, fmt.Errorf("curator returned invalid JSON: %w", err)
	}

	lookup := &ports.Lookup{Year: yearFromDate(answer.ReleaseDate)}
	if genre := strings.TrimSpace(answer.Genre); genre != "" {
		lookup.Genres = []string{genre}
	}
	return lookup, nil
}

type curatorMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type curatorResponseFormat struct {
	Type string `json:"type"`
}

type curatorRequest struct {
	Model          string                `json:"model"`
	Messages       []curatorMessage      `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat curatorResponseFormat `json:"response_format"`
}

type curatorChoice struct {
	Message curatorMessage `json:"message"`
}

type curatorCompletion struct {
	Choices []curatorChoice `json:"choices"`
}

type curatorAnswer struct {
	Genre       string `json:"genre"`
	ReleaseDate string `json:"release_date"`
}

// Ensure CuratorProvider implements ports.MetadataProvider.
var _ ports.MetadataProvider = (*CuratorProvider)(nil)
