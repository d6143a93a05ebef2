// Package suggest talks to a local Ollama API for LLM-powered next-track
// suggestions and hype phrases. Every failure mode is non-fatal and
// distinguishable so the console can surface a message while the Auto-DJ
// keeps running on its own selection logic.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spindeck/spindeck/internal/library"
	"go.uber.org/zap"
)

// The failure taxonomy, testable with errors.Is.
var (
	ErrRequest  = errors.New("suggestion request failed")
	ErrParse    = errors.New("suggestion response malformed")
	ErrNotFound = errors.New("suggested track not in library")
)

// Client talks to an Ollama /api/generate endpoint.
type Client struct {
	baseURL    string
	model      string
	log        *zap.Logger
	httpClient *http.Client
}

// NewClient creates a suggestion client.
func NewClient(baseURL, model string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		log:     log.Named("suggest"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // first call loads the model into VRAM
		},
	}
}

// generateRequest is the Ollama /api/generate request body. Format carries
// an optional JSON schema constraining the response shape.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
}

// generateResponse is the Ollama /api/generate response.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// trackSchema constrains the suggestion response to {"track": "<name>"}.
var trackSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"track": {"type": "string"}},
	"required": ["track"]
}`)

// Available checks whether the endpoint is reachable.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == 200
}

func (c *Client) generate(ctx context.Context, system, prompt string, format json.RawMessage) (string, error) {
	body := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Format: format,
		Options: map[string]any{
			"temperature": 0.9,
			"top_p":       0.95,
			"num_predict": 128,
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %v", ErrRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrRequest, resp.StatusCode, string(bodyBytes))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	return strings.TrimSpace(result.Response), nil
}

// SuggestTrack asks the model to pick the next track given the current one
// and the candidate list, and resolves the answer against the candidates.
func (c *Client) SuggestTrack(ctx context.Context, current library.Track, candidates []library.Track) (library.Track, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Now playing: %q by %s (key %s, %.0f BPM, %s, energy %d/10).\n",
		current.Name, current.Artist, current.Key, current.BPM, current.Genre, current.Energy)
	sb.WriteString("Pick the single best next track from this list:\n")
	for _, t := range candidates {
		fmt.Fprintf(&sb, "- %s (key %s, %.0f BPM, %s, energy %d/10)\n",
			t.Name, t.Key, t.BPM, t.Genre, t.Energy)
	}

	raw, err := c.generate(ctx,
		"You are a club DJ choosing the next track for a seamless set. Answer with JSON only.",
		sb.String(), trackSchema)
	if err != nil {
		return library.Track{}, err
	}

	var answer struct {
		Track string `json:"track"`
	}
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return library.Track{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if answer.Track == "" {
		return library.Track{}, fmt.Errorf("%w: empty track field", ErrParse)
	}

	for _, t := range candidates {
		if strings.EqualFold(t.Name, answer.Track) {
			c.log.Info("suggestion accepted", zap.String("track", t.Name))
			return t, nil
		}
	}
	return library.Track{}, fmt.Errorf("%w: %q", ErrNotFound, answer.Track)
}

// HypePhrase asks for one short crowd-hype line for the current track.
func (c *Client) HypePhrase(ctx context.Context, current library.Track) (string, error) {
	prompt := fmt.Sprintf("The DJ just dropped %q by %s (%s, energy %d/10). One short hype line for the crowd, no quotes.",
		current.Name, current.Artist, current.Genre, current.Energy)
	phrase, err := c.generate(ctx, "You are a hype MC. Answer with a single short line.", prompt, nil)
	if err != nil {
		return "", err
	}
	if phrase == "" {
		return "", fmt.Errorf("%w: empty response", ErrParse)
	}
	return phrase, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }
