package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"moodatlas/internal/classifier"
	"moodatlas/internal/countries"
	"moodatlas/internal/types"
)

// httpFetcher pulls posts from a JSON feed endpoint. It stands in for
// the production source client, which lives outside this module.
type httpFetcher struct {
	baseURL string
	client  *http.Client
}

func newHTTPFetcher(baseURL string, timeout time.Duration) *httpFetcher {
	return &httpFetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type sourcePost struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *httpFetcher) Fetch(ctx context.Context, country string) ([]*types.Post, error) {
	endpoint := fmt.Sprintf("%s/posts?country=%s", f.baseURL, url.QueryEscape(country))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source request failed for %s: %w", country, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned %d for %s", resp.StatusCode, country)
	}

	var raw []sourcePost
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode source response for %s: %w", country, err)
	}

	posts := make([]*types.Post, 0, len(raw))
	for _, sp := range raw {
		id := sp.ID
		if id == "" {
			id = uuid.NewString()
		}
		posts = append(posts, types.NewPost(id, country, sp.Title, sp.Text, sp.URL, sp.CreatedAt))
	}
	return posts, nil
}

// passthroughExtractor serves posts whose body arrived inline with the
// fetch. Posts with no body report a skipped extraction so the pipeline
// classifies on title alone.
type passthroughExtractor struct{}

func (e *passthroughExtractor) Extract(ctx context.Context, post *types.Post) (string, types.ExtractionStatus, error) {
	if strings.TrimSpace(post.Text) == "" {
		return "", types.ExtractionSkipped, nil
	}
	return post.Title + "\n" + post.Text, types.ExtractionOK, nil
}

// lexiconClassifier is a keyword fallback used when no model endpoint is
// wired in. Scores are deliberately conservative.
type lexiconClassifier struct {
	lexicon map[types.Emotion][]string
}

func newLexiconClassifier() *lexiconClassifier {
	return &lexiconClassifier{
		lexicon: map[types.Emotion][]string{
			types.EmotionAnger:    {"angry", "furious", "outrage", "protest", "riot"},
			types.EmotionFear:     {"afraid", "fear", "panic", "threat", "warning"},
			types.EmotionDisgust:  {"disgust", "corrupt", "scandal", "shameful"},
			types.EmotionSadness:  {"sad", "grief", "mourning", "tragedy", "loss"},
			types.EmotionSurprise: {"surprise", "shocking", "unexpected", "sudden"},
			types.EmotionJoy:      {"happy", "joy", "celebrate", "victory", "win"},
		},
	}
}

func (c *lexiconClassifier) Classify(ctx context.Context, text string) (classifier.RawResult, error) {
	lowered := strings.ToLower(text)

	best := types.EmotionNeutral
	bestHits := 0
	for _, emotion := range types.AllEmotions {
		hits := 0
		for _, word := range c.lexicon[emotion] {
			hits += strings.Count(lowered, word)
		}
		if hits > bestHits {
			best = emotion
			bestHits = hits
		}
	}

	confidence := 0.35
	if bestHits > 0 {
		confidence = 0.5 + 0.1*float64(min(bestHits, 4))
	}

	var detected []string
	for _, country := range countries.All() {
		if strings.Contains(lowered, country) {
			detected = append(detected, country)
		}
	}

	return classifier.RawResult{
		Label:             string(best),
		Confidence:        confidence,
		IsCollective:      len(detected) > 1,
		DetectedCountries: detected,
	}, nil
}
