package classifier

import (
	"context"
	"fmt"

	"moodatlas/internal/countries"
	"moodatlas/internal/types"
)

// RawResult is what an external model returns before validation: a free
// string label and an unclamped score.
type RawResult struct {
	Label             string
	Confidence        float64
	IsCollective      bool
	DetectedCountries []string
}

// Classifier wraps the external ML models. Implementations live outside
// this module; the pipeline only sees this contract.
type Classifier interface {
	Classify(ctx context.Context, text string) (RawResult, error)
}

// Validate converts a raw model response into a typed classification.
// Unknown labels are rejected here so nothing downstream ever sees an
// emotion outside the closed set.
func Validate(postID, country string, raw RawResult) (types.Classification, error) {
	emotion, err := types.ParseEmotion(raw.Label)
	if err != nil {
		return types.Classification{}, fmt.Errorf("classifier returned invalid label for post %s: %w", postID, err)
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	detected := make([]string, 0, len(raw.DetectedCountries))
	for _, name := range raw.DetectedCountries {
		key := countries.Normalize(name)
		if key == "" || key == countries.Normalize(country) {
			continue
		}
		if countries.Known(key) {
			detected = append(detected, key)
		}
	}

	return types.Classification{
		PostID:            postID,
		Country:           countries.Normalize(country),
		Emotion:           emotion,
		Confidence:        confidence,
		IsCollective:      raw.IsCollective,
		DetectedCountries: detected,
	}, nil
}
