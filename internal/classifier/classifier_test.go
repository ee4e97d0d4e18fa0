package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodatlas/internal/types"
)

func TestValidateAcceptsKnownLabel(t *testing.T) {
	c, err := Validate("p1", "United States", RawResult{Label: "joy", Confidence: 0.8})
	require.NoError(t, err)

	assert.Equal(t, types.EmotionJoy, c.Emotion)
	assert.Equal(t, "united states", c.Country)
	assert.Equal(t, 0.8, c.Confidence)
}

func TestValidateRejectsUnknownLabel(t *testing.T) {
	_, err := Validate("p1", "japan", RawResult{Label: "melancholy", Confidence: 0.8})
	assert.Error(t, err)
}

func TestValidateClampsConfidence(t *testing.T) {
	c, err := Validate("p1", "japan", RawResult{Label: "fear", Confidence: 1.7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Confidence)

	c, err = Validate("p2", "japan", RawResult{Label: "fear", Confidence: -0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Confidence)
}

func TestValidateFiltersDetectedCountries(t *testing.T) {
	c, err := Validate("p1", "united states", RawResult{
		Label:      "anger",
		Confidence: 0.9,
		DetectedCountries: []string{
			"United States", // the post's own country
			"Japan",
			"atlantis", // not a real country
			"",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"japan"}, c.DetectedCountries)
}
