package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmotion(t *testing.T) {
	e, err := ParseEmotion("joy")
	require.NoError(t, err)
	assert.Equal(t, EmotionJoy, e)

	_, err = ParseEmotion("Joy")
	assert.Error(t, err, "labels are case-sensitive canonical strings")

	_, err = ParseEmotion("nostalgia")
	assert.Error(t, err)
}

func TestStageOnlyMovesForward(t *testing.T) {
	post := NewPost("p1", "japan", "title", "text", "", time.Now())
	assert.Equal(t, StageFetched, post.Stage())

	require.NoError(t, post.AdvanceTo(StageExtracting))
	require.NoError(t, post.AdvanceTo(StageExtracted))

	err := post.AdvanceTo(StageFetched)
	assert.Error(t, err, "moving backwards is rejected")
	assert.Equal(t, StageExtracted, post.Stage())

	// re-entering the current stage is how retries work
	assert.NoError(t, post.AdvanceTo(StageExtracted))
}

func TestDeadLetterIsTerminal(t *testing.T) {
	post := NewPost("p1", "japan", "title", "text", "", time.Now())
	post.MarkDeadLettered()

	assert.True(t, post.Stage().Terminal())
	assert.Error(t, post.AdvanceTo(StageClassifying))
}

func TestErrorPredicates(t *testing.T) {
	busErr := NewBusUnavailableError("post.fetched", "queue full")
	assert.True(t, IsBusUnavailable(busErr))
	assert.False(t, IsBusUnavailable(errors.New("other")))

	stale := NewStaleLeaseError("japan", "tok")
	assert.True(t, IsStaleLease(stale))

	conflict := NewStageConflictError("p1", "classified", "classified")
	assert.True(t, IsStageConflict(conflict))

	cause := errors.New("boom")
	failure := NewStageFailureError("p1", "classify", 2, cause)
	assert.True(t, IsStageFailure(failure))
	assert.ErrorIs(t, failure, cause)

	assert.True(t, IsAggregateInconsistency(NewAggregateInconsistencyError("japan", "sum mismatch")))
}

func TestStageStrings(t *testing.T) {
	assert.Equal(t, "fetched", StageFetched.String())
	assert.Equal(t, "extraction_skipped", StageExtractionSkipped.String())
	assert.Equal(t, "dead_lettered", StageDeadLettered.String())
	assert.True(t, StageAggregated.Terminal())
	assert.False(t, StageClassifying.Terminal())
}
