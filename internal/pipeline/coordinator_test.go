package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodatlas/internal/aggregate"
	"moodatlas/internal/bus"
	"moodatlas/internal/classifier"
	"moodatlas/internal/types"
)

type stubExtractor struct {
	calls atomic.Int64
}

func (e *stubExtractor) Extract(ctx context.Context, post *types.Post) (string, types.ExtractionStatus, error) {
	e.calls.Add(1)
	return post.Title + "\n" + post.Text, types.ExtractionOK, nil
}

type stubClassifier struct {
	calls atomic.Int64
	fail  bool
}

func (c *stubClassifier) Classify(ctx context.Context, text string) (classifier.RawResult, error) {
	c.calls.Add(1)
	if c.fail {
		return classifier.RawResult{}, errors.New("model endpoint unreachable")
	}
	return classifier.RawResult{Label: "joy", Confidence: 0.9}, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestCoordinator(t *testing.T, cls classifier.Classifier, cfg Config) (*Coordinator, *bus.Bus, *aggregate.Engine) {
	t.Helper()

	b := bus.New(bus.Config{QueueSize: 64, PublishTimeout: time.Second})
	t.Cleanup(b.Close)

	engine := aggregate.New(aggregate.Config{}, b, nil, nil)
	coordinator := New(cfg, b, nil, nil, &stubExtractor{}, cls, engine)
	coordinator.Start()
	return coordinator, b, engine
}

func testPost(id string) *types.Post {
	return types.NewPost(id, "united states", "headline", "body text", "https://example.com/p", time.Now().UTC())
}

func TestPostFlowsThroughAllStages(t *testing.T) {
	coordinator, _, engine := newTestCoordinator(t, &stubClassifier{}, Config{})

	require.NoError(t, coordinator.SubmitPost(context.Background(), testPost("p1")))

	waitFor(t, func() bool {
		agg, ok := engine.GetCountryAggregate("united states")
		return ok && agg.TotalPosts == 1
	}, "post must reach the aggregate")

	agg, _ := engine.GetCountryAggregate("united states")
	assert.Equal(t, types.EmotionJoy, agg.DominantEmotion)
	assert.Equal(t, 1, agg.Distribution[types.EmotionJoy])
}

func TestResubmitSamePostIsNoop(t *testing.T) {
	coordinator, _, engine := newTestCoordinator(t, &stubClassifier{}, Config{})
	ctx := context.Background()

	post := testPost("p1")
	require.NoError(t, coordinator.SubmitPost(ctx, post))
	require.NoError(t, coordinator.SubmitPost(ctx, post))

	waitFor(t, func() bool {
		agg, ok := engine.GetCountryAggregate("united states")
		return ok && agg.TotalPosts == 1
	}, "post must be aggregated once")

	// give any duplicate a chance to surface
	time.Sleep(50 * time.Millisecond)
	agg, _ := engine.GetCountryAggregate("united states")
	assert.Equal(t, 1, agg.TotalPosts)
}

func TestFailingStageDeadLettersAfterMaxAttempts(t *testing.T) {
	cls := &stubClassifier{fail: true}
	coordinator, b, _ := newTestCoordinator(t, cls, Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	})

	var mu sync.Mutex
	var deadLetters []types.PostDeadLetteredEvent
	b.Subscribe(types.TopicPostDeadLettered, "dlq-watch", 1, func(ctx context.Context, env bus.Envelope) error {
		mu.Lock()
		deadLetters = append(deadLetters, env.Payload.(types.PostDeadLetteredEvent))
		mu.Unlock()
		return nil
	})

	require.NoError(t, coordinator.SubmitPost(context.Background(), testPost("p1")))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deadLetters) == 1
	}, "post must be dead-lettered")

	mu.Lock()
	event := deadLetters[0]
	mu.Unlock()

	assert.Equal(t, "p1", event.PostID)
	assert.Equal(t, "classify", event.FailedStage)
	assert.Equal(t, 3, event.AttemptCount)

	// no further retries fire after the dead-letter
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(3), cls.calls.Load())
	mu.Lock()
	assert.Len(t, deadLetters, 1)
	mu.Unlock()
}

func TestDetectedCountriesAreMirrored(t *testing.T) {
	cls := &mentionClassifier{}
	coordinator, _, engine := newTestCoordinator(t, cls, Config{})

	require.NoError(t, coordinator.SubmitPost(context.Background(), testPost("p1")))

	waitFor(t, func() bool {
		_, ok := engine.GetCountryAggregate("japan")
		return ok
	}, "mentioned country must receive a mirrored update")

	home, ok := engine.GetCountryAggregate("united states")
	require.True(t, ok)
	assert.Equal(t, 1, home.TotalPosts)
}

type mentionClassifier struct{}

func (c *mentionClassifier) Classify(ctx context.Context, text string) (classifier.RawResult, error) {
	return classifier.RawResult{
		Label:             "anger",
		Confidence:        0.8,
		IsCollective:      true,
		DetectedCountries: []string{"japan"},
	}, nil
}

func TestInvalidLabelRetriesThenDeadLetters(t *testing.T) {
	coordinator, b, _ := newTestCoordinator(t, &badLabelClassifier{}, Config{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
	})

	var count atomic.Int64
	b.Subscribe(types.TopicPostDeadLettered, "dlq-watch", 1, func(ctx context.Context, env bus.Envelope) error {
		count.Add(1)
		return nil
	})

	require.NoError(t, coordinator.SubmitPost(context.Background(), testPost("p1")))
	waitFor(t, func() bool { return count.Load() == 1 },
		"a label outside the closed emotion set must dead-letter the post")
}

type badLabelClassifier struct{}

func (c *badLabelClassifier) Classify(ctx context.Context, text string) (classifier.RawResult, error) {
	return classifier.RawResult{Label: "ecstatic", Confidence: 0.99}, nil
}
