package pipeline

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"moodatlas/internal/aggregate"
	"moodatlas/internal/bus"
	"moodatlas/internal/classifier"
	"moodatlas/internal/metrics"
	"moodatlas/internal/storage"
	"moodatlas/internal/types"
)

// Extractor resolves a post's full text (following its URL when the body
// is thin). External collaborator; implementations live outside this
// module.
type Extractor interface {
	Extract(ctx context.Context, post *types.Post) (string, types.ExtractionStatus, error)
}

type Config struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	HandlerTimeout time.Duration
	Workers        int
}

// Coordinator owns the stage graph. Delivery is at-least-once; effects
// are exactly-once because every handler checks the post's stage record
// before applying anything.
type Coordinator struct {
	config     Config
	bus        *bus.Bus
	posts      storage.PostStore
	classLog   storage.ClassificationStore
	extractor  Extractor
	classifier classifier.Classifier
	engine     *aggregate.Engine

	mu       sync.RWMutex
	registry map[string]*types.Post
}

func New(config Config, b *bus.Bus, posts storage.PostStore, classLog storage.ClassificationStore,
	extractor Extractor, cls classifier.Classifier, engine *aggregate.Engine) *Coordinator {

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = 500 * time.Millisecond
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}

	return &Coordinator{
		config:     config,
		bus:        b,
		posts:      posts,
		classLog:   classLog,
		extractor:  extractor,
		classifier: cls,
		engine:     engine,
		registry:   make(map[string]*types.Post),
	}
}

// Start registers the stage consumers. Each stage runs its own consumer
// group so every post passes through every stage.
func (c *Coordinator) Start() {
	c.bus.Subscribe(types.TopicPostFetched, "extract", c.config.Workers,
		c.stageHandler("extract", c.handleFetched))
	c.bus.Subscribe(types.TopicPostExtracted, "classify", c.config.Workers,
		c.stageHandler("classify", c.handleExtracted))
	c.bus.Subscribe(types.TopicPostClassified, "aggregate", c.config.Workers,
		c.stageHandler("aggregate", c.handleClassified))
}

// SubmitPost registers a freshly fetched post and announces it. A
// saturated bus is reported to the caller; fetch-origin events may be
// dropped and picked up on the next poll, so no retry happens here.
func (c *Coordinator) SubmitPost(ctx context.Context, post *types.Post) error {
	c.mu.Lock()
	if _, exists := c.registry[post.ID]; exists {
		c.mu.Unlock()
		return nil
	}
	c.registry[post.ID] = post
	c.mu.Unlock()

	if c.posts != nil {
		if err := c.posts.Store(ctx, post); err != nil {
			return fmt.Errorf("failed to persist post %s: %w", post.ID, err)
		}
	}

	return c.bus.Publish(ctx, types.TopicPostFetched, types.PostFetchedEvent{
		PostID:          post.ID,
		Country:         post.Country,
		Title:           post.Title,
		Text:            post.Text,
		URL:             post.URL,
		SourceCreatedAt: post.SourceCreatedAt,
	})
}

func (c *Coordinator) lookup(ctx context.Context, postID string) (*types.Post, error) {
	c.mu.RLock()
	post, ok := c.registry[postID]
	c.mu.RUnlock()
	if ok {
		return post, nil
	}

	// Restart path: rebuild the in-memory record from the durable log.
	if c.posts != nil {
		stored, err := c.posts.Get(ctx, postID)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			c.mu.Lock()
			if existing, ok := c.registry[postID]; ok {
				stored = existing
			} else {
				c.registry[postID] = stored
			}
			c.mu.Unlock()
			return stored, nil
		}
	}

	return nil, fmt.Errorf("unknown post %s", postID)
}

// advance moves a post to the given stage in memory and in the durable
// record. A no-op when the post is already at or past it.
func (c *Coordinator) advance(ctx context.Context, post *types.Post, target types.Stage) error {
	if post.Stage() >= target {
		return nil
	}
	if err := post.AdvanceTo(target); err != nil {
		return err
	}
	if c.posts != nil {
		if err := c.posts.UpdateStage(ctx, post.ID, target); err != nil {
			return err
		}
	}
	return nil
}

// stageHandler wraps a stage function with the shared policy: handler
// timeout, idempotency no-ops, exponential-backoff redelivery and
// dead-lettering at the attempt ceiling. Failures here never propagate
// beyond the one post.
func (c *Coordinator) stageHandler(stage string, fn func(ctx context.Context, env bus.Envelope) error) bus.Handler {
	return func(ctx context.Context, env bus.Envelope) error {
		timer := prometheus.NewTimer(metrics.HandlerDuration.WithLabelValues(stage))
		defer timer.ObserveDuration()

		hctx, cancel := context.WithTimeout(ctx, c.config.HandlerTimeout)
		defer cancel()

		err := fn(hctx, env)
		if err == nil {
			return nil
		}
		if types.IsStageConflict(err) {
			metrics.DuplicateDeliveries.WithLabelValues(stage).Inc()
			return nil
		}

		postID := eventPostID(env.Payload)
		if env.Attempt >= c.config.MaxAttempts {
			c.deadLetter(ctx, postID, stage, err, env.Attempt)
			return nil
		}

		metrics.StageRetries.WithLabelValues(stage).Inc()
		delay := c.backoff(env.Attempt)
		log.Printf("Pipeline: stage %s failed for post %s (attempt %d/%d), retrying in %v: %v",
			stage, postID, env.Attempt, c.config.MaxAttempts, delay, err)

		envCopy := env
		time.AfterFunc(delay, func() {
			if err := c.redeliverWithRetry(context.Background(), envCopy); err != nil {
				log.Printf("Pipeline: failed to requeue post %s for stage %s: %v", postID, stage, err)
			}
		})
		return nil
	}
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt-1))) * c.config.BaseBackoff
}

// redeliverWithRetry keeps trying while the bus reports backpressure.
// Retry-path events must not be dropped; only fetch-origin events may.
func (c *Coordinator) redeliverWithRetry(ctx context.Context, env bus.Envelope) error {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		err := c.bus.Redeliver(ctx, env)
		if err == nil {
			return nil
		}
		if !types.IsBusUnavailable(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("bus stayed unavailable: %w", lastErr)
}

func (c *Coordinator) deadLetter(ctx context.Context, postID, stage string, cause error, attempts int) {
	metrics.DeadLetters.WithLabelValues(stage).Inc()
	log.Printf("Pipeline: dead-lettering post %s after %d attempts at stage %s: %v",
		postID, attempts, stage, cause)

	if post, err := c.lookup(ctx, postID); err == nil {
		post.MarkDeadLettered()
		if c.posts != nil {
			if err := c.posts.UpdateStage(ctx, postID, types.StageDeadLettered); err != nil {
				log.Printf("Pipeline: failed to persist dead-letter for %s: %v", postID, err)
			}
		}
	}

	event := types.PostDeadLetteredEvent{
		PostID:       postID,
		FailedStage:  stage,
		Reason:       cause.Error(),
		AttemptCount: attempts,
	}
	if err := c.bus.Publish(ctx, types.TopicPostDeadLettered, event); err != nil {
		log.Printf("Pipeline: failed to publish dead-letter event for %s: %v", postID, err)
	}
}

func (c *Coordinator) handleFetched(ctx context.Context, env bus.Envelope) error {
	event, ok := env.Payload.(types.PostFetchedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Topic)
	}

	post, err := c.lookup(ctx, event.PostID)
	if err != nil {
		return err
	}

	if post.Stage() >= types.StageExtracted {
		return types.NewStageConflictError(post.ID, post.Stage().String(), types.StageExtracted.String())
	}

	if err := c.advance(ctx, post, types.StageExtracting); err != nil {
		return types.NewStageFailureError(post.ID, "extract", env.Attempt, err)
	}

	text, status, err := c.extractor.Extract(ctx, post)
	if err != nil {
		return types.NewStageFailureError(post.ID, "extract", env.Attempt, err)
	}

	next := types.StageExtracted
	if status == types.ExtractionSkipped {
		next = types.StageExtractionSkipped
		text = post.Text
	}
	if err := c.advance(ctx, post, next); err != nil {
		return types.NewStageFailureError(post.ID, "extract", env.Attempt, err)
	}

	return c.publishWithRetry(ctx, types.TopicPostExtracted, types.PostExtractedEvent{
		PostID:        post.ID,
		ExtractedText: text,
		Status:        status,
	})
}

func (c *Coordinator) handleExtracted(ctx context.Context, env bus.Envelope) error {
	event, ok := env.Payload.(types.PostExtractedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Topic)
	}

	post, err := c.lookup(ctx, event.PostID)
	if err != nil {
		return err
	}

	if post.Stage() >= types.StageClassified {
		return types.NewStageConflictError(post.ID, post.Stage().String(), types.StageClassified.String())
	}

	if err := c.advance(ctx, post, types.StageClassifying); err != nil {
		return types.NewStageFailureError(post.ID, "classify", env.Attempt, err)
	}

	text := event.ExtractedText
	if text == "" {
		text = post.Title + "\n" + post.Text
	}

	raw, err := c.classifier.Classify(ctx, text)
	if err != nil {
		return types.NewStageFailureError(post.ID, "classify", env.Attempt, err)
	}

	classification, err := classifier.Validate(post.ID, post.Country, raw)
	if err != nil {
		return types.NewStageFailureError(post.ID, "classify", env.Attempt, err)
	}

	if c.classLog != nil {
		if err := c.classLog.Store(ctx, classification); err != nil {
			return types.NewStageFailureError(post.ID, "classify", env.Attempt, err)
		}
	}

	if err := c.advance(ctx, post, types.StageClassified); err != nil {
		return types.NewStageFailureError(post.ID, "classify", env.Attempt, err)
	}

	return c.publishWithRetry(ctx, types.TopicPostClassified, types.PostClassifiedEvent{
		PostID:            classification.PostID,
		Country:           classification.Country,
		Emotion:           classification.Emotion,
		Confidence:        classification.Confidence,
		IsCollective:      classification.IsCollective,
		DetectedCountries: classification.DetectedCountries,
	})
}

func (c *Coordinator) handleClassified(ctx context.Context, env bus.Envelope) error {
	event, ok := env.Payload.(types.PostClassifiedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Topic)
	}

	post, err := c.lookup(ctx, event.PostID)
	if err != nil {
		return err
	}

	if post.Stage() >= types.StageAggregated {
		return types.NewStageConflictError(post.ID, post.Stage().String(), types.StageAggregated.String())
	}

	if err := c.advance(ctx, post, types.StageAggregating); err != nil {
		return types.NewStageFailureError(post.ID, "aggregate", env.Attempt, err)
	}

	err = c.engine.Apply(ctx, types.Classification{
		PostID:            event.PostID,
		Country:           event.Country,
		Emotion:           event.Emotion,
		Confidence:        event.Confidence,
		IsCollective:      event.IsCollective,
		DetectedCountries: event.DetectedCountries,
	})
	if err != nil {
		return types.NewStageFailureError(post.ID, "aggregate", env.Attempt, err)
	}

	if err := c.advance(ctx, post, types.StageAggregated); err != nil {
		return types.NewStageFailureError(post.ID, "aggregate", env.Attempt, err)
	}

	c.forget(post.ID)
	return nil
}

// forget drops a terminal post from the in-memory registry; the durable
// record keeps the stage for late duplicate deliveries.
func (c *Coordinator) forget(postID string) {
	c.mu.Lock()
	delete(c.registry, postID)
	c.mu.Unlock()
}

// publishWithRetry is for stage-chain events that must not be lost.
func (c *Coordinator) publishWithRetry(ctx context.Context, topic string, payload any) error {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		err := c.bus.Publish(ctx, topic, payload)
		if err == nil {
			return nil
		}
		if !types.IsBusUnavailable(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("bus stayed unavailable for %s: %w", topic, lastErr)
}

func eventPostID(payload any) string {
	switch event := payload.(type) {
	case types.PostFetchedEvent:
		return event.PostID
	case types.PostExtractedEvent:
		return event.PostID
	case types.PostClassifiedEvent:
		return event.PostID
	default:
		return ""
	}
}
