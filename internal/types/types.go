package types

import (
	"fmt"
	"sync"
	"time"
)

// Emotion is the closed set of labels the classifier adapter may produce.
type Emotion string

const (
	EmotionAnger    Emotion = "anger"
	EmotionFear     Emotion = "fear"
	EmotionDisgust  Emotion = "disgust"
	EmotionSadness  Emotion = "sadness"
	EmotionSurprise Emotion = "surprise"
	EmotionJoy      Emotion = "joy"
	EmotionNeutral  Emotion = "neutral"
)

var AllEmotions = []Emotion{
	EmotionAnger,
	EmotionFear,
	EmotionDisgust,
	EmotionSadness,
	EmotionSurprise,
	EmotionJoy,
	EmotionNeutral,
}

func ParseEmotion(label string) (Emotion, error) {
	for _, e := range AllEmotions {
		if string(e) == label {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown emotion label: %q", label)
}

// Stage is a post's position in the processing graph. Stages only move
// forward; a retry re-enters the same stage, never an earlier one.
type Stage int

const (
	StageFetched Stage = iota
	StageExtracting
	StageExtracted
	StageExtractionSkipped
	StageClassifying
	StageClassified
	StageAggregating
	StageAggregated
	StageDeadLettered
)

var stageNames = map[Stage]string{
	StageFetched:           "fetched",
	StageExtracting:        "extracting",
	StageExtracted:         "extracted",
	StageExtractionSkipped: "extraction_skipped",
	StageClassifying:       "classifying",
	StageClassified:        "classified",
	StageAggregating:       "aggregating",
	StageAggregated:        "aggregated",
	StageDeadLettered:      "dead_lettered",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) Terminal() bool {
	return s == StageAggregated || s == StageDeadLettered
}

type Post struct {
	ID              string
	Country         string
	Title           string
	Text            string
	URL             string
	SourceCreatedAt time.Time
	FetchedAt       time.Time

	stage Stage
	mu    sync.RWMutex
}

func NewPost(id, country, title, text, url string, sourceCreatedAt time.Time) *Post {
	return &Post{
		ID:              id,
		Country:         country,
		Title:           title,
		Text:            text,
		URL:             url,
		SourceCreatedAt: sourceCreatedAt,
		FetchedAt:       time.Now().UTC(),
		stage:           StageFetched,
	}
}

func (p *Post) Stage() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

// AdvanceTo moves the post forward to target. Moving backwards is rejected
// so duplicate deliveries of an already-applied stage become no-ops.
func (p *Post) AdvanceTo(target Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage == StageDeadLettered {
		return fmt.Errorf("post %s is dead-lettered", p.ID)
	}
	if target < p.stage {
		return fmt.Errorf("post %s: cannot move from %s back to %s", p.ID, p.stage, target)
	}
	p.stage = target
	return nil
}

func (p *Post) MarkDeadLettered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = StageDeadLettered
}

// Classification is the validated output of the classifier adapter for one
// post. Produced once per post, consumed idempotently by the aggregator.
type Classification struct {
	PostID            string
	Country           string
	Emotion           Emotion
	Confidence        float64
	IsCollective      bool
	DetectedCountries []string
}

// Event topics. Payloads are the typed structs below.
const (
	TopicPostFetched      = "post.fetched"
	TopicPostExtracted    = "post.extracted"
	TopicPostClassified   = "post.classified"
	TopicCountryUpdated   = "country.updated"
	TopicPostDeadLettered = "post.dead_lettered"
)

type PostFetchedEvent struct {
	PostID          string
	Country         string
	Title           string
	Text            string
	URL             string
	SourceCreatedAt time.Time
}

type ExtractionStatus string

const (
	ExtractionOK      ExtractionStatus = "ok"
	ExtractionSkipped ExtractionStatus = "skipped"
)

type PostExtractedEvent struct {
	PostID        string
	ExtractedText string
	Status        ExtractionStatus
}

type PostClassifiedEvent struct {
	PostID            string
	Country           string
	Emotion           Emotion
	Confidence        float64
	IsCollective      bool
	DetectedCountries []string
}

type CountryUpdatedEvent struct {
	Country         string
	Distribution    map[Emotion]int
	WeightedScores  map[Emotion]float64
	DominantEmotion Emotion
	Confidence      float64
	PostCount       int
	LastUpdated     time.Time
}

type PostDeadLetteredEvent struct {
	PostID       string
	FailedStage  string
	Reason       string
	AttemptCount int
}
