package aggregate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"moodatlas/internal/countries"
	"moodatlas/internal/metrics"
	"moodatlas/internal/storage"
	"moodatlas/internal/types"
)

type Config struct {
	MinIntensitySupport int
	RetentionWindow     time.Duration
}

// Publisher is the slice of the bus the engine needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// CountryAggregate is the exported snapshot of one country's state.
type CountryAggregate struct {
	Country         string                    `json:"country"`
	Distribution    map[types.Emotion]int     `json:"distribution"`
	WeightedScores  map[types.Emotion]float64 `json:"weighted_scores"`
	DominantEmotion types.Emotion             `json:"dominant_emotion"`
	Confidence      float64                   `json:"confidence"`
	TotalPosts      int                       `json:"post_count"`
	AlgorithmVotes  Votes                     `json:"algorithm_votes"`
	LastUpdated     time.Time                 `json:"last_updated"`
}

type trackedEntry struct {
	entry
	recordedAt time.Time
}

// countryAggregate holds one country's live state. Its mutex is the
// single-writer discipline: steps 1-5 of an update happen atomically for
// that country while other countries proceed in parallel.
type countryAggregate struct {
	mu           sync.Mutex
	country      string
	entries      []trackedEntry
	processed    map[string]struct{}
	distribution map[types.Emotion]int
	weighted     map[types.Emotion]float64
	consensus    Consensus
	lastUpdated  time.Time
}

// Engine folds classification events into per-country consensus state.
type Engine struct {
	config          Config
	publisher       Publisher
	classifications storage.ClassificationStore
	aggregates      storage.AggregateStore

	mu        sync.RWMutex
	countries map[string]*countryAggregate
}

func New(config Config, publisher Publisher, classifications storage.ClassificationStore, aggregates storage.AggregateStore) *Engine {
	if config.MinIntensitySupport <= 0 {
		config.MinIntensitySupport = 2
	}
	if config.RetentionWindow <= 0 {
		config.RetentionWindow = 28 * 24 * time.Hour
	}

	return &Engine{
		config:          config,
		publisher:       publisher,
		classifications: classifications,
		aggregates:      aggregates,
		countries:       make(map[string]*countryAggregate),
	}
}

func (e *Engine) aggregateFor(country string) *countryAggregate {
	key := countries.Normalize(country)

	e.mu.RLock()
	agg, ok := e.countries[key]
	e.mu.RUnlock()
	if ok {
		return agg
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if agg, ok = e.countries[key]; ok {
		return agg
	}
	agg = &countryAggregate{
		country:      key,
		processed:    make(map[string]struct{}),
		distribution: make(map[types.Emotion]int),
		weighted:     make(map[types.Emotion]float64),
	}
	e.countries[key] = agg
	return agg
}

// Apply folds one classification into its country's aggregate. Duplicate
// deliveries of the same post are no-ops, so at-least-once delivery
// upstream is safe. Cross-country mentions are mirrored into each
// detected country under a derived post id.
func (e *Engine) Apply(ctx context.Context, c types.Classification) error {
	if err := e.applyOne(ctx, c.Country, c.PostID, c.Emotion, c.Confidence); err != nil {
		return err
	}

	for _, mentioned := range c.DetectedCountries {
		mirrorID := fmt.Sprintf("%s@%s", c.PostID, mentioned)
		if err := e.applyOne(ctx, mentioned, mirrorID, c.Emotion, c.Confidence); err != nil {
			log.Printf("Aggregator: mirror update for %s failed: %v", mentioned, err)
		}
	}

	return nil
}

func (e *Engine) applyOne(ctx context.Context, country, postID string, emotion types.Emotion, confidence float64) error {
	agg := e.aggregateFor(country)
	inconsistent := false

	err := func() error {
		agg.mu.Lock()
		defer agg.mu.Unlock()

		if _, seen := agg.processed[postID]; seen {
			return nil
		}

		agg.pruneLocked(time.Now(), e.config.RetentionWindow)

		agg.processed[postID] = struct{}{}
		agg.entries = append(agg.entries, trackedEntry{
			entry:      entry{postID: postID, emotion: emotion, confidence: confidence},
			recordedAt: time.Now().UTC(),
		})
		agg.distribution[emotion]++
		agg.weighted[emotion] += confidence

		if err := agg.checkInvariantLocked(); err != nil {
			inconsistent = true
			return err
		}

		agg.recomputeLocked(e.config.MinIntensitySupport)
		metrics.AggregateUpdates.Inc()

		return e.publishSnapshotLocked(ctx, agg)
	}()

	if inconsistent {
		log.Printf("Aggregator: %v, recomputing %s from classification log", err, agg.country)
		return e.ForceRecompute(ctx, country)
	}
	return err
}

// pruneLocked evicts entries past the retention window so the dedupe set
// and distribution stay bounded. Caller holds agg.mu.
func (agg *countryAggregate) pruneLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := agg.entries[:0]
	for _, te := range agg.entries {
		if te.recordedAt.Before(cutoff) {
			agg.distribution[te.emotion]--
			agg.weighted[te.emotion] -= te.confidence
			if agg.distribution[te.emotion] <= 0 {
				delete(agg.distribution, te.emotion)
				delete(agg.weighted, te.emotion)
			}
			delete(agg.processed, te.postID)
			continue
		}
		kept = append(kept, te)
	}
	agg.entries = kept
}

func (agg *countryAggregate) checkInvariantLocked() error {
	total := 0
	for _, count := range agg.distribution {
		total += count
	}
	if total != len(agg.entries) || total != len(agg.processed) {
		return types.NewAggregateInconsistencyError(agg.country,
			fmt.Sprintf("distribution sum %d, entries %d, processed %d",
				total, len(agg.entries), len(agg.processed)))
	}
	return nil
}

func (agg *countryAggregate) recomputeLocked(minSupport int) {
	plain := make([]entry, len(agg.entries))
	for i, te := range agg.entries {
		plain[i] = te.entry
	}
	agg.consensus = computeConsensus(plain, minSupport)
	agg.lastUpdated = time.Now().UTC()
}

func (agg *countryAggregate) snapshotLocked() CountryAggregate {
	distribution := make(map[types.Emotion]int, len(agg.distribution))
	for emotion, count := range agg.distribution {
		distribution[emotion] = count
	}
	weighted := make(map[types.Emotion]float64, len(agg.weighted))
	for emotion, sum := range agg.weighted {
		weighted[emotion] = sum
	}

	return CountryAggregate{
		Country:         agg.country,
		Distribution:    distribution,
		WeightedScores:  weighted,
		DominantEmotion: agg.consensus.Dominant,
		Confidence:      agg.consensus.Confidence,
		TotalPosts:      len(agg.entries),
		AlgorithmVotes:  agg.consensus.Votes,
		LastUpdated:     agg.lastUpdated,
	}
}

func (e *Engine) publishSnapshotLocked(ctx context.Context, agg *countryAggregate) error {
	snapshot := agg.snapshotLocked()

	if e.aggregates != nil {
		err := e.aggregates.Upsert(ctx, storage.AggregateSnapshot{
			Country:         snapshot.Country,
			Distribution:    snapshot.Distribution,
			WeightedScores:  snapshot.WeightedScores,
			DominantEmotion: snapshot.DominantEmotion,
			Confidence:      snapshot.Confidence,
			TotalPosts:      snapshot.TotalPosts,
			LastUpdated:     snapshot.LastUpdated,
		})
		if err != nil {
			log.Printf("Aggregator: failed to persist snapshot for %s: %v", snapshot.Country, err)
		}
	}

	if e.publisher == nil {
		return nil
	}

	event := types.CountryUpdatedEvent{
		Country:         snapshot.Country,
		Distribution:    snapshot.Distribution,
		WeightedScores:  snapshot.WeightedScores,
		DominantEmotion: snapshot.DominantEmotion,
		Confidence:      snapshot.Confidence,
		PostCount:       snapshot.TotalPosts,
		LastUpdated:     snapshot.LastUpdated,
	}
	if err := e.publisher.Publish(ctx, types.TopicCountryUpdated, event); err != nil {
		// country.updated is a read-model notification; the durable state
		// is already persisted, so a saturated bus only costs freshness.
		log.Printf("Aggregator: failed to publish update for %s: %v", snapshot.Country, err)
	}

	return nil
}

// GetCountryAggregate returns a copy of the country's current state.
func (e *Engine) GetCountryAggregate(country string) (CountryAggregate, bool) {
	key := countries.Normalize(country)

	e.mu.RLock()
	agg, ok := e.countries[key]
	e.mu.RUnlock()
	if !ok {
		return CountryAggregate{}, false
	}

	agg.mu.Lock()
	defer agg.mu.Unlock()
	return agg.snapshotLocked(), len(agg.entries) > 0
}

// ListAggregates snapshots every country with at least one processed
// classification.
func (e *Engine) ListAggregates() []CountryAggregate {
	e.mu.RLock()
	aggs := make([]*countryAggregate, 0, len(e.countries))
	for _, agg := range e.countries {
		aggs = append(aggs, agg)
	}
	e.mu.RUnlock()

	out := make([]CountryAggregate, 0, len(aggs))
	for _, agg := range aggs {
		agg.mu.Lock()
		if len(agg.entries) > 0 {
			out = append(out, agg.snapshotLocked())
		}
		agg.mu.Unlock()
	}
	return out
}

// Rehydrate rebuilds in-memory state for every country with a persisted
// snapshot, recomputing each from the classification log. Runs once at
// startup; without it a restarted process would serve an empty read
// model even though the durable stores are fully populated, and the
// data could not return through refetching because re-fetched posts
// short-circuit on their durable stage record.
func (e *Engine) Rehydrate(ctx context.Context) error {
	if e.aggregates == nil || e.classifications == nil {
		return nil
	}

	snapshots, err := e.aggregates.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted aggregates: %w", err)
	}

	var logged []types.Classification
	restored := 0
	for _, snapshot := range snapshots {
		if err := e.ForceRecompute(ctx, snapshot.Country); err != nil {
			log.Printf("Aggregator: rehydrating %s failed: %v", snapshot.Country, err)
			continue
		}
		restored++

		byCountry, err := e.classifications.ListByCountry(ctx, countries.Normalize(snapshot.Country))
		if err != nil {
			log.Printf("Aggregator: reading log for %s failed: %v", snapshot.Country, err)
			continue
		}
		logged = append(logged, byCountry...)
	}

	// Mirror entries live only in the source country's log rows, so they
	// are replayed after every base aggregate has been reset. applyOne
	// dedupes on the derived mirror id.
	for _, c := range logged {
		for _, mentioned := range c.DetectedCountries {
			mirrorID := fmt.Sprintf("%s@%s", c.PostID, mentioned)
			if err := e.applyOne(ctx, mentioned, mirrorID, c.Emotion, c.Confidence); err != nil {
				log.Printf("Aggregator: rehydrating mirror for %s failed: %v", mentioned, err)
			}
		}
	}

	if restored > 0 {
		log.Printf("Aggregator: rehydrated %d countries from storage", restored)
	}
	return nil
}

// ForceRecompute rebuilds a country's aggregate from the durable
// classification log, discarding in-memory state. Used on invariant
// violations, at startup rehydration, and exposed to operators.
func (e *Engine) ForceRecompute(ctx context.Context, country string) error {
	if e.classifications == nil {
		return fmt.Errorf("no classification log configured for recompute")
	}

	key := countries.Normalize(country)
	logged, err := e.classifications.ListByCountry(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read classification log for %s: %w", key, err)
	}

	agg := e.aggregateFor(key)
	agg.mu.Lock()
	defer agg.mu.Unlock()

	agg.entries = nil
	agg.processed = make(map[string]struct{})
	agg.distribution = make(map[types.Emotion]int)
	agg.weighted = make(map[types.Emotion]float64)

	now := time.Now().UTC()
	for _, c := range logged {
		if _, seen := agg.processed[c.PostID]; seen {
			continue
		}
		agg.processed[c.PostID] = struct{}{}
		agg.entries = append(agg.entries, trackedEntry{
			entry:      entry{postID: c.PostID, emotion: c.Emotion, confidence: c.Confidence},
			recordedAt: now,
		})
		agg.distribution[c.Emotion]++
		agg.weighted[c.Emotion] += c.Confidence
	}

	agg.recomputeLocked(e.config.MinIntensitySupport)
	metrics.AggregateRecomputes.Inc()

	return e.publishSnapshotLocked(ctx, agg)
}
