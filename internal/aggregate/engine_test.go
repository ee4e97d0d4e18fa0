package aggregate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodatlas/internal/storage"
	"moodatlas/internal/types"
)

type fakeClassificationLog struct {
	mu      sync.Mutex
	entries []types.Classification
}

func (f *fakeClassificationLog) Store(ctx context.Context, c types.Classification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, c)
	return nil
}

func (f *fakeClassificationLog) ListByCountry(ctx context.Context, country string) ([]types.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Classification
	for _, c := range f.entries {
		if c.Country == country {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeAggregateStore struct {
	mu        sync.Mutex
	snapshots map[string]storage.AggregateSnapshot
}

func (f *fakeAggregateStore) Upsert(ctx context.Context, snapshot storage.AggregateSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshots == nil {
		f.snapshots = make(map[string]storage.AggregateSnapshot)
	}
	f.snapshots[snapshot.Country] = snapshot
	return nil
}

func (f *fakeAggregateStore) Get(ctx context.Context, country string) (*storage.AggregateSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snapshot, ok := f.snapshots[country]; ok {
		return &snapshot, nil
	}
	return nil, nil
}

func (f *fakeAggregateStore) List(ctx context.Context) ([]storage.AggregateSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.AggregateSnapshot, 0, len(f.snapshots))
	for _, snapshot := range f.snapshots {
		out = append(out, snapshot)
	}
	return out, nil
}

func classification(postID string, emotion types.Emotion, confidence float64) types.Classification {
	return types.Classification{
		PostID:     postID,
		Country:    "united states",
		Emotion:    emotion,
		Confidence: confidence,
	}
}

func TestEngineApplyAccumulates(t *testing.T) {
	engine := New(Config{}, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, engine.Apply(ctx, classification("p1", types.EmotionJoy, 0.9)))
	require.NoError(t, engine.Apply(ctx, classification("p2", types.EmotionJoy, 0.8)))
	require.NoError(t, engine.Apply(ctx, classification("p3", types.EmotionFear, 0.7)))

	agg, ok := engine.GetCountryAggregate("united states")
	require.True(t, ok)

	assert.Equal(t, 3, agg.TotalPosts)
	assert.Equal(t, 2, agg.Distribution[types.EmotionJoy])
	assert.Equal(t, 1, agg.Distribution[types.EmotionFear])
	assert.InDelta(t, 1.7, agg.WeightedScores[types.EmotionJoy], 0.0001)
	assert.Equal(t, types.EmotionJoy, agg.DominantEmotion)
}

func TestEngineDuplicateDeliveryIsNoop(t *testing.T) {
	engine := New(Config{}, nil, nil, nil)
	ctx := context.Background()

	c := classification("p1", types.EmotionSadness, 0.75)
	require.NoError(t, engine.Apply(ctx, c))
	before, _ := engine.GetCountryAggregate("united states")

	// at-least-once delivery means the same event can arrive again
	require.NoError(t, engine.Apply(ctx, c))
	after, ok := engine.GetCountryAggregate("united states")

	require.True(t, ok)
	assert.Equal(t, 1, after.TotalPosts)
	assert.Equal(t, before.Distribution, after.Distribution)
	assert.Equal(t, before.WeightedScores, after.WeightedScores)
}

func TestEngineDistributionSumMatchesTotal(t *testing.T) {
	engine := New(Config{}, nil, nil, nil)
	ctx := context.Background()

	emotions := []types.Emotion{
		types.EmotionJoy, types.EmotionFear, types.EmotionJoy,
		types.EmotionAnger, types.EmotionSadness, types.EmotionJoy,
	}
	for i, emotion := range emotions {
		c := classification(string(rune('a'+i)), emotion, 0.6)
		require.NoError(t, engine.Apply(ctx, c))
	}

	agg, ok := engine.GetCountryAggregate("united states")
	require.True(t, ok)

	sum := 0
	for _, count := range agg.Distribution {
		sum += count
	}
	assert.Equal(t, agg.TotalPosts, sum)
	assert.Equal(t, len(emotions), sum)
}

func TestEngineMirrorsDetectedCountries(t *testing.T) {
	engine := New(Config{}, nil, nil, nil)
	ctx := context.Background()

	c := classification("p1", types.EmotionAnger, 0.9)
	c.DetectedCountries = []string{"japan", "germany"}
	require.NoError(t, engine.Apply(ctx, c))

	for _, country := range []string{"united states", "japan", "germany"} {
		agg, ok := engine.GetCountryAggregate(country)
		require.True(t, ok, country)
		assert.Equal(t, 1, agg.TotalPosts, country)
		assert.Equal(t, types.EmotionAnger, agg.DominantEmotion, country)
	}
}

func TestEngineForceRecomputeRebuildsFromLog(t *testing.T) {
	log := &fakeClassificationLog{}
	engine := New(Config{}, nil, log, nil)
	ctx := context.Background()

	for _, c := range []types.Classification{
		classification("p1", types.EmotionJoy, 0.9),
		classification("p2", types.EmotionJoy, 0.8),
		classification("p3", types.EmotionFear, 0.6),
	} {
		require.NoError(t, log.Store(ctx, c))
	}

	require.NoError(t, engine.ForceRecompute(ctx, "united states"))

	agg, ok := engine.GetCountryAggregate("united states")
	require.True(t, ok)
	assert.Equal(t, 3, agg.TotalPosts)
	assert.Equal(t, types.EmotionJoy, agg.DominantEmotion)

	// recompute replaces, never stacks on top of, the previous state
	require.NoError(t, engine.ForceRecompute(ctx, "united states"))
	agg, _ = engine.GetCountryAggregate("united states")
	assert.Equal(t, 3, agg.TotalPosts)
}

func TestEngineRehydratesAfterRestart(t *testing.T) {
	clsLog := &fakeClassificationLog{}
	snaps := &fakeAggregateStore{}
	ctx := context.Background()

	first := New(Config{}, nil, clsLog, snaps)
	for _, c := range []types.Classification{
		classification("p1", types.EmotionJoy, 0.9),
		classification("p2", types.EmotionFear, 0.6),
	} {
		require.NoError(t, clsLog.Store(ctx, c))
		require.NoError(t, first.Apply(ctx, c))
	}

	// a fresh engine over the same stores models a process restart
	second := New(Config{}, nil, clsLog, snaps)
	_, ok := second.GetCountryAggregate("united states")
	require.False(t, ok)

	require.NoError(t, second.Rehydrate(ctx))

	agg, ok := second.GetCountryAggregate("united states")
	require.True(t, ok)
	assert.Equal(t, 2, agg.TotalPosts)
	assert.Equal(t, 1, agg.Distribution[types.EmotionJoy])
	assert.Equal(t, 1, agg.Distribution[types.EmotionFear])
	require.Len(t, second.ListAggregates(), 1)
}

func TestEngineRehydrateRestoresMirrors(t *testing.T) {
	clsLog := &fakeClassificationLog{}
	snaps := &fakeAggregateStore{}
	ctx := context.Background()

	c := classification("p1", types.EmotionAnger, 0.9)
	c.DetectedCountries = []string{"japan"}

	first := New(Config{}, nil, clsLog, snaps)
	require.NoError(t, clsLog.Store(ctx, c))
	require.NoError(t, first.Apply(ctx, c))

	second := New(Config{}, nil, clsLog, snaps)
	require.NoError(t, second.Rehydrate(ctx))

	// japan's aggregate held only a mirror entry; the mirror is replayed
	// from the source country's log rows
	agg, ok := second.GetCountryAggregate("japan")
	require.True(t, ok)
	assert.Equal(t, 1, agg.TotalPosts)
	assert.Equal(t, types.EmotionAnger, agg.DominantEmotion)
}

func TestEngineListSkipsEmptyCountries(t *testing.T) {
	engine := New(Config{}, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, engine.Apply(ctx, classification("p1", types.EmotionJoy, 0.9)))

	_, ok := engine.GetCountryAggregate("france")
	assert.False(t, ok)

	list := engine.ListAggregates()
	require.Len(t, list, 1)
	assert.Equal(t, "united states", list[0].Country)
}
