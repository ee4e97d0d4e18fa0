package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodatlas/internal/scheduler"
	"moodatlas/internal/types"
)

type stubFetcher struct {
	posts []*types.Post
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, country string) ([]*types.Post, error) {
	return f.posts, f.err
}

// fakePostLog serves canned trailing-hour counts per country.
type fakePostLog struct {
	counts map[string]int
}

func (f *fakePostLog) Store(ctx context.Context, post *types.Post) error { return nil }

func (f *fakePostLog) Get(ctx context.Context, id string) (*types.Post, error) { return nil, nil }

func (f *fakePostLog) GetStage(ctx context.Context, id string) (types.Stage, bool, error) {
	return types.StageFetched, false, nil
}

func (f *fakePostLog) UpdateStage(ctx context.Context, id string, stage types.Stage) error {
	return nil
}

func (f *fakePostLog) CountByCountry(ctx context.Context, country string) (int, error) {
	return f.counts[country], nil
}

func (f *fakePostLog) CountFetchedSince(ctx context.Context, country string, since time.Time) (int, error) {
	return f.counts[country], nil
}

func (f *fakePostLog) DeleteOlderThan(ctx context.Context, age time.Duration) error { return nil }

func TestFetchRefreshesActivityFromDurableLog(t *testing.T) {
	now := time.Now().UTC()
	sched := scheduler.New(scheduler.Config{Now: func() time.Time { return now }})
	sched.Track("albania")
	sched.Track("moldova")

	store := &fakePostLog{counts: map[string]int{"albania": 30}}
	pool := NewFetchPool(FetchPoolConfig{}, sched, &stubFetcher{}, nil, store)

	lease, ok := sched.AcquireLease("w1")
	require.True(t, ok)
	require.Equal(t, "albania", lease.Country)

	pool.fetchOne("w1", lease)

	// the fetch cleared albania's staleness boost, but the trailing-hour
	// count from the durable log keeps its activity term ahead of
	// never-fetched moldova
	next, ok := sched.AcquireLease("w1")
	require.True(t, ok)
	assert.Equal(t, "albania", next.Country)
}
