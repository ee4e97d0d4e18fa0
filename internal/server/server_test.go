package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodatlas/internal/aggregate"
	"moodatlas/internal/scheduler"
	"moodatlas/internal/types"
)

func newTestServer(t *testing.T) (*Server, *aggregate.Engine) {
	t.Helper()

	engine := aggregate.New(aggregate.Config{}, nil, nil, nil)
	sched := scheduler.New(scheduler.Config{})
	sched.Track("united states")

	return New(Config{Port: "0", CacheTTL: time.Minute}, engine, sched), engine
}

func TestHandleCountriesListsAggregates(t *testing.T) {
	srv, engine := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, engine.Apply(ctx, types.Classification{
		PostID: "p1", Country: "united states", Emotion: types.EmotionJoy, Confidence: 0.9,
	}))
	require.NoError(t, engine.Apply(ctx, types.Classification{
		PostID: "p2", Country: "japan", Emotion: types.EmotionFear, Confidence: 0.7,
	}))

	rec := httptest.NewRecorder()
	srv.handleCountries(rec, httptest.NewRequest(http.MethodGet, "/countries", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "japan", out[0]["country"])
	assert.Equal(t, "Japan", out[0]["display_name"])
	assert.Equal(t, "united states", out[1]["country"])
}

func TestHandleCountryDetail(t *testing.T) {
	srv, engine := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, engine.Apply(ctx, types.Classification{
		PostID: "p1", Country: "united states", Emotion: types.EmotionJoy, Confidence: 0.9,
	}))

	rec := httptest.NewRecorder()
	srv.handleCountry(rec, httptest.NewRequest(http.MethodGet, "/country/United%20States", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var agg aggregate.CountryAggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, "united states", agg.Country)
	assert.Equal(t, 1, agg.TotalPosts)
	assert.Equal(t, types.EmotionJoy, agg.DominantEmotion)
}

func TestHandleCountryNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleCountry(rec, httptest.NewRequest(http.MethodGet, "/country/atlantis", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleCountry(rec, httptest.NewRequest(http.MethodGet, "/country/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSchedulerStats(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleSchedulerStats(rec, httptest.NewRequest(http.MethodGet, "/scheduler/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var stats scheduler.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Countries)
}
