package storage

import (
	"context"
	"database/sql"
	"time"

	"moodatlas/internal/types"
)

type StorageInterface interface {
	GetConnection() *sql.DB
	Posts() PostStore
	Classifications() ClassificationStore
	Aggregates() AggregateStore
	Close(ctx context.Context) error
}

// PostStore is the durable post log. Stage updates are written through so
// the idempotency record survives restarts.
type PostStore interface {
	Store(ctx context.Context, post *types.Post) error
	Get(ctx context.Context, id string) (*types.Post, error)
	GetStage(ctx context.Context, id string) (types.Stage, bool, error)
	UpdateStage(ctx context.Context, id string, stage types.Stage) error
	CountByCountry(ctx context.Context, country string) (int, error)
	CountFetchedSince(ctx context.Context, country string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) error
}

// ClassificationStore is the durable classification log the aggregator
// recomputes from when its in-memory state goes inconsistent.
type ClassificationStore interface {
	Store(ctx context.Context, c types.Classification) error
	ListByCountry(ctx context.Context, country string) ([]types.Classification, error)
}

// AggregateSnapshot is the persisted read model row for one country.
type AggregateSnapshot struct {
	Country         string
	Distribution    map[types.Emotion]int
	WeightedScores  map[types.Emotion]float64
	DominantEmotion types.Emotion
	Confidence      float64
	TotalPosts      int
	LastUpdated     time.Time
}

type AggregateStore interface {
	Upsert(ctx context.Context, snapshot AggregateSnapshot) error
	Get(ctx context.Context, country string) (*AggregateSnapshot, error)
	List(ctx context.Context) ([]AggregateSnapshot, error)
}
