package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"moodatlas/internal/storage"
	"moodatlas/internal/types"
)

type classificationStore struct {
	db *sql.DB
}

func newClassificationStore(db *sql.DB) storage.ClassificationStore {
	return &classificationStore{db: db}
}

func (s *classificationStore) Store(ctx context.Context, c types.Classification) error {
	detected, err := json.Marshal(c.DetectedCountries)
	if err != nil {
		return fmt.Errorf("failed to encode detected countries: %w", err)
	}

	query := `
		INSERT INTO classifications (post_id, country, emotion, confidence, is_collective, detected_countries)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		c.PostID, c.Country, string(c.Emotion), c.Confidence, c.IsCollective, string(detected))
	if err != nil {
		return fmt.Errorf("failed to store classification: %w", err)
	}

	return nil
}

func (s *classificationStore) ListByCountry(ctx context.Context, country string) ([]types.Classification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, country, emotion, confidence, is_collective, detected_countries
		FROM classifications
		WHERE country = ?
		ORDER BY post_id
	`, country)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	defer rows.Close()

	var out []types.Classification
	for rows.Next() {
		var c types.Classification
		var emotion string
		var detected string
		if err := rows.Scan(&c.PostID, &c.Country, &emotion, &c.Confidence, &c.IsCollective, &detected); err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		parsed, err := types.ParseEmotion(emotion)
		if err != nil {
			return nil, fmt.Errorf("corrupt classification row for post %s: %w", c.PostID, err)
		}
		c.Emotion = parsed
		if err := json.Unmarshal([]byte(detected), &c.DetectedCountries); err != nil {
			return nil, fmt.Errorf("corrupt detected countries for post %s: %w", c.PostID, err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

type aggregateStore struct {
	db *sql.DB
}

func newAggregateStore(db *sql.DB) storage.AggregateStore {
	return &aggregateStore{db: db}
}

func (s *aggregateStore) Upsert(ctx context.Context, snapshot storage.AggregateSnapshot) error {
	distribution, err := json.Marshal(snapshot.Distribution)
	if err != nil {
		return fmt.Errorf("failed to encode distribution: %w", err)
	}
	weighted, err := json.Marshal(snapshot.WeightedScores)
	if err != nil {
		return fmt.Errorf("failed to encode weighted scores: %w", err)
	}

	query := `
		INSERT INTO country_emotions (country, distribution, weighted_scores, dominant_emotion, confidence, total_posts, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country) DO UPDATE SET
			distribution = excluded.distribution,
			weighted_scores = excluded.weighted_scores,
			dominant_emotion = excluded.dominant_emotion,
			confidence = excluded.confidence,
			total_posts = excluded.total_posts,
			last_updated = excluded.last_updated
	`

	_, err = s.db.ExecContext(ctx, query,
		snapshot.Country, string(distribution), string(weighted),
		string(snapshot.DominantEmotion), snapshot.Confidence,
		snapshot.TotalPosts, snapshot.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate: %w", err)
	}

	return nil
}

func (s *aggregateStore) Get(ctx context.Context, country string) (*storage.AggregateSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT country, distribution, weighted_scores, dominant_emotion, confidence, total_posts, last_updated
		FROM country_emotions
		WHERE country = ?
	`, country)

	snapshot, err := scanAggregate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *aggregateStore) List(ctx context.Context) ([]storage.AggregateSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT country, distribution, weighted_scores, dominant_emotion, confidence, total_posts, last_updated
		FROM country_emotions
		ORDER BY country
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list aggregates: %w", err)
	}
	defer rows.Close()

	var out []storage.AggregateSnapshot
	for rows.Next() {
		snapshot, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snapshot)
	}

	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row rowScanner) (*storage.AggregateSnapshot, error) {
	var snapshot storage.AggregateSnapshot
	var distribution, weighted, dominant string

	err := row.Scan(&snapshot.Country, &distribution, &weighted, &dominant,
		&snapshot.Confidence, &snapshot.TotalPosts, &snapshot.LastUpdated)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(distribution), &snapshot.Distribution); err != nil {
		return nil, fmt.Errorf("corrupt distribution for %s: %w", snapshot.Country, err)
	}
	if err := json.Unmarshal([]byte(weighted), &snapshot.WeightedScores); err != nil {
		return nil, fmt.Errorf("corrupt weighted scores for %s: %w", snapshot.Country, err)
	}
	snapshot.DominantEmotion = types.Emotion(dominant)

	return &snapshot, nil
}
