package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"moodatlas/internal/storage"
	"moodatlas/internal/types"
)

type postStore struct {
	db *sql.DB
}

func newPostStore(db *sql.DB) storage.PostStore {
	return &postStore{db: db}
}

func (s *postStore) Store(ctx context.Context, post *types.Post) error {
	query := `
		INSERT INTO posts (id, country, title, text, url, source_created_at, fetched_at, stage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		post.ID, post.Country, post.Title, post.Text, post.URL,
		post.SourceCreatedAt, post.FetchedAt, post.Stage().String())
	if err != nil {
		return fmt.Errorf("failed to store post: %w", err)
	}

	return nil
}

func (s *postStore) Get(ctx context.Context, id string) (*types.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, country, title, text, url, source_created_at, fetched_at, stage
		FROM posts WHERE id = ?
	`, id)

	var (
		pid, country, title, text, url, stageName string
		sourceCreatedAt, fetchedAt                time.Time
	)
	err := row.Scan(&pid, &country, &title, &text, &url, &sourceCreatedAt, &fetchedAt, &stageName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read post: %w", err)
	}

	post := types.NewPost(pid, country, title, text, url, sourceCreatedAt)
	post.FetchedAt = fetchedAt
	for stage := types.StageFetched; stage <= types.StageDeadLettered; stage++ {
		if stage.String() == stageName {
			if stage == types.StageDeadLettered {
				post.MarkDeadLettered()
			} else if err := post.AdvanceTo(stage); err != nil {
				return nil, err
			}
			break
		}
	}
	return post, nil
}

func (s *postStore) GetStage(ctx context.Context, id string) (types.Stage, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT stage FROM posts WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return types.StageFetched, false, nil
	}
	if err != nil {
		return types.StageFetched, false, fmt.Errorf("failed to read stage: %w", err)
	}

	for stage := types.StageFetched; stage <= types.StageDeadLettered; stage++ {
		if stage.String() == name {
			return stage, true, nil
		}
	}
	return types.StageFetched, false, fmt.Errorf("unknown stage %q for post %s", name, id)
}

func (s *postStore) UpdateStage(ctx context.Context, id string, stage types.Stage) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET stage = ? WHERE id = ?`, stage.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return nil
}

func (s *postStore) CountByCountry(ctx context.Context, country string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE country = ?`, country).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

func (s *postStore) CountFetchedSince(ctx context.Context, country string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE country = ? AND fetched_at >= ?`, country, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent posts: %w", err)
	}
	return count, nil
}

func (s *postStore) DeleteOlderThan(ctx context.Context, age time.Duration) error {
	cutoff := time.Now().Add(-age)
	query := `DELETE FROM posts WHERE fetched_at < ?`

	slog.Debug("Deleting posts older than cutoff", "age", age, "cutoff", cutoff.Format(time.RFC3339))
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete old posts: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil {
		slog.Debug("Deleted old posts", "count", rows)
	}

	return nil
}
