package store

import (
	"context"
	"time"

	"dermalink-api/internal/model"
)

func (s *Store) AddFeed(ctx context.Context, f *model.ResourceFeed) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO resource_feeds (id, url, kind) VALUES ($1,$2,$3) RETURNING created_at`,
		f.ID, f.URL, string(f.Kind),
	).Scan(&f.CreatedAt)
	return translate(err)
}

func (s *Store) ListFeeds(ctx context.Context) ([]model.ResourceFeed, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, kind, last_fetched_at, created_at FROM resource_feeds ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ResourceFeed
	for rows.Next() {
		var f model.ResourceFeed
		if err := rows.Scan(&f.ID, &f.URL, &f.Kind, &f.LastFetchedAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) MarkFeedFetched(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE resource_feeds SET last_fetched_at = $2 WHERE id = $1`, id, at)
	return err
}
