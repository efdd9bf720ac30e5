package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"dermalink-api/internal/model"
)

const resourceCols = `id, author_id, kind, title, body, media_url, source_url, likes, views, comments, created_at`

func scanResource(row interface{ Scan(...any) error }) (*model.Resource, error) {
	var (
		r         model.Resource
		author    *string
		sourceURL *string
	)
	err := row.Scan(&r.ID, &author, &r.Kind, &r.Title, &r.Body, &r.MediaURL, &sourceURL,
		&r.Likes, &r.Views, &r.Comments, &r.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if author != nil {
		r.AuthorID = *author
	}
	if sourceURL != nil {
		r.SourceURL = *sourceURL
	}
	return &r, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) CreateResource(ctx context.Context, r *model.Resource) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO resources (id, author_id, kind, title, body, media_url, source_url)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING created_at`,
		r.ID, nullable(r.AuthorID), string(r.Kind), r.Title, r.Body, r.MediaURL, nullable(r.SourceURL),
	).Scan(&r.CreatedAt)
	return translate(err)
}

// ImportResource inserts r unless a resource with the same source URL exists.
// It reports whether a row was written.
func (s *Store) ImportResource(ctx context.Context, r *model.Resource) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO resources (id, author_id, kind, title, body, media_url, source_url)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (source_url) WHERE source_url IS NOT NULL DO NOTHING`,
		r.ID, nullable(r.AuthorID), string(r.Kind), r.Title, r.Body, r.MediaURL, nullable(r.SourceURL),
	)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	return scanResource(s.pool.QueryRow(ctx, `SELECT `+resourceCols+` FROM resources WHERE id = $1`, id))
}

// ViewResource bumps the view counter and returns the updated row.
func (s *Store) ViewResource(ctx context.Context, id string) (*model.Resource, error) {
	return scanResource(s.pool.QueryRow(ctx,
		`UPDATE resources SET views = views + 1 WHERE id = $1 RETURNING `+resourceCols, id))
}

func (s *Store) ListResources(ctx context.Context, kind model.ResourceKind) ([]model.Resource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resourceCols+` FROM resources
		 WHERE ($1 = '' OR kind = $1)
		 ORDER BY created_at DESC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// SetLike adds or removes the user's like and returns the resulting counter.
// Repeating the same call is a no-op.
func (s *Store) SetLike(ctx context.Context, resourceID, userID string, liked bool) (int64, error) {
	var likes int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT likes FROM resources WHERE id = $1 FOR UPDATE`, resourceID,
		).Scan(&likes); err != nil {
			return translate(err)
		}

		q := `INSERT INTO resource_likes (resource_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
		delta := 1
		if !liked {
			q = `DELETE FROM resource_likes WHERE resource_id = $1 AND user_id = $2`
			delta = -1
		}
		tag, err := tx.Exec(ctx, q, resourceID, userID)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return tx.QueryRow(ctx,
			`UPDATE resources SET likes = GREATEST(likes + $2, 0) WHERE id = $1 RETURNING likes`,
			resourceID, delta,
		).Scan(&likes)
	})
	return likes, err
}

// AddComment inserts c and bumps the resource's comment counter.
func (s *Store) AddComment(ctx context.Context, c *model.Comment) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE resources SET comments = comments + 1 WHERE id = $1`, c.ResourceID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return translate(tx.QueryRow(ctx,
			`INSERT INTO comments (id, resource_id, user_id, body) VALUES ($1,$2,$3,$4)
			 RETURNING created_at`,
			c.ID, c.ResourceID, c.UserID, c.Body,
		).Scan(&c.CreatedAt))
	})
}

func (s *Store) ListComments(ctx context.Context, resourceID string) ([]model.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.resource_id, c.user_id, u.name, c.body, c.created_at
		 FROM comments c JOIN users u ON u.id = c.user_id
		 WHERE c.resource_id = $1
		 ORDER BY c.created_at`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.ResourceID, &c.UserID, &c.UserName, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteComment removes a comment owned by userID.
func (s *Store) DeleteComment(ctx context.Context, id, userID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var resourceID string
		err := tx.QueryRow(ctx,
			`DELETE FROM comments WHERE id = $1 AND user_id = $2 RETURNING resource_id`, id, userID,
		).Scan(&resourceID)
		if err != nil {
			return translate(err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE resources SET comments = GREATEST(comments - 1, 0) WHERE id = $1`, resourceID)
		return err
	})
}
