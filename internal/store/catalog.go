package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dermalink-api/internal/model"
)

const productCols = `id, name, description, price_cents, image_url, category, rating, review_count, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	p := &model.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.ImageURL,
		&p.Category, &p.Rating, &p.ReviewCount, &p.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (id, name, description, price_cents, image_url, category)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`,
		p.ID, p.Name, p.Description, p.PriceCents, p.ImageURL, p.Category,
	).Scan(&p.CreatedAt)
	return translate(err)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
}

func (s *Store) ListProducts(ctx context.Context, category string) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productCols+` FROM products
		 WHERE ($1 = '' OR lower(category) = lower($1))
		 ORDER BY created_at DESC`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// aggregate statements per review target; never built from caller input.
var ratingUpdates = map[model.ReviewTarget]string{
	model.TargetExpert: `UPDATE experts SET
		rating = (SELECT AVG(rating) FROM reviews WHERE target_kind = 'expert' AND target_id = $1),
		review_count = (SELECT COUNT(*) FROM reviews WHERE target_kind = 'expert' AND target_id = $1)
		WHERE user_id = $1`,
	model.TargetProduct: `UPDATE products SET
		rating = (SELECT AVG(rating) FROM reviews WHERE target_kind = 'product' AND target_id = $1),
		review_count = (SELECT COUNT(*) FROM reviews WHERE target_kind = 'product' AND target_id = $1)
		WHERE id = $1`,
}

// CreateReview inserts r and refreshes the target's rating aggregates.
// ErrNotFound if the target does not exist, ErrDuplicate on a repeat review.
func (s *Store) CreateReview(ctx context.Context, r *model.Review) error {
	update, ok := ratingUpdates[r.TargetKind]
	if !ok {
		return fmt.Errorf("review target %q: %w", r.TargetKind, ErrNotFound)
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO reviews (id, user_id, target_kind, target_id, rating, comment)
			 VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`,
			r.ID, r.UserID, string(r.TargetKind), r.TargetID, r.Rating, r.Comment,
		).Scan(&r.CreatedAt)
		if err != nil {
			return translate(err)
		}
		tag, err := tx.Exec(ctx, update, r.TargetID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) ListReviews(ctx context.Context, kind model.ReviewTarget, targetID string) ([]model.Review, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.user_id, u.name, r.target_kind, r.target_id, r.rating, r.comment, r.created_at
		 FROM reviews r JOIN users u ON u.id = r.user_id
		 WHERE r.target_kind = $1 AND r.target_id = $2
		 ORDER BY r.created_at DESC`, string(kind), targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.UserName, &r.TargetKind, &r.TargetID,
			&r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
