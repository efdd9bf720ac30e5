package store

import (
	"context"

	"dermalink-api/internal/model"
)

func (s *Store) AddHistory(ctx context.Context, h *model.HistoryEntry) error {
	scores := h.Scores
	if scores == nil {
		scores = []model.Score{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO history (id, user_id, image_url, label, confidence, scores)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`,
		h.ID, h.UserID, h.ImageURL, h.Label, h.Confidence, scores,
	).Scan(&h.CreatedAt)
	return translate(err)
}

func (s *Store) ListHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, image_url, label, confidence, scores, created_at
		 FROM history WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var h model.HistoryEntry
		if err := rows.Scan(&h.ID, &h.UserID, &h.ImageURL, &h.Label, &h.Confidence,
			&h.Scores, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) DeleteHistory(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
