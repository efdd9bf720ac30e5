package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"dermalink-api/internal/model"
)

const expertSelect = `SELECT e.user_id, u.name, e.specialty, e.bio, e.fee_cents, e.photo_url,
	e.rating, e.review_count, e.created_at, e.updated_at
	FROM experts e JOIN users u ON u.id = e.user_id`

func scanExpert(row interface{ Scan(...any) error }) (*model.Expert, error) {
	e := &model.Expert{}
	err := row.Scan(&e.ID, &e.Name, &e.Specialty, &e.Bio, &e.FeeCents, &e.PhotoURL,
		&e.Rating, &e.ReviewCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// UpsertExpert creates or replaces the editable fields of an expert profile.
// Rating aggregates are left alone.
func (s *Store) UpsertExpert(ctx context.Context, e *model.Expert) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO experts (user_id, specialty, bio, fee_cents, photo_url)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET specialty=EXCLUDED.specialty, bio=EXCLUDED.bio, fee_cents=EXCLUDED.fee_cents,
		     photo_url=EXCLUDED.photo_url, updated_at=NOW()`,
		e.ID, e.Specialty, e.Bio, e.FeeCents, e.PhotoURL,
	)
	return translate(err)
}

func (s *Store) GetExpert(ctx context.Context, id string) (*model.Expert, error) {
	return scanExpert(s.pool.QueryRow(ctx, expertSelect+` WHERE e.user_id = $1`, id))
}

// ListExperts returns experts ordered by rating; specialty filters
// case-insensitively when set.
func (s *Store) ListExperts(ctx context.Context, specialty string) ([]model.Expert, error) {
	rows, err := s.pool.Query(ctx,
		expertSelect+` WHERE ($1 = '' OR lower(e.specialty) = lower($1))
		 ORDER BY e.rating DESC, u.name`, specialty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Expert
	for rows.Next() {
		e, err := scanExpert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) GetAvailability(ctx context.Context, expertID string) (*model.Availability, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT weekday, slots, updated_at FROM availability WHERE expert_id = $1`, expertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	a := &model.Availability{ExpertID: expertID, Days: map[string][]string{}}
	for rows.Next() {
		var (
			day   string
			slots []string
		)
		if err := rows.Scan(&day, &slots, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Days[day] = slots
	}
	return a, rows.Err()
}

// SetAvailability replaces the whole week for the expert.
func (s *Store) SetAvailability(ctx context.Context, a *model.Availability) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM availability WHERE expert_id = $1`, a.ExpertID); err != nil {
			return err
		}
		for day, slots := range a.Days {
			if slots == nil {
				slots = []string{}
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO availability (expert_id, weekday, slots) VALUES ($1,$2,$3)`,
				a.ExpertID, day, slots,
			)
			if err != nil {
				return translate(err)
			}
		}
		return nil
	})
}
