package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"dermalink-api/internal/model"
)

const apptCols = `id, user_id, expert_id, day, time_slot, note, status, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (*model.Appointment, error) {
	a := &model.Appointment{}
	err := row.Scan(&a.ID, &a.UserID, &a.ExpertID, &a.Date, &a.Time, &a.Note,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// BookAppointment inserts a after checking that no active appointment holds
// the same (expert, day, time) slot. Bookers of one slot are serialised by a
// transaction-scoped advisory lock; the partial unique index on active slots
// is the backstop.
func (s *Store) BookAppointment(ctx context.Context, a *model.Appointment) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		key := a.ExpertID + "|" + a.Date.Format(model.DateLayout) + "|" + a.Time
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return err
		}

		var taken bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(
				SELECT 1 FROM appointments
				WHERE expert_id = $1 AND day = $2 AND time_slot = $3
				  AND status NOT IN ('rejected', 'cancelled'))`,
			a.ExpertID, a.Date, a.Time,
		).Scan(&taken)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		return tx.QueryRow(ctx,
			`INSERT INTO appointments (id, user_id, expert_id, day, time_slot, note, status)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)
			 RETURNING created_at, updated_at`,
			a.ID, a.UserID, a.ExpertID, a.Date, a.Time, a.Note, string(a.Status),
		).Scan(&a.CreatedAt, &a.UpdatedAt)
	})
	if errors.Is(translate(err), ErrDuplicate) {
		return ErrSlotTaken
	}
	return translate(err)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	return scanAppointment(s.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

// ListAppointments filters by user, expert and status; empty fields match all.
func (s *Store) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apptCols+` FROM appointments
		 WHERE ($1 = '' OR user_id::text = $1)
		   AND ($2 = '' OR expert_id::text = $2)
		   AND ($3 = '' OR status = $3)
		 ORDER BY day DESC, time_slot`,
		f.UserID, f.ExpertID, string(f.Status),
	)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateAppointmentStatus moves id from one status to another. ErrConflict
// means the row was no longer in the from status.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.AppointmentStatus) (*model.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx,
		`UPDATE appointments SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2
		 RETURNING `+apptCols,
		id, string(from), string(to),
	))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return a, err
}

// ExpirePending cancels pending appointments dated before day and returns them.
func (s *Store) ExpirePending(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE appointments SET status = 'cancelled', updated_at = NOW()
		 WHERE status = 'pending' AND day < $1
		 RETURNING `+apptCols, day)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Store) HasCompletedAppointment(ctx context.Context, userID, expertID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM appointments
		 WHERE user_id = $1 AND expert_id = $2 AND status = 'completed')`,
		userID, expertID,
	).Scan(&ok)
	return ok, err
}
