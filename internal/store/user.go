package store

import (
	"context"

	"dermalink-api/internal/model"
)

const userCols = `id, email, password_hash, name, role, phone, photo_url, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.Phone, &u.PhotoURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, name, role) VALUES ($1,$2,$3,$4,$5)
		 RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return translate(err)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

// UpdateUser writes the editable profile fields.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET name=$2, phone=$3, photo_url=$4, updated_at=NOW()
		 WHERE id=$1 RETURNING updated_at`,
		u.ID, u.Name, u.Phone, u.PhotoURL,
	).Scan(&u.UpdatedAt)
	return translate(err)
}
