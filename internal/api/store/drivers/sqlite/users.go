package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/store"
)

type usersRepo struct {
	q querier
}

func (r *usersRepo) GetUserBySubject(ctx context.Context, subject string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT subject, username, email, created_at, updated_at
		FROM users
		WHERE subject = ?`, subject)

	var u domain.User
	if err := row.Scan(&u.Subject, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT subject, username, email, created_at, updated_at
		FROM users
		WHERE username = ?`, username)

	var u domain.User
	if err := row.Scan(&u.Subject, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (subject, username, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (subject) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			updated_at = excluded.updated_at`,
		u.Subject, u.Username, u.Email, u.CreatedAt, time.Now().UTC())
	return mapConstraint(err)
}

func (r *usersRepo) DeleteUser(ctx context.Context, subject string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE subject = ?`, subject)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow converts a zero-row mutation into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
