package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuniwaste/exchange/internal/domain"
)

type UserRepository struct {
	db
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db{pool: pool}}
}

func (r *UserRepository) UpsertUser(ctx context.Context, u domain.User) error {
	const stmt = `
INSERT INTO users (id, role, company, verified, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE
SET role = EXCLUDED.role, company = EXCLUDED.company, verified = EXCLUDED.verified, updated_at = NOW()
WHERE (users.role, users.company, users.verified) IS DISTINCT FROM (EXCLUDED.role, EXCLUDED.company, EXCLUDED.verified)`

	if _, err := r.exec(ctx, stmt, u.ID, u.Role, u.Company, u.Verified); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("upsert user", err)
	}
	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT id, role, company, verified FROM users WHERE id = $1`

	var u domain.User
	err := r.queryRow(ctx, query, id).Scan(&u.ID, &u.Role, &u.Company, &u.Verified)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.User{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, wrap("get user", err)
	}
	return u, nil
}
