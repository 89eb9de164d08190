package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row; created_at is assigned by the database.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, display_name, photo_url, pwd_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Email, u.DisplayName, u.PhotoURL, u.PwdHash).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, email, display_name, photo_url, pwd_hash, created_at
FROM users WHERE id=$1`
	return r.scanOne(ctx, q, id)
}

// GetByEmail selects a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT id, email, display_name, photo_url, pwd_hash, created_at
FROM users WHERE email=$1`
	return r.scanOne(ctx, q, email)
}

func (r *UserRepo) scanOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.PwdHash, &u.CreatedAt)
	if isNoRows(err) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}
