package userrepo

import (
	"context"
	"errors"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `
        SELECT id, email, display_name, password_hash, balance
        FROM users
        WHERE id = $1
    `
	var user domain.User
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("can't find user by id", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
        SELECT id, email, display_name, password_hash, balance
        FROM users
        WHERE email = $1
    `
	var user domain.User
	err := r.db.QueryRow(ctx, query, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("can't find user by email", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

func (r *Repository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (email, display_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query, user.Email, user.DisplayName, user.PasswordHash).Scan(&user.ID)
	if err != nil {
		zap.L().Error("can't save user", zap.Error(err))
		return nil, err
	}
	return user, nil
}

// CreateOrFetch provisions a user keyed by email. The no-op DO UPDATE makes
// the RETURNING clause yield the existing row, so concurrent duplicate
// deliveries converge on one user id.
func (r *Repository) CreateOrFetch(ctx context.Context, email, displayName string) (*domain.User, error) {
	query := `
		INSERT INTO users (email, display_name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, display_name, balance
	`
	var user domain.User
	err := r.db.QueryRow(ctx, query, email, displayName).Scan(&user.ID, &user.Email, &user.DisplayName, &user.Balance)
	if err != nil {
		zap.L().Error("can't create or fetch user", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// Anonymize scrubs personal data in place. The row itself, its balance and
// its transaction history stay, so the ledger remains auditable.
func (r *Repository) Anonymize(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET email = 'anonymized-' || id || '@invalid.local',
		    display_name = '',
		    password_hash = '',
		    anonymized_at = now()
		WHERE id = $1 AND anonymized_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		zap.L().Error("can't anonymize user", zap.Error(err))
		return err
	}
	return nil
}
