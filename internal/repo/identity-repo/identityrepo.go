package identityrepo

import (
	"context"
	"errors"

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

// FindUserID returns the internal user id mapped to a provider customer id,
// or 0 when no mapping exists.
func (r *Repository) FindUserID(ctx context.Context, provider, providerCustomerID string) (int64, error) {
	query := `
        SELECT user_id
        FROM provider_identities
        WHERE provider = $1 AND provider_customer_id = $2
    `
	var userID int64
	err := r.db.QueryRow(ctx, query, provider, providerCustomerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		zap.L().Error("can't find provider identity", zap.Error(err))
		return 0, err
	}
	return userID, nil
}

// Link records the customer id -> user mapping. Re-linking the same pair is
// a no-op; the cache never rebinds an existing customer id to another user.
func (r *Repository) Link(ctx context.Context, provider, providerCustomerID string, userID int64) error {
	query := `
        INSERT INTO provider_identities (provider, provider_customer_id, user_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (provider, provider_customer_id) DO NOTHING
    `
	_, err := r.db.Exec(ctx, query, provider, providerCustomerID, userID)
	if err != nil {
		zap.L().Error("can't link provider identity", zap.Error(err))
		return err
	}
	return nil
}
