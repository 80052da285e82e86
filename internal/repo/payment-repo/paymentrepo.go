package paymentrepo

import (
	"context"
	"errors"
	"time"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const intentColumns = `id, user_id, provider, provider_session_id, provider_payment_id,
       amount_minor, currency, expected_credits, status, review_note, created_at, updated_at`

type Repository struct {
	db        pg.Database
	txManager pg.TXManager
}

func New(db pg.Database, txManager pg.TXManager) *Repository {
	return &Repository{
		db:        db,
		txManager: txManager,
	}
}

func (r *Repository) queryIntent(ctx context.Context, query string, args ...interface{}) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&intent.ID, &intent.UserID, &intent.Provider, &intent.ProviderSessionID, &intent.ProviderPaymentID,
		&intent.AmountMinor, &intent.Currency, &intent.ExpectedCredits, &intent.Status, &intent.ReviewNote,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("can't find payment intent", zap.Error(err))
		return nil, err
	}
	return &intent, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	return r.queryIntent(ctx, query, id)
}

func (r *Repository) FindBySessionID(ctx context.Context, provider, sessionID string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE provider = $1 AND provider_session_id = $2`
	return r.queryIntent(ctx, query, provider, sessionID)
}

func (r *Repository) FindByPaymentID(ctx context.Context, provider, paymentID string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents
        WHERE provider = $1 AND provider_payment_id = $2
        ORDER BY id LIMIT 1`
	return r.queryIntent(ctx, query, provider, paymentID)
}

// Save inserts the intent, or converges on the row another delivery already
// created for the same charge. ON CONFLICT DO NOTHING covers both partial
// unique indexes without aborting the surrounding transaction; a conflicting
// insert yields no row, so the existing one is fetched back by reference.
func (r *Repository) Save(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
        INSERT INTO payment_intents (user_id, provider, provider_session_id, provider_payment_id,
            amount_minor, currency, expected_credits, status, raw_payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT DO NOTHING
        RETURNING id, created_at, updated_at
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		err := r.db.QueryRow(ctx, query,
			intent.UserID, intent.Provider, intent.ProviderSessionID, intent.ProviderPaymentID,
			intent.AmountMinor, intent.Currency, intent.ExpectedCredits, intent.Status, intent.RawPayload,
		).Scan(&intent.ID, &intent.CreatedAt, &intent.UpdatedAt)
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		existing, err := r.findByAnyReference(ctx, intent)
		if err != nil {
			return err
		}
		if existing == nil {
			return pgx.ErrNoRows
		}
		raw := intent.RawPayload
		*intent = *existing
		intent.RawPayload = raw
		return nil
	})
	if err != nil {
		zap.L().Error("can't save payment intent", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) findByAnyReference(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
	if intent.ProviderSessionID != "" {
		found, err := r.FindBySessionID(ctx, intent.Provider, intent.ProviderSessionID)
		if err != nil || found != nil {
			return found, err
		}
	}
	if intent.ProviderPaymentID != "" {
		return r.FindByPaymentID(ctx, intent.Provider, intent.ProviderPaymentID)
	}
	return nil, nil
}

func (r *Repository) Update(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
        UPDATE payment_intents
        SET user_id = $1, provider_session_id = $2, provider_payment_id = $3, amount_minor = $4,
            currency = $5, expected_credits = $6, status = $7, review_note = $8, updated_at = now()
        WHERE id = $9
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query,
			intent.UserID, intent.ProviderSessionID, intent.ProviderPaymentID, intent.AmountMinor,
			intent.Currency, intent.ExpectedCredits, intent.Status, intent.ReviewNote, intent.ID,
		)
		return err
	})
	if err != nil {
		zap.L().Error("can't update payment intent", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `
        UPDATE payment_intents
        SET status = $1, updated_at = now()
        WHERE id = $2
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, status, id)
		return err
	})
	if err != nil {
		zap.L().Error("can't update payment intent status", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) SetReviewNote(ctx context.Context, id int64, note string) error {
	query := `
        UPDATE payment_intents
        SET review_note = $1, updated_at = now()
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, note, id)
	if err != nil {
		zap.L().Error("can't set review note", zap.Error(err))
		return err
	}
	return nil
}

// FindStale returns intents stuck in the given statuses past the expected
// settlement window, oldest first.
func (r *Repository) FindStale(ctx context.Context, statuses []string, before time.Time, limit uint32) ([]domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents
        WHERE status = ANY($1) AND created_at < $2
        ORDER BY created_at ASC
        LIMIT $3`
	rows, err := r.db.Query(ctx, query, statuses, before, int(limit))
	if err != nil {
		zap.L().Error("can't find stale payment intents", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var intents []domain.PaymentIntent
	for rows.Next() {
		var intent domain.PaymentIntent
		err := rows.Scan(
			&intent.ID, &intent.UserID, &intent.Provider, &intent.ProviderSessionID, &intent.ProviderPaymentID,
			&intent.AmountMinor, &intent.Currency, &intent.ExpectedCredits, &intent.Status, &intent.ReviewNote,
			&intent.CreatedAt, &intent.UpdatedAt,
		)
		if err != nil {
			zap.L().Error("can't scan payment intent row", zap.Error(err))
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

// Lock takes the transaction-scoped advisory lock for a payment's stable
// identifier. Must run inside TXManager.Begin.
func (r *Repository) Lock(ctx context.Context, key string) error {
	return pg.AcquireAdvisoryLock(ctx, r.db, key)
}
