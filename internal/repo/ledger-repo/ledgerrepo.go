package ledgerrepo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

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

// ApplyDelta mutates the materialized balance and appends the audit row in
// one transaction. The balance update is a single read-modify-write
// statement, never a check-then-set, so concurrent deltas on the same user
// cannot lose updates.
func (r *Repository) ApplyDelta(ctx context.Context, userID, delta int64, reason string, paymentIntentID *int64, metadata map[string]string) (int64, error) {
	var newBalance int64
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			UPDATE users
			SET balance = balance + $1
			WHERE id = $2
			RETURNING balance
		`, delta, userID)
		if err := row.Scan(&newBalance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrUnresolvableUser
			}
			zap.L().Error("failed to update user balance", zap.Error(err))
			return err
		}

		meta, err := encodeMetadata(metadata)
		if err != nil {
			return err
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO credit_transactions (user_id, payment_intent_id, delta, reason, metadata)
			VALUES ($1, $2, $3, $4, $5)
		`, userID, paymentIntentID, delta, reason, meta)
		if err != nil {
			zap.L().Error("failed to append credit transaction", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ApplyDebit is ApplyDelta with a floor at zero: the conditional update
// matches no row when the balance is too low, which surfaces as
// ErrInsufficientCredits. Refund reversals do not go through here.
func (r *Repository) ApplyDebit(ctx context.Context, userID, amount int64, reason string, metadata map[string]string) (int64, error) {
	var newBalance int64
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			UPDATE users
			SET balance = balance - $1
			WHERE id = $2 AND balance >= $1
			RETURNING balance
		`, amount, userID)
		if err := row.Scan(&newBalance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrInsufficientCredits
			}
			zap.L().Error("failed to debit user balance", zap.Error(err))
			return err
		}

		meta, err := encodeMetadata(metadata)
		if err != nil {
			return err
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO credit_transactions (user_id, payment_intent_id, delta, reason, metadata)
			VALUES ($1, NULL, $2, $3, $4)
		`, userID, -amount, reason, meta)
		if err != nil {
			zap.L().Error("failed to append debit transaction", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (r *Repository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUnresolvableUser
		}
		zap.L().Error("failed to get user balance", zap.Error(err))
		return 0, err
	}
	return balance, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]domain.CreditTransaction, error) {
	query := `
        SELECT id, user_id, payment_intent_id, delta, reason, created_at
        FROM credit_transactions
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		zap.L().Error("can't list credit transactions", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var txs []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		err := rows.Scan(&tx.ID, &tx.UserID, &tx.PaymentIntentID, &tx.Delta, &tx.Reason, &tx.CreatedAt)
		if err != nil {
			zap.L().Error("can't scan credit transaction row", zap.Error(err))
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		zap.L().Error("can't encode transaction metadata", zap.Error(err))
		return nil, err
	}
	return meta, nil
}
