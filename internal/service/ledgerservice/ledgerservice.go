package ledgerservice

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"go.uber.org/zap"
)

type LedgerRepo interface {
	ApplyDelta(ctx context.Context, userID, delta int64, reason string, paymentIntentID *int64, metadata map[string]string) (int64, error)
	ApplyDebit(ctx context.Context, userID, amount int64, reason string, metadata map[string]string) (int64, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.CreditTransaction, error)
}

type PaymentRepo interface {
	FindByID(ctx context.Context, id int64) (*domain.PaymentIntent, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Lock(ctx context.Context, key string) error
}

// Service is the only writer of user balances and credit transactions.
// Every mutation is one transaction: the balance delta, the audit row and
// the intent status change commit or roll back together.
type Service struct {
	ledgerRepo  LedgerRepo
	paymentRepo PaymentRepo
	txManager   pg.TXManager
}

func New(ledgerRepo LedgerRepo, paymentRepo PaymentRepo, txManager pg.TXManager) *Service {
	return &Service{
		ledgerRepo:  ledgerRepo,
		paymentRepo: paymentRepo,
		txManager:   txManager,
	}
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	balance, err := s.ledgerRepo.GetBalance(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get balance", zap.Error(err))
		return 0, err
	}
	return balance, nil
}

func (s *Service) GetTransactions(ctx context.Context, userID int64) ([]domain.CreditTransaction, error) {
	txs, err := s.ledgerRepo.ListByUser(ctx, userID)
	if err != nil {
		zap.L().Error("failed to list transactions", zap.Error(err))
		return nil, err
	}
	return txs, nil
}

// ApplyDelta appends a transaction and moves the balance. Exposed for
// corrective entries; payment crediting goes through CreditPayment.
func (s *Service) ApplyDelta(ctx context.Context, userID, delta int64, reason string, paymentIntentID *int64, metadata map[string]string) (int64, error) {
	return s.ledgerRepo.ApplyDelta(ctx, userID, delta, reason, paymentIntentID, metadata)
}

// Debit spends credits on behalf of a product feature. Unlike refund
// reversals it refuses to drive the balance negative.
func (s *Service) Debit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	newBalance, err := s.ledgerRepo.ApplyDebit(ctx, userID, amount, reason, nil)
	if err != nil {
		return 0, err
	}
	zap.L().Info("debited credits", zap.Int64("userID", userID), zap.Int64("amount", amount), zap.String("reason", reason))
	return newBalance, nil
}

// MarkPaid records provider confirmation. Already PAID or CREDITED intents
// are left alone; other terminal states may re-enter PAID on a late
// confirmation.
func (s *Service) MarkPaid(ctx context.Context, intent *domain.PaymentIntent) error {
	switch intent.Status {
	case domain.IntentStatusPaid, domain.IntentStatusCredited:
		return nil
	}
	if !domain.CanTransition(intent.Status, domain.IntentStatusPaid) {
		return fmt.Errorf("%w: %s -> PAID", domain.ErrInvalidTransition, intent.Status)
	}
	if err := s.paymentRepo.UpdateStatus(ctx, intent.ID, domain.IntentStatusPaid); err != nil {
		return err
	}
	intent.Status = domain.IntentStatusPaid
	return nil
}

// CreditPayment drives PAID -> CREDITED exactly once. The advisory lock on
// the payment's stable identifier plus the in-transaction re-read make
// replays and concurrent deliveries converge on a single credit, even for
// events that carry no usable event id.
func (s *Service) CreditPayment(ctx context.Context, intent *domain.PaymentIntent) (credited bool, newBalance int64, err error) {
	if intent.UserID == nil {
		return false, 0, domain.ErrUnresolvableUser
	}
	if intent.ExpectedCredits <= 0 {
		return false, 0, domain.ErrNoCreditsMapped
	}

	err = s.txManager.Begin(ctx, func(ctx context.Context) error {
		if err := s.paymentRepo.Lock(ctx, intent.LockKey()); err != nil {
			return err
		}

		current, err := s.paymentRepo.FindByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrPaymentNotFound
		}
		if current.Status == domain.IntentStatusCredited {
			zap.L().Info("payment already credited", zap.Int64("intentID", intent.ID))
			return nil
		}
		if !domain.CanTransition(current.Status, domain.IntentStatusCredited) {
			return fmt.Errorf("%w: %s -> CREDITED", domain.ErrInvalidTransition, current.Status)
		}

		balance, err := s.ledgerRepo.ApplyDelta(ctx, *intent.UserID, intent.ExpectedCredits, domain.ReasonPurchase, &intent.ID, map[string]string{
			"payment_intent": strconv.FormatInt(intent.ID, 10),
		})
		if err != nil {
			return err
		}
		if err := s.paymentRepo.UpdateStatus(ctx, intent.ID, domain.IntentStatusCredited); err != nil {
			return err
		}

		credited = true
		newBalance = balance
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if credited {
		intent.Status = domain.IntentStatusCredited
		zap.L().Info("payment credited",
			zap.Int64("intentID", intent.ID),
			zap.Int64("userID", *intent.UserID),
			zap.Int64("credits", intent.ExpectedCredits),
		)
	}
	return credited, newBalance, nil
}

// ReversePayment handles refunds and chargebacks. A credited intent gets the
// symmetric negative delta in a fresh transaction row; the balance may go
// negative, which is an accepted business outcome. An uncredited intent just
// transitions, since nothing was ever applied. Re-entry on an intent already
// in the target status is a no-op. Returns the delta actually applied under
// the lock (zero when the intent was never credited), read from the row
// inside the transaction rather than from the caller's snapshot.
func (s *Service) ReversePayment(ctx context.Context, intent *domain.PaymentIntent, target string) (applied int64, err error) {
	reason := domain.ReasonRefund
	if target == domain.IntentStatusChargeback {
		reason = domain.ReasonChargeback
	}

	var transitioned bool
	err = s.txManager.Begin(ctx, func(ctx context.Context) error {
		if err := s.paymentRepo.Lock(ctx, intent.LockKey()); err != nil {
			return err
		}

		current, err := s.paymentRepo.FindByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrPaymentNotFound
		}
		if current.Status == target {
			return nil
		}
		if !domain.CanTransition(current.Status, target) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, target)
		}

		if current.Status == domain.IntentStatusCredited {
			if current.UserID == nil {
				return domain.ErrUnresolvableUser
			}
			_, err := s.ledgerRepo.ApplyDelta(ctx, *current.UserID, -current.ExpectedCredits, reason, &current.ID, nil)
			if err != nil {
				return err
			}
			applied = -current.ExpectedCredits
		}

		if err := s.paymentRepo.UpdateStatus(ctx, intent.ID, target); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	if transitioned {
		intent.Status = target
		zap.L().Info("payment reversed", zap.Int64("intentID", intent.ID), zap.String("status", target), zap.Int64("delta", applied))
	}
	return applied, nil
}

// MarkTerminal moves an intent to FAILED or CANCELED on provider word.
// No ledger entry is involved; nothing was credited.
func (s *Service) MarkTerminal(ctx context.Context, intent *domain.PaymentIntent, target string) error {
	if intent.Status == target {
		return nil
	}
	if !domain.CanTransition(intent.Status, target) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, intent.Status, target)
	}
	if err := s.paymentRepo.UpdateStatus(ctx, intent.ID, target); err != nil {
		return err
	}
	intent.Status = target
	return nil
}
