// Package reconcile periodically compares stuck payment intents against the
// provider's authoritative status and drives the resulting transitions
// through the ledger engine, so correctness does not depend on whether the
// webhook or the reconciler observed an outcome first.
package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkotelnikov/creditcore/internal/config"
	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/dto"
	"github.com/dkotelnikov/creditcore/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var processingIntents sync.Map

type PaymentRepo interface {
	FindStale(ctx context.Context, statuses []string, before time.Time, limit uint32) ([]domain.PaymentIntent, error)
	SetReviewNote(ctx context.Context, id int64, note string) error
}

type Ledger interface {
	MarkPaid(ctx context.Context, intent *domain.PaymentIntent) error
	CreditPayment(ctx context.Context, intent *domain.PaymentIntent) (bool, int64, error)
	ReversePayment(ctx context.Context, intent *domain.PaymentIntent, target string) (int64, error)
	MarkTerminal(ctx context.Context, intent *domain.PaymentIntent, target string) error
}

type ProviderClient interface {
	GetPaymentStatus(ctx context.Context, paymentID string) (*provider.PaymentStatus, error)
}

type stats struct {
	scanned  atomic.Int64
	credited atomic.Int64
	reversed atomic.Int64
	closed   atomic.Int64
	skipped  atomic.Int64
	errors   atomic.Int64
}

func (s *stats) snapshot() dto.ReconcileResponseDTO {
	return dto.ReconcileResponseDTO{
		Scanned:  int(s.scanned.Load()),
		Credited: int(s.credited.Load()),
		Reversed: int(s.reversed.Load()),
		Closed:   int(s.closed.Load()),
		Skipped:  int(s.skipped.Load()),
		Errors:   int(s.errors.Load()),
	}
}

type Service struct {
	paymentRepo PaymentRepo
	ledger      Ledger
	client      ProviderClient
	workerPool  WorkerPoolI
	interval    time.Duration
	window      time.Duration
	limit       uint32
}

func New(cfg *config.Config, paymentRepo PaymentRepo, ledger Ledger, client ProviderClient) *Service {
	return &Service{
		paymentRepo: paymentRepo,
		ledger:      ledger,
		client:      client,
		workerPool:  NewWorkerPool(10),
		interval:    cfg.ReconcileEvery,
		window:      cfg.ReconcileWindow,
		limit:       uint32(cfg.ReconcileLimit),
	}
}

func (s *Service) Start(ctx context.Context) {
	zap.L().Info("reconciliation service started", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("context canceled, stopping reconciliation")
			return
		case <-ticker.C:
			if _, err := s.ReconcilePending(ctx, s.limit); err != nil {
				zap.L().Error("reconciliation run failed", zap.Error(err))
			}
		}
	}
}

// ReconcilePending scans intents stuck in INIT or PAID past the expected
// settlement window and re-enters the ledger engine for each, never
// bypassing its atomicity or idempotency guarantees.
func (s *Service) ReconcilePending(ctx context.Context, limit uint32) (dto.ReconcileResponseDTO, error) {
	runID := uuid.NewString()
	before := time.Now().Add(-s.window)

	intents, err := s.paymentRepo.FindStale(ctx, []string{domain.IntentStatusInit, domain.IntentStatusPaid}, before, limit)
	if err != nil {
		zap.L().Error("failed to fetch stale payment intents", zap.Error(err))
		return dto.ReconcileResponseDTO{}, err
	}

	var st stats
	var g errgroup.Group
	var inflight sync.WaitGroup
	for _, intent := range intents {
		intent := intent
		st.scanned.Add(1)

		if _, loaded := processingIntents.LoadOrStore(intent.ID, struct{}{}); loaded {
			st.skipped.Add(1)
			continue
		}

		inflight.Add(1)
		g.Go(func() error {
			err := s.workerPool.AddTask(ctx, func() error {
				defer inflight.Done()
				defer processingIntents.Delete(intent.ID)
				if err := s.handleIntent(ctx, intent, &st); err != nil {
					st.errors.Add(1)
					zap.L().Error("failed to reconcile payment intent",
						zap.String("runID", runID),
						zap.Int64("intentID", intent.ID),
						zap.Error(err),
					)
				}
				return nil
			})
			if err != nil {
				inflight.Done()
				processingIntents.Delete(intent.ID)
				return err
			}
			return nil
		})
	}

	// g.Wait only covers submission; the counts are not final until every
	// queued task has run.
	if err := g.Wait(); err != nil {
		inflight.Wait()
		return st.snapshot(), err
	}
	inflight.Wait()

	result := st.snapshot()
	zap.L().Info("reconciliation run finished",
		zap.String("runID", runID),
		zap.Int("scanned", result.Scanned),
		zap.Int("credited", result.Credited),
		zap.Int("reversed", result.Reversed),
		zap.Int("closed", result.Closed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

func (s *Service) handleIntent(ctx context.Context, intent domain.PaymentIntent, st *stats) error {
	if intent.ProviderPaymentID == "" {
		// Nothing to ask the provider about; leave the intent inspectable.
		st.skipped.Add(1)
		return s.paymentRepo.SetReviewNote(ctx, intent.ID, "stuck without provider payment id")
	}

	status, err := s.client.GetPaymentStatus(ctx, intent.ProviderPaymentID)
	if err != nil {
		return err
	}

	switch status.Status {
	case provider.StatusPaid:
		if err := s.ledger.MarkPaid(ctx, &intent); err != nil {
			return err
		}
		if intent.ExpectedCredits <= 0 {
			st.skipped.Add(1)
			return s.paymentRepo.SetReviewNote(ctx, intent.ID, "paid but no credits mapped")
		}
		credited, _, err := s.ledger.CreditPayment(ctx, &intent)
		if err != nil {
			return err
		}
		if credited {
			st.credited.Add(1)
		} else {
			st.skipped.Add(1)
		}
	case provider.StatusFailed:
		if err := s.ledger.MarkTerminal(ctx, &intent, domain.IntentStatusFailed); err != nil {
			return err
		}
		st.closed.Add(1)
	case provider.StatusCanceled:
		if err := s.ledger.MarkTerminal(ctx, &intent, domain.IntentStatusCanceled); err != nil {
			return err
		}
		st.closed.Add(1)
	case provider.StatusRefunded:
		if _, err := s.ledger.ReversePayment(ctx, &intent, domain.IntentStatusRefunded); err != nil {
			return err
		}
		st.reversed.Add(1)
	case provider.StatusPending:
		st.skipped.Add(1)
	default:
		zap.L().Warn("unrecognized provider status",
			zap.Int64("intentID", intent.ID),
			zap.String("status", status.Status),
		)
		st.skipped.Add(1)
	}
	return nil
}
