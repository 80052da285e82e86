package webhookservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkotelnikov/creditcore/internal/config"
	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/dto"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"github.com/dkotelnikov/creditcore/internal/provider"
	"github.com/dkotelnikov/creditcore/internal/service/resolverservice"
	"github.com/dkotelnikov/creditcore/pkg/sign"
	"go.uber.org/zap"
)

// Skip markers returned in the acknowledgement for business-level "cannot
// proceed" outcomes. These are acknowledged with 200: retrying a data
// problem does not fix it.
const (
	SkipAlreadyProcessed    = "already_processed"
	SkipNoUserMapping       = "no_user_mapping"
	SkipNoMappedPrices      = "no_mapped_prices"
	SkipUnsupportedCurrency = "unsupported_currency"
	SkipPaymentNotFound     = "payment_not_found"
	SkipInvalidState        = "invalid_state"
	SkipUnknownEventType    = "unknown_event_type"
)

type EventRepo interface {
	RecordIfNew(ctx context.Context, provider, eventID, fingerprint string) (bool, error)
}

type PaymentRepo interface {
	FindBySessionID(ctx context.Context, provider, sessionID string) (*domain.PaymentIntent, error)
	FindByPaymentID(ctx context.Context, provider, paymentID string) (*domain.PaymentIntent, error)
	Save(ctx context.Context, intent *domain.PaymentIntent) error
	Update(ctx context.Context, intent *domain.PaymentIntent) error
	SetReviewNote(ctx context.Context, id int64, note string) error
}

type Resolver interface {
	ResolveOrCreate(ctx context.Context, in resolverservice.Input) (int64, error)
}

type Ledger interface {
	MarkPaid(ctx context.Context, intent *domain.PaymentIntent) error
	CreditPayment(ctx context.Context, intent *domain.PaymentIntent) (bool, int64, error)
	ReversePayment(ctx context.Context, intent *domain.PaymentIntent, target string) (int64, error)
	MarkTerminal(ctx context.Context, intent *domain.PaymentIntent, target string) error
}

type ProviderClient interface {
	ListLineItems(ctx context.Context, sessionID string) ([]provider.LineItem, error)
}

// Service drives an inbound event through verify -> dedup -> resolve ->
// ledger inside one transaction. A returned error means "roll back and let
// the provider retry"; every other outcome is acknowledged.
type Service struct {
	verifier   *sign.Verifier
	events     EventRepo
	payments   PaymentRepo
	resolver   Resolver
	ledger     Ledger
	client     ProviderClient
	txManager  pg.TXManager
	provider   string
	prices     map[string]int64
	currencies map[string]struct{}
}

func New(cfg *config.Config, events EventRepo, payments PaymentRepo, resolver Resolver, ledger Ledger, client ProviderClient, txManager pg.TXManager) *Service {
	return &Service{
		verifier:   sign.NewVerifier(cfg.WebhookSecret, cfg.SigTolerance, cfg.TrustedTestMode),
		events:     events,
		payments:   payments,
		resolver:   resolver,
		ledger:     ledger,
		client:     client,
		txManager:  txManager,
		provider:   cfg.ProviderName,
		prices:     cfg.PriceCredits(),
		currencies: cfg.SupportedCurrencies(),
	}
}

// Handle is the single entry point for provider deliveries. Signature and
// parse failures surface as errors before any store mutation.
func (s *Service) Handle(ctx context.Context, payload []byte, sigHeader string) (*dto.WebhookAckDTO, error) {
	if err := s.verifier.Verify(payload, sigHeader, time.Now()); err != nil {
		zap.L().Warn("webhook verification failed", zap.Error(err))
		return nil, err
	}

	env, err := ParseEnvelope(payload)
	if err != nil {
		zap.L().Warn("webhook payload rejected", zap.Error(err))
		return nil, err
	}

	ack := &dto.WebhookAckDTO{Ok: true}
	err = s.txManager.Begin(ctx, func(ctx context.Context) error {
		fresh, err := s.events.RecordIfNew(ctx, s.provider, env.ID, fingerprint(payload))
		if err != nil {
			return err
		}
		if !fresh {
			zap.L().Info("event already processed", zap.String("eventID", env.ID))
			ack.Skipped = SkipAlreadyProcessed
			return nil
		}
		return s.dispatch(ctx, env, payload, ack)
	})
	if err != nil {
		zap.L().Error("webhook processing failed", zap.String("eventID", env.ID), zap.String("type", env.Type), zap.Error(err))
		return nil, err
	}
	return ack, nil
}

func (s *Service) dispatch(ctx context.Context, env *Envelope, payload []byte, ack *dto.WebhookAckDTO) error {
	switch env.Type {
	case EventCheckoutCompleted, EventInvoicePaid:
		return s.handlePayment(ctx, env, payload, ack)
	case EventPaymentFailed:
		return s.handleTerminal(ctx, env, domain.IntentStatusFailed, ack)
	case EventPaymentCanceled:
		return s.handleTerminal(ctx, env, domain.IntentStatusCanceled, ack)
	case EventChargeRefunded:
		return s.handleReversal(ctx, env, domain.IntentStatusRefunded, ack)
	case EventDisputeCreated:
		return s.handleReversal(ctx, env, domain.IntentStatusChargeback, ack)
	default:
		if _, ok := benignEvents[env.Type]; !ok {
			zap.L().Info("ignoring unknown event type", zap.String("type", env.Type))
			ack.Skipped = SkipUnknownEventType
		}
		return nil
	}
}

// handlePayment covers both credit-awarding event types. They may arrive in
// any order for the same payment; the CREDITED no-op in the ledger keeps a
// late duplicate from double-applying.
func (s *Service) handlePayment(ctx context.Context, env *Envelope, payload []byte, ack *dto.WebhookAckDTO) error {
	var data PaymentEventData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrMalformedPayload, err)
	}

	if data.Currency != "" {
		if _, ok := s.currencies[strings.ToLower(data.Currency)]; !ok {
			zap.L().Warn("unsupported currency, skipping", zap.String("currency", data.Currency))
			ack.Skipped = SkipUnsupportedCurrency
			return nil
		}
	}

	intent, err := s.findOrCreateIntent(ctx, &data, payload)
	if err != nil {
		return err
	}

	if intent.UserID == nil {
		userID, err := s.resolver.ResolveOrCreate(ctx, resolverservice.Input{
			ProviderCustomerID: data.CustomerID,
			Email:              data.CustomerEmail,
			Metadata:           data.Metadata,
		})
		if errors.Is(err, domain.ErrUnresolvableUser) {
			if noteErr := s.payments.SetReviewNote(ctx, intent.ID, "no user mapping for event "+env.ID); noteErr != nil {
				return noteErr
			}
			ack.Skipped = SkipNoUserMapping
			return nil
		}
		if err != nil {
			return err
		}
		intent.UserID = &userID
	}
	ack.UserID = strconv.FormatInt(*intent.UserID, 10)

	if intent.ExpectedCredits <= 0 {
		credits, err := s.creditsFor(ctx, &data)
		if err != nil {
			return err
		}
		if credits <= 0 {
			if noteErr := s.payments.SetReviewNote(ctx, intent.ID, "no credits mapped for event "+env.ID); noteErr != nil {
				return noteErr
			}
			ack.Skipped = SkipNoMappedPrices
			return nil
		}
		intent.ExpectedCredits = credits
	}

	if data.PaymentID != "" {
		intent.ProviderPaymentID = data.PaymentID
	}
	if data.AmountMinor > 0 {
		intent.AmountMinor = data.AmountMinor
	}
	if data.Currency != "" {
		intent.Currency = strings.ToLower(data.Currency)
	}
	if err := s.payments.Update(ctx, intent); err != nil {
		return err
	}

	if err := s.ledger.MarkPaid(ctx, intent); err != nil {
		return err
	}
	credited, _, err := s.ledger.CreditPayment(ctx, intent)
	if err != nil {
		return err
	}
	if credited {
		ack.CreditsAdded = intent.ExpectedCredits
	}
	return nil
}

func (s *Service) findOrCreateIntent(ctx context.Context, data *PaymentEventData, payload []byte) (*domain.PaymentIntent, error) {
	intent, err := s.lookupIntent(ctx, data.SessionID, data.PaymentID)
	if err != nil {
		return nil, err
	}
	if intent != nil {
		// A row first observed under its payment id adopts the session id
		// here, so later session-keyed events match it directly.
		if intent.ProviderSessionID == "" && data.SessionID != "" {
			intent.ProviderSessionID = data.SessionID
		}
		return intent, nil
	}

	intent = &domain.PaymentIntent{
		Provider:          s.provider,
		ProviderSessionID: data.SessionID,
		ProviderPaymentID: data.PaymentID,
		AmountMinor:       data.AmountMinor,
		Currency:          strings.ToLower(data.Currency),
		Status:            domain.IntentStatusInit,
		RawPayload:        payload,
	}
	if err := s.payments.Save(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// lookupIntent tries every reference the event carries. The same charge may
// be named by its checkout session in one event and by its payment id in
// another; both must land on the same intent row.
func (s *Service) lookupIntent(ctx context.Context, sessionID, paymentID string) (*domain.PaymentIntent, error) {
	if sessionID != "" {
		intent, err := s.payments.FindBySessionID(ctx, s.provider, sessionID)
		if err != nil || intent != nil {
			return intent, err
		}
	}
	if paymentID != "" {
		return s.payments.FindByPaymentID(ctx, s.provider, paymentID)
	}
	return nil, nil
}

// creditsFor consults the static price table first, then the explicit
// credits value in event metadata. When the payload has no line items at
// all, they are fetched from the provider.
func (s *Service) creditsFor(ctx context.Context, data *PaymentEventData) (int64, error) {
	items := data.LineItems
	if len(items) == 0 && data.SessionID != "" {
		fetched, err := s.client.ListLineItems(ctx, data.SessionID)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch line items: %w", err)
		}
		for _, item := range fetched {
			items = append(items, LineItem{PriceID: item.PriceID, Quantity: item.Quantity})
		}
	}

	var total int64
	for _, item := range items {
		credits, ok := s.prices[item.PriceID]
		if !ok {
			continue
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		total += credits * qty
	}
	if total > 0 {
		return total, nil
	}

	if raw, ok := data.Metadata["credits"]; ok {
		credits, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err == nil && credits > 0 {
			return credits, nil
		}
	}
	return 0, nil
}

func (s *Service) handleReversal(ctx context.Context, env *Envelope, target string, ack *dto.WebhookAckDTO) error {
	var data ReversalEventData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrMalformedPayload, err)
	}

	intent, err := s.lookupIntent(ctx, data.SessionID, data.PaymentID)
	if err != nil {
		return err
	}
	if intent == nil {
		// A reversal for a payment never observed: acknowledged, flagged for
		// manual review through the log and the processed-event row.
		zap.L().Error("reversal for unknown payment",
			zap.String("eventID", env.ID),
			zap.String("reference", data.Reference()),
		)
		ack.Skipped = SkipPaymentNotFound
		return nil
	}

	if intent.UserID != nil {
		ack.UserID = strconv.FormatInt(*intent.UserID, 10)
	}

	applied, err := s.ledger.ReversePayment(ctx, intent, target)
	if errors.Is(err, domain.ErrInvalidTransition) {
		if noteErr := s.payments.SetReviewNote(ctx, intent.ID, "reversal rejected: "+err.Error()); noteErr != nil {
			return noteErr
		}
		ack.Skipped = SkipInvalidState
		return nil
	}
	if err != nil {
		return err
	}
	ack.CreditsAdded = applied
	return nil
}

func (s *Service) handleTerminal(ctx context.Context, env *Envelope, target string, ack *dto.WebhookAckDTO) error {
	var data PaymentEventData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrMalformedPayload, err)
	}

	intent, err := s.lookupIntent(ctx, data.SessionID, data.PaymentID)
	if err != nil {
		return err
	}
	if intent == nil {
		ack.Skipped = SkipPaymentNotFound
		return nil
	}

	err = s.ledger.MarkTerminal(ctx, intent, target)
	if errors.Is(err, domain.ErrInvalidTransition) {
		ack.Skipped = SkipInvalidState
		return nil
	}
	return err
}

func fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
