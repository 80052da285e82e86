package domain

import (
	"strconv"
	"time"
)

type User struct {
	ID           int64      `db:"id"`
	Email        string     `db:"email"`
	DisplayName  string     `db:"display_name"`
	PasswordHash string     `db:"password_hash"`
	Balance      int64      `db:"balance"`
	AnonymizedAt *time.Time `db:"anonymized_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

// ProviderIdentity maps a provider-side customer id onto an internal user.
// Rows are created lazily, on first successful resolution.
type ProviderIdentity struct {
	ID                 int64     `db:"id"`
	Provider           string    `db:"provider"`
	ProviderCustomerID string    `db:"provider_customer_id"`
	UserID             int64     `db:"user_id"`
	CreatedAt          time.Time `db:"created_at"`
}

const (
	// IntentStatusInit payment observed, no provider confirmation yet;
	IntentStatusInit string = "INIT"
	// IntentStatusPaid provider confirmed the charge, credits not applied yet;
	IntentStatusPaid string = "PAID"
	// IntentStatusCredited credits applied, terminal;
	IntentStatusCredited string = "CREDITED"
	// IntentStatusFailed charge failed;
	IntentStatusFailed string = "FAILED"
	// IntentStatusCanceled charge canceled before confirmation;
	IntentStatusCanceled string = "CANCELED"
	// IntentStatusRefunded charge refunded after crediting;
	IntentStatusRefunded string = "REFUNDED"
	// IntentStatusChargeback charge reversed through the bank.
	IntentStatusChargeback string = "CHARGEBACK"
)

var intentTransitions = map[string][]string{
	IntentStatusInit:     {IntentStatusPaid, IntentStatusFailed, IntentStatusCanceled, IntentStatusRefunded, IntentStatusChargeback},
	IntentStatusFailed:   {IntentStatusPaid},
	IntentStatusCanceled: {IntentStatusPaid},
	IntentStatusPaid:     {IntentStatusCredited, IntentStatusRefunded, IntentStatusChargeback},
	IntentStatusCredited: {IntentStatusRefunded, IntentStatusChargeback},
}

// CanTransition reports whether the payment state machine allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range intentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentIntent struct {
	ID                int64     `db:"id"`
	UserID            *int64    `db:"user_id"`
	Provider          string    `db:"provider"`
	ProviderSessionID string    `db:"provider_session_id"`
	ProviderPaymentID string    `db:"provider_payment_id"`
	AmountMinor       int64     `db:"amount_minor"`
	Currency          string    `db:"currency"`
	ExpectedCredits   int64     `db:"expected_credits"`
	Status            string    `db:"status"`
	RawPayload        []byte    `db:"raw_payload"`
	ReviewNote        string    `db:"review_note"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// LockKey returns the identifier the ledger advisory lock is scoped to. The
// row id is the one name a charge has that does not depend on which provider
// reference an event happened to carry, so concurrent deliveries naming the
// same charge differently still contend on the same lock.
func (p *PaymentIntent) LockKey() string {
	return p.Provider + ":intent:" + strconv.FormatInt(p.ID, 10)
}

func (p *PaymentIntent) IsTerminal() bool {
	switch p.Status {
	case IntentStatusCredited, IntentStatusFailed, IntentStatusCanceled, IntentStatusRefunded, IntentStatusChargeback:
		return true
	}
	return false
}

const (
	ReasonPurchase   string = "PURCHASE"
	ReasonRefund     string = "REFUND"
	ReasonChargeback string = "CHARGEBACK"
	ReasonDebit      string = "DEBIT"
)

// CreditTransaction is an append-only audit row; the user's balance is the
// running sum of deltas and is never recomputed from scratch on the hot path.
type CreditTransaction struct {
	ID              int64             `db:"id"`
	UserID          int64             `db:"user_id"`
	PaymentIntentID *int64            `db:"payment_intent_id"`
	Delta           int64             `db:"delta"`
	Reason          string            `db:"reason"`
	Metadata        map[string]string `db:"metadata"`
	CreatedAt       time.Time         `db:"created_at"`
}

type ProcessedEvent struct {
	ID          int64     `db:"id"`
	Provider    string    `db:"provider"`
	EventID     string    `db:"event_id"`
	Fingerprint string    `db:"fingerprint"`
	ProcessedAt time.Time `db:"processed_at"`
}
