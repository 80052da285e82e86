package webhookservice

import (
	"encoding/json"
	"fmt"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/google/uuid"
)

// Event types the provider delivers. Unknown types are acknowledged and
// ignored so provider schema evolution never turns into a retry storm.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.paid"
	EventPaymentFailed     = "payment.failed"
	EventPaymentCanceled   = "payment.canceled"
	EventChargeRefunded    = "charge.refunded"
	EventDisputeCreated    = "charge.dispute.created"
)

// benignEvents carry no ledger consequence but are expected traffic.
var benignEvents = map[string]struct{}{
	"customer.created":          {},
	"customer.updated":          {},
	"payment.created":           {},
	"checkout.session.expired":  {},
	"invoice.payment_succeeded": {},
}

// Envelope is the outer shape every provider event shares; Data is decoded
// once into the type-specific payload during dispatch.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt int64           `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type LineItem struct {
	PriceID  string `json:"price_id"`
	Quantity int64  `json:"quantity"`
}

// PaymentEventData is the payload of checkout-completion and invoice-paid
// events. Loosely populated by the provider; every field is optional.
type PaymentEventData struct {
	SessionID     string            `json:"session_id"`
	PaymentID     string            `json:"payment_id"`
	CustomerID    string            `json:"customer_id"`
	CustomerEmail string            `json:"customer_email"`
	AmountMinor   int64             `json:"amount_minor"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	LineItems     []LineItem        `json:"line_items"`
}

// ReversalEventData is the payload of refund and dispute events.
type ReversalEventData struct {
	PaymentID   string `json:"payment_id"`
	SessionID   string `json:"session_id"`
	AmountMinor int64  `json:"amount_minor"`
	Reason      string `json:"reason"`
}

func (d *ReversalEventData) Reference() string {
	if d.PaymentID != "" {
		return d.PaymentID
	}
	return d.SessionID
}

// ParseEnvelope validates the outer event shape. Events delivered without an
// id (synthesized test events do this) get a generated one so the dedup
// insert still works; the payment advisory lock covers their idempotency.
func ParseEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", domain.ErrMalformedPayload)
	}
	if env.ID == "" {
		env.ID = "gen_" + uuid.NewString()
	}
	return &env, nil
}
