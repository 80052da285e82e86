package domain

import "errors"

// Signature errors live in pkg/sign next to the verifier; everything here is
// a business outcome the orchestrator maps onto acknowledgement semantics.
var (
	ErrMalformedPayload    = errors.New("malformed event payload")
	ErrUnresolvableUser    = errors.New("no user mapping for event")
	ErrNoCreditsMapped     = errors.New("no credits mapped for price")
	ErrPaymentNotFound     = errors.New("payment intent not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTransition   = errors.New("invalid payment status transition")
)
