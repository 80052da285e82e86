package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"Init to paid", IntentStatusInit, IntentStatusPaid, true},
		{"Init to failed", IntentStatusInit, IntentStatusFailed, true},
		{"Init to canceled", IntentStatusInit, IntentStatusCanceled, true},
		{"Init to refunded", IntentStatusInit, IntentStatusRefunded, true},
		{"Init to credited skips paid", IntentStatusInit, IntentStatusCredited, false},
		{"Paid to credited", IntentStatusPaid, IntentStatusCredited, true},
		{"Paid to refunded", IntentStatusPaid, IntentStatusRefunded, true},
		{"Credited to refunded", IntentStatusCredited, IntentStatusRefunded, true},
		{"Credited to chargeback", IntentStatusCredited, IntentStatusChargeback, true},
		{"Credited back to paid", IntentStatusCredited, IntentStatusPaid, false},
		{"Failed re-enters paid on late confirmation", IntentStatusFailed, IntentStatusPaid, true},
		{"Canceled re-enters paid on late confirmation", IntentStatusCanceled, IntentStatusPaid, true},
		{"Refunded is terminal", IntentStatusRefunded, IntentStatusPaid, false},
		{"Chargeback is terminal", IntentStatusChargeback, IntentStatusPaid, false},
		{"Unknown status", "BOGUS", IntentStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPaymentIntent_LockKey(t *testing.T) {
	full := PaymentIntent{ID: 5, Provider: "stripe", ProviderSessionID: "cs_1", ProviderPaymentID: "pi_1"}
	bare := PaymentIntent{ID: 5, Provider: "stripe"}

	// The key depends only on the row, never on which provider reference an
	// event happened to carry.
	assert.Equal(t, "stripe:intent:5", full.LockKey())
	assert.Equal(t, full.LockKey(), bare.LockKey())
}

func TestPaymentIntent_IsTerminal(t *testing.T) {
	assert.False(t, (&PaymentIntent{Status: IntentStatusInit}).IsTerminal())
	assert.False(t, (&PaymentIntent{Status: IntentStatusPaid}).IsTerminal())
	assert.True(t, (&PaymentIntent{Status: IntentStatusCredited}).IsTerminal())
	assert.True(t, (&PaymentIntent{Status: IntentStatusFailed}).IsTerminal())
	assert.True(t, (&PaymentIntent{Status: IntentStatusCanceled}).IsTerminal())
	assert.True(t, (&PaymentIntent{Status: IntentStatusRefunded}).IsTerminal())
	assert.True(t, (&PaymentIntent{Status: IntentStatusChargeback}).IsTerminal())
}
