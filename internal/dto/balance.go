package dto

import "time"

type BalanceResponseDTO struct {
	Current int64 `json:"current"`
}

type DebitRequestDTO struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type DebitResponseDTO struct {
	NewBalance int64 `json:"new_balance"`
}

type TransactionResponseDTO struct {
	Delta           int64     `json:"delta"`
	Reason          string    `json:"reason"`
	PaymentIntentID *int64    `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type ReconcileRequestDTO struct {
	Limit uint32 `json:"limit"`
}

type ReconcileResponseDTO struct {
	Scanned  int `json:"scanned"`
	Credited int `json:"credited"`
	Reversed int `json:"reversed"`
	Closed   int `json:"closed"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}
