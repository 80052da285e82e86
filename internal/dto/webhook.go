package dto

// WebhookAckDTO is returned with HTTP 200 for every "do not retry" outcome.
// Any other status tells the provider to redeliver.
type WebhookAckDTO struct {
	Ok           bool   `json:"ok"`
	CreditsAdded int64  `json:"credits_added,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Skipped      string `json:"skipped,omitempty"`
	Error        string `json:"error,omitempty"`
}
