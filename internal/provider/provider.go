// Package provider is the read-side client for the payment provider's API,
// used when price data is not embedded in an event and by reconciliation to
// fetch a payment's authoritative status.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dkotelnikov/creditcore/internal/config"
	"github.com/dkotelnikov/creditcore/pkg/clients"
	"go.uber.org/zap"
)

const (
	maxRetries    = 3
	retryInterval = time.Second * 1
)

// Authoritative payment statuses the provider reports.
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
	StatusRefunded = "refunded"
)

type PaymentStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type LineItem struct {
	PriceID  string `json:"price_id"`
	Quantity int64  `json:"quantity"`
}

type lineItemsResponse struct {
	Items []LineItem `json:"items"`
}

type Client struct {
	url    string
	apiKey string
	client clients.HTTPClientI
}

func New(cfg *config.Config, client clients.HTTPClientI) *Client {
	return &Client{
		url:    cfg.ProviderAddress,
		apiKey: cfg.ProviderAPIKey,
		client: client,
	}
}

// GetPaymentStatus fetches the provider's authoritative view of a payment.
func (c *Client) GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatus, error) {
	body, err := c.get(ctx, c.url+"/v1/payments/"+paymentID)
	if err != nil {
		return nil, err
	}
	var status PaymentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse payment status: %w", err)
	}
	if status.ID != "" && status.ID != paymentID {
		return nil, fmt.Errorf("payment id mismatch: expected %s, got %s", paymentID, status.ID)
	}
	return &status, nil
}

// ListLineItems fetches the line items of a checkout session.
func (c *Client) ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	body, err := c.get(ctx, c.url+"/v1/sessions/"+sessionID+"/line_items")
	if err != nil {
		return nil, err
	}
	var resp lineItemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse line items: %w", err)
	}
	return resp.Items, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		statusCode, respBody, respHeaders, err := c.client.Get(url, headers)
		if err != nil {
			if attempt < maxRetries {
				time.Sleep(retryInterval * time.Duration(attempt))
				continue
			}
			return nil, fmt.Errorf("provider request failed after %d retries: %w", maxRetries, err)
		}

		switch statusCode {
		case http.StatusOK:
			return respBody, nil
		case http.StatusNotFound:
			return nil, fmt.Errorf("provider resource not found: %s", url)
		case http.StatusTooManyRequests:
			if attempt >= maxRetries {
				return nil, fmt.Errorf("provider rate limit persisted after %d retries", maxRetries)
			}
			wait := retryAfter(respHeaders, attempt)
			zap.L().Warn("provider rate limit detected, retrying", zap.Duration("retryAfter", wait), zap.Int("attempt", attempt))
			time.Sleep(wait)
		default:
			zap.L().Error("unexpected provider status code", zap.Int("status", statusCode), zap.String("url", url))
			return nil, fmt.Errorf("unexpected provider status code %d", statusCode)
		}
	}
}

func retryAfter(headers http.Header, attempt int) time.Duration {
	wait := retryInterval * time.Duration(attempt)
	if header := headers.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			wait = time.Duration(seconds) * time.Second
		}
	}
	return wait
}
