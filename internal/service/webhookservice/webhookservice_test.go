package webhookservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkotelnikov/creditcore/internal/config"
	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"github.com/dkotelnikov/creditcore/internal/provider"
	"github.com/dkotelnikov/creditcore/pkg/sign"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"
)

const testSecret = "whsec_test"

func NewMock(t *testing.T) (*Service, *MockEventRepo, *MockPaymentRepo, *MockResolver, *MockLedger, *MockProviderClient, *pg.MockTXManager) {
	ctrl := gomock.NewController(t)
	events := NewMockEventRepo(ctrl)
	payments := NewMockPaymentRepo(ctrl)
	resolver := NewMockResolver(ctrl)
	ledger := NewMockLedger(ctrl)
	client := NewMockProviderClient(ctrl)
	txManager := pg.NewMockTXManager(ctrl)

	cfg := &config.Config{
		ProviderName:  "stripe",
		WebhookSecret: testSecret,
		SigTolerance:  sign.DefaultTolerance,
		Currencies:    "usd,eur",
		PriceTable:    "price_pro:100,price_lite:10",
	}
	service := New(cfg, events, payments, resolver, ledger, client, txManager)
	defer ctrl.Finish()
	return service, events, payments, resolver, ledger, client, txManager
}

func signed(payload string) ([]byte, string) {
	body := []byte(payload)
	return body, sign.Header([]byte(testSecret), time.Now().Unix(), body)
}

func passthroughTx(txManager *pg.MockTXManager) {
	txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, fn pg.TransactionalFn) error {
		return fn(ctx)
	})
}

func TestHandle_Signature(t *testing.T) {
	service, _, _, _, _, _, _ := NewMock(t)

	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{}}`)

	tests := []struct {
		name        string
		header      string
		expectedErr error
	}{
		{
			name:        "Missing header",
			header:      "",
			expectedErr: sign.ErrMissingSignature,
		},
		{
			name:        "Tampered payload",
			header:      sign.Header([]byte(testSecret), time.Now().Unix(), []byte(`{"other":true}`)),
			expectedErr: sign.ErrInvalidSignature,
		},
		{
			name:        "Stale timestamp",
			header:      sign.Header([]byte(testSecret), time.Now().Add(-10*time.Minute).Unix(), payload),
			expectedErr: sign.ErrStaleEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No store expectations: a rejected delivery must not touch storage.
			ack, err := service.Handle(context.Background(), payload, tt.header)
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, ack)
		})
	}
}

func TestHandle_MalformedPayload(t *testing.T) {
	service, _, _, _, _, _, _ := NewMock(t)

	payload, header := signed(`{"id":"evt_1"}`)
	ack, err := service.Handle(context.Background(), payload, header)
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	assert.Nil(t, ack)
}

func TestHandle_Dedup(t *testing.T) {
	service, events, _, _, _, _, txManager := NewMock(t)

	payload, header := signed(`{"id":"evt_1","type":"invoice.paid","data":{"payment_id":"pi_1"}}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_1", gomock.Any()).Return(false, nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Equal(t, SkipAlreadyProcessed, ack.Skipped)
}

func TestHandle_CheckoutCompleted(t *testing.T) {
	service, events, payments, resolver, ledger, _, txManager := NewMock(t)

	userID := int64(7)

	payload, header := signed(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"session_id": "cs_1",
			"payment_id": "pi_1",
			"customer_id": "cus_1",
			"customer_email": "buyer@example.com",
			"amount_minor": 999,
			"currency": "USD",
			"metadata": {"user_id": "7"},
			"line_items": [{"price_id": "price_pro", "quantity": 2}]
		}
	}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_1", gomock.Any()).Return(true, nil)
	payments.EXPECT().FindBySessionID(gomock.Any(), "stripe", "cs_1").Return(nil, nil)
	payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_1").Return(nil, nil)
	payments.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, intent *domain.PaymentIntent) error {
		intent.ID = 42
		return nil
	})
	resolver.EXPECT().ResolveOrCreate(gomock.Any(), gomock.Any()).Return(userID, nil)
	payments.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
	ledger.EXPECT().MarkPaid(gomock.Any(), gomock.Any()).Return(nil)
	ledger.EXPECT().CreditPayment(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, intent *domain.PaymentIntent) (bool, int64, error) {
		assert.Equal(t, int64(200), intent.ExpectedCredits)
		assert.Equal(t, "usd", intent.Currency)
		assert.Equal(t, "pi_1", intent.ProviderPaymentID)
		return true, 200, nil
	})

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Equal(t, int64(200), ack.CreditsAdded)
	assert.Equal(t, "7", ack.UserID)
	assert.Empty(t, ack.Skipped)
}

func TestHandle_InvoicePaid_ExistingIntent(t *testing.T) {
	service, events, payments, _, ledger, _, txManager := NewMock(t)

	userID := int64(3)

	payload, header := signed(`{
		"id": "evt_2",
		"type": "invoice.paid",
		"data": {"payment_id": "pi_2", "metadata": {"credits": "50"}}
	}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_2", gomock.Any()).Return(true, nil)
	payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_2").Return(&domain.PaymentIntent{
		ID: 5, UserID: &userID, Provider: "stripe", ProviderPaymentID: "pi_2", Status: domain.IntentStatusInit,
	}, nil)
	payments.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
	ledger.EXPECT().MarkPaid(gomock.Any(), gomock.Any()).Return(nil)
	ledger.EXPECT().CreditPayment(gomock.Any(), gomock.Any()).Return(true, int64(50), nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.Equal(t, int64(50), ack.CreditsAdded)
	assert.Equal(t, "3", ack.UserID)
}

// A charge first credited through an event naming only its payment id must
// be matched by a later checkout event naming the session: one intent row,
// no second credit.
func TestHandle_CheckoutAfterPaymentIDCredited(t *testing.T) {
	service, events, payments, _, ledger, _, txManager := NewMock(t)

	userID := int64(7)

	payload, header := signed(`{
		"id": "evt_20",
		"type": "checkout.session.completed",
		"data": {
			"session_id": "cs_9",
			"payment_id": "pi_1",
			"line_items": [{"price_id": "price_pro", "quantity": 1}]
		}
	}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_20", gomock.Any()).Return(true, nil)
	payments.EXPECT().FindBySessionID(gomock.Any(), "stripe", "cs_9").Return(nil, nil)
	payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_1").Return(&domain.PaymentIntent{
		ID: 6, UserID: &userID, Provider: "stripe", ProviderPaymentID: "pi_1",
		ExpectedCredits: 100, Status: domain.IntentStatusCredited,
	}, nil)
	// No Save expectation: a second row for the same charge is a defect.
	payments.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, intent *domain.PaymentIntent) error {
		assert.Equal(t, int64(6), intent.ID)
		assert.Equal(t, "cs_9", intent.ProviderSessionID)
		return nil
	})
	ledger.EXPECT().MarkPaid(gomock.Any(), gomock.Any()).Return(nil)
	ledger.EXPECT().CreditPayment(gomock.Any(), gomock.Any()).Return(false, int64(0), nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Zero(t, ack.CreditsAdded)
	assert.Equal(t, "7", ack.UserID)
}

func TestHandle_UnsupportedCurrency(t *testing.T) {
	service, events, _, _, _, _, txManager := NewMock(t)

	payload, header := signed(`{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"data": {"session_id": "cs_3", "currency": "rub"}
	}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_3", gomock.Any()).Return(true, nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Equal(t, SkipUnsupportedCurrency, ack.Skipped)
}

func TestHandle_NoUserMapping(t *testing.T) {
	service, events, payments, resolver, _, _, txManager := NewMock(t)

	payload, header := signed(`{
		"id": "evt_4",
		"type": "checkout.session.completed",
		"data": {"session_id": "cs_4", "customer_id": "{{customer_id}}"}
	}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_4", gomock.Any()).Return(true, nil)
	payments.EXPECT().FindBySessionID(gomock.Any(), "stripe", "cs_4").Return(nil, nil)
	payments.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, intent *domain.PaymentIntent) error {
		intent.ID = 10
		return nil
	})
	resolver.EXPECT().ResolveOrCreate(gomock.Any(), gomock.Any()).Return(int64(0), domain.ErrUnresolvableUser)
	payments.EXPECT().SetReviewNote(gomock.Any(), int64(10), "no user mapping for event evt_4").Return(nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Equal(t, SkipNoUserMapping, ack.Skipped)
	assert.Zero(t, ack.CreditsAdded)
}

func TestHandle_NoMappedPrices(t *testing.T) {
	service, events, payments, resolver, _, client, txManager := NewMock(t)

	userID := int64(7)

	payload, header := signed(`{
		"id": "evt_5",
		"type": "checkout.session.completed",
		"data": {"session_id": "cs_5", "customer_email": "buyer@example.com"}
	}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_5", gomock.Any()).Return(true, nil)
	payments.EXPECT().FindBySessionID(gomock.Any(), "stripe", "cs_5").Return(nil, nil)
	payments.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, intent *domain.PaymentIntent) error {
		intent.ID = 11
		return nil
	})
	resolver.EXPECT().ResolveOrCreate(gomock.Any(), gomock.Any()).Return(userID, nil)
	client.EXPECT().ListLineItems(gomock.Any(), "cs_5").Return([]provider.LineItem{
		{PriceID: "price_unknown", Quantity: 1},
	}, nil)
	payments.EXPECT().SetReviewNote(gomock.Any(), int64(11), "no credits mapped for event evt_5").Return(nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Equal(t, SkipNoMappedPrices, ack.Skipped)
}

func TestHandle_Refund(t *testing.T) {
	service, events, payments, _, ledger, _, txManager := NewMock(t)

	userID := int64(2)

	tests := []struct {
		name            string
		payload         string
		prepareMock     func()
		expectedSkip    string
		expectedCredits int64
	}{
		{
			name:    "Refund of a credited payment",
			payload: `{"id":"evt_6","type":"charge.refunded","data":{"payment_id":"pi_6"}}`,
			prepareMock: func() {
				events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_6", gomock.Any()).Return(true, nil)
				payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_6").Return(&domain.PaymentIntent{
					ID: 6, UserID: &userID, Provider: "stripe", ProviderPaymentID: "pi_6",
					ExpectedCredits: 100, Status: domain.IntentStatusCredited,
				}, nil)
				ledger.EXPECT().ReversePayment(gomock.Any(), gomock.Any(), domain.IntentStatusRefunded).Return(int64(-100), nil)
			},
			expectedCredits: -100,
		},
		{
			name:    "Refund of an uncredited payment applies no delta",
			payload: `{"id":"evt_7","type":"charge.refunded","data":{"payment_id":"pi_7"}}`,
			prepareMock: func() {
				events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_7", gomock.Any()).Return(true, nil)
				payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_7").Return(&domain.PaymentIntent{
					ID: 7, UserID: &userID, Provider: "stripe", ProviderPaymentID: "pi_7",
					ExpectedCredits: 100, Status: domain.IntentStatusInit,
				}, nil)
				ledger.EXPECT().ReversePayment(gomock.Any(), gomock.Any(), domain.IntentStatusRefunded).Return(int64(0), nil)
			},
			expectedCredits: 0,
		},
		{
			name:    "Refund for unknown payment acknowledged",
			payload: `{"id":"evt_8","type":"charge.refunded","data":{"payment_id":"pi_missing"}}`,
			prepareMock: func() {
				events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_8", gomock.Any()).Return(true, nil)
				payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_missing").Return(nil, nil)
			},
			expectedSkip: SkipPaymentNotFound,
		},
		{
			name:    "Dispute on an already refunded payment",
			payload: `{"id":"evt_9","type":"charge.dispute.created","data":{"payment_id":"pi_9"}}`,
			prepareMock: func() {
				events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_9", gomock.Any()).Return(true, nil)
				payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_9").Return(&domain.PaymentIntent{
					ID: 9, UserID: &userID, Provider: "stripe", ProviderPaymentID: "pi_9",
					ExpectedCredits: 100, Status: domain.IntentStatusRefunded,
				}, nil)
				ledger.EXPECT().ReversePayment(gomock.Any(), gomock.Any(), domain.IntentStatusChargeback).
					Return(int64(0), domain.ErrInvalidTransition)
				payments.EXPECT().SetReviewNote(gomock.Any(), int64(9), gomock.Any()).Return(nil)
			},
			expectedSkip: SkipInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passthroughTx(txManager)
			tt.prepareMock()

			payload, header := signed(tt.payload)
			ack, err := service.Handle(context.Background(), payload, header)
			assert.NoError(t, err)
			assert.True(t, ack.Ok)
			assert.Equal(t, tt.expectedSkip, ack.Skipped)
			assert.Equal(t, tt.expectedCredits, ack.CreditsAdded)
		})
	}
}

func TestHandle_Terminal(t *testing.T) {
	service, events, payments, _, ledger, _, txManager := NewMock(t)

	tests := []struct {
		name         string
		payload      string
		prepareMock  func()
		expectedSkip string
	}{
		{
			name:    "Payment failed closes the intent",
			payload: `{"id":"evt_10","type":"payment.failed","data":{"payment_id":"pi_10"}}`,
			prepareMock: func() {
				events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_10", gomock.Any()).Return(true, nil)
				payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_10").Return(&domain.PaymentIntent{
					ID: 10, Provider: "stripe", ProviderPaymentID: "pi_10", Status: domain.IntentStatusInit,
				}, nil)
				ledger.EXPECT().MarkTerminal(gomock.Any(), gomock.Any(), domain.IntentStatusFailed).Return(nil)
			},
		},
		{
			name:    "Cancel of a credited payment is rejected",
			payload: `{"id":"evt_11","type":"payment.canceled","data":{"payment_id":"pi_11"}}`,
			prepareMock: func() {
				events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_11", gomock.Any()).Return(true, nil)
				payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_11").Return(&domain.PaymentIntent{
					ID: 11, Provider: "stripe", ProviderPaymentID: "pi_11", Status: domain.IntentStatusCredited,
				}, nil)
				ledger.EXPECT().MarkTerminal(gomock.Any(), gomock.Any(), domain.IntentStatusCanceled).
					Return(domain.ErrInvalidTransition)
			},
			expectedSkip: SkipInvalidState,
		},
		{
			name:    "Terminal event for unknown payment acknowledged",
			payload: `{"id":"evt_12","type":"payment.failed","data":{"payment_id":"pi_missing"}}`,
			prepareMock: func() {
				events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_12", gomock.Any()).Return(true, nil)
				payments.EXPECT().FindByPaymentID(gomock.Any(), "stripe", "pi_missing").Return(nil, nil)
			},
			expectedSkip: SkipPaymentNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passthroughTx(txManager)
			tt.prepareMock()

			payload, header := signed(tt.payload)
			ack, err := service.Handle(context.Background(), payload, header)
			assert.NoError(t, err)
			assert.True(t, ack.Ok)
			assert.Equal(t, tt.expectedSkip, ack.Skipped)
		})
	}
}

func TestHandle_UnknownEventType(t *testing.T) {
	service, events, _, _, _, _, txManager := NewMock(t)

	payload, header := signed(`{"id":"evt_13","type":"price.updated","data":{}}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_13", gomock.Any()).Return(true, nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Equal(t, SkipUnknownEventType, ack.Skipped)
}

func TestHandle_BenignEventType(t *testing.T) {
	service, events, _, _, _, _, txManager := NewMock(t)

	payload, header := signed(`{"id":"evt_14","type":"customer.created","data":{}}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_14", gomock.Any()).Return(true, nil)

	ack, err := service.Handle(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Empty(t, ack.Skipped)
}

func TestHandle_StoreErrorAsksForRetry(t *testing.T) {
	service, events, _, _, _, _, txManager := NewMock(t)

	payload, header := signed(`{"id":"evt_15","type":"invoice.paid","data":{"payment_id":"pi_15"}}`)

	passthroughTx(txManager)
	events.EXPECT().RecordIfNew(gomock.Any(), "stripe", "evt_15", gomock.Any()).Return(false, errors.New("database error"))

	ack, err := service.Handle(context.Background(), payload, header)
	assert.Error(t, err)
	assert.Nil(t, ack)
}
