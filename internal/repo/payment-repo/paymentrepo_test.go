package paymentrepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface, *pg.MockTXManager) {
	ctrl := gomock.NewController(t)
	mockTxManager := pg.NewMockTXManager(ctrl)

	mockDB, err := pgxmock.NewPool()
	assert.NoError(t, err)
	repo := New(mockDB, mockTxManager)
	defer mockDB.Close()
	defer ctrl.Finish()

	return repo, mockDB, mockTxManager
}

func intentRows(intents ...domain.PaymentIntent) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "provider", "provider_session_id", "provider_payment_id",
		"amount_minor", "currency", "expected_credits", "status", "review_note", "created_at", "updated_at",
	})
	for _, in := range intents {
		rows.AddRow(in.ID, in.UserID, in.Provider, in.ProviderSessionID, in.ProviderPaymentID,
			in.AmountMinor, in.Currency, in.ExpectedCredits, in.Status, in.ReviewNote, in.CreatedAt, in.UpdatedAt)
	}
	return rows
}

func TestRepository_FindBySessionID(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`provider = $1 AND provider_session_id = $2`)
	userID := int64(1)
	now := time.Now()

	tests := []struct {
		name      string
		mockSetup func()
		expectErr bool
		found     bool
	}{
		{
			name: "Intent found",
			mockSetup: func() {
				mock.ExpectQuery(query).
					WithArgs("stripe", "cs_1").
					WillReturnRows(intentRows(domain.PaymentIntent{
						ID: 1, UserID: &userID, Provider: "stripe", ProviderSessionID: "cs_1",
						AmountMinor: 1000, Currency: "usd", ExpectedCredits: 100,
						Status: domain.IntentStatusInit, CreatedAt: now, UpdatedAt: now,
					}))
			},
			found: true,
		},
		{
			name: "No match returns nil",
			mockSetup: func() {
				mock.ExpectQuery(query).
					WithArgs("stripe", "cs_1").
					WillReturnError(pgx.ErrNoRows)
			},
			found: false,
		},
		{
			name: "Database error",
			mockSetup: func() {
				mock.ExpectQuery(query).
					WithArgs("stripe", "cs_1").
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			intent, err := repo.FindBySessionID(context.Background(), "stripe", "cs_1")

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if tt.found {
				assert.NotNil(t, intent)
			} else {
				assert.Nil(t, intent)
			}
		})
	}
}

func TestRepository_FindByPaymentID(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`provider = $1 AND provider_payment_id = $2`)
	userID := int64(1)
	now := time.Now()

	t.Run("Intent found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("stripe", "pi_1").
			WillReturnRows(intentRows(domain.PaymentIntent{
				ID: 2, UserID: &userID, Provider: "stripe", ProviderPaymentID: "pi_1",
				Status: domain.IntentStatusCredited, CreatedAt: now, UpdatedAt: now,
			}))

		intent, err := repo.FindByPaymentID(context.Background(), "stripe", "pi_1")
		assert.NoError(t, err)
		assert.Equal(t, int64(2), intent.ID)
	})

	t.Run("No match returns nil", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("stripe", "pi_missing").
			WillReturnError(pgx.ErrNoRows)

		intent, err := repo.FindByPaymentID(context.Background(), "stripe", "pi_missing")
		assert.NoError(t, err)
		assert.Nil(t, intent)
	})
}

func TestRepository_Save(t *testing.T) {
	repo, mock, txManager := NewMock(t)

	query := regexp.QuoteMeta(`INSERT INTO payment_intents`)
	now := time.Now()

	t.Run("Intent saved with generated id", func(t *testing.T) {
		intent := &domain.PaymentIntent{
			Provider:          "stripe",
			ProviderSessionID: "cs_1",
			AmountMinor:       1000,
			Currency:          "usd",
			Status:            domain.IntentStatusInit,
			RawPayload:        []byte(`{}`),
		}
		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, fn pg.TransactionalFn) error {
			mock.ExpectQuery(query).
				WithArgs(intent.UserID, "stripe", "cs_1", "", int64(1000), "usd", int64(0), domain.IntentStatusInit, []byte(`{}`)).
				WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(9), now, now))
			return fn(ctx)
		})

		err := repo.Save(context.Background(), intent)
		assert.NoError(t, err)
		assert.Equal(t, int64(9), intent.ID)
	})

	t.Run("Conflicting insert converges on the existing row", func(t *testing.T) {
		userID := int64(3)
		intent := &domain.PaymentIntent{
			Provider:          "stripe",
			ProviderSessionID: "cs_1",
			ProviderPaymentID: "pi_1",
			Status:            domain.IntentStatusInit,
			RawPayload:        []byte(`{}`),
		}
		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, fn pg.TransactionalFn) error {
			// ON CONFLICT DO NOTHING yields no row when another delivery
			// already inserted the charge.
			mock.ExpectQuery(query).
				WithArgs(intent.UserID, "stripe", "cs_1", "pi_1", int64(0), "", int64(0), domain.IntentStatusInit, []byte(`{}`)).
				WillReturnError(pgx.ErrNoRows)
			mock.ExpectQuery(regexp.QuoteMeta(`provider = $1 AND provider_session_id = $2`)).
				WithArgs("stripe", "cs_1").
				WillReturnRows(intentRows(domain.PaymentIntent{
					ID: 4, UserID: &userID, Provider: "stripe", ProviderSessionID: "cs_1",
					ProviderPaymentID: "pi_1", Status: domain.IntentStatusCredited,
					CreatedAt: now, UpdatedAt: now,
				}))
			return fn(ctx)
		})

		err := repo.Save(context.Background(), intent)
		assert.NoError(t, err)
		assert.Equal(t, int64(4), intent.ID)
		assert.Equal(t, domain.IntentStatusCredited, intent.Status)
		assert.Equal(t, []byte(`{}`), intent.RawPayload)
	})

	t.Run("Database error", func(t *testing.T) {
		intent := &domain.PaymentIntent{Provider: "stripe", Status: domain.IntentStatusInit}
		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).Return(errors.New("database error"))

		assert.Error(t, repo.Save(context.Background(), intent))
	})
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo, mock, txManager := NewMock(t)

	query := regexp.QuoteMeta(`SET status = $1, updated_at = now()`)

	t.Run("Status updated", func(t *testing.T) {
		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, fn pg.TransactionalFn) error {
			mock.ExpectExec(query).
				WithArgs(domain.IntentStatusPaid, int64(1)).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			return fn(ctx)
		})

		assert.NoError(t, repo.UpdateStatus(context.Background(), 1, domain.IntentStatusPaid))
	})

	t.Run("Database error", func(t *testing.T) {
		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).Return(errors.New("database error"))

		assert.Error(t, repo.UpdateStatus(context.Background(), 1, domain.IntentStatusPaid))
	})
}

func TestRepository_SetReviewNote(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`SET review_note = $1, updated_at = now()`)

	mock.ExpectExec(query).
		WithArgs("no_user_mapping", int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.SetReviewNote(context.Background(), 4, "no_user_mapping"))
}

func TestRepository_FindStale(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`WHERE status = ANY($1) AND created_at < $2`)
	now := time.Now()
	before := now.Add(-15 * time.Minute)
	statuses := []string{domain.IntentStatusInit, domain.IntentStatusPaid}

	t.Run("Stale intents returned oldest first", func(t *testing.T) {
		userID := int64(2)
		mock.ExpectQuery(query).
			WithArgs(statuses, before, 100).
			WillReturnRows(intentRows(
				domain.PaymentIntent{ID: 1, UserID: &userID, Provider: "stripe", Status: domain.IntentStatusInit, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
				domain.PaymentIntent{ID: 2, UserID: &userID, Provider: "stripe", Status: domain.IntentStatusPaid, CreatedAt: now.Add(-time.Hour), UpdatedAt: now},
			))

		intents, err := repo.FindStale(context.Background(), statuses, before, 100)
		assert.NoError(t, err)
		assert.Len(t, intents, 2)
		assert.Equal(t, int64(1), intents[0].ID)
	})

	t.Run("Database error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(statuses, before, 100).
			WillReturnError(errors.New("database error"))

		intents, err := repo.FindStale(context.Background(), statuses, before, 100)
		assert.Error(t, err)
		assert.Nil(t, intents)
	})
}

func TestRepository_Lock(t *testing.T) {
	repo, mock, _ := NewMock(t)

	query := regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)

	mock.ExpectExec(query).
		WithArgs("stripe:intent:1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	assert.NoError(t, repo.Lock(context.Background(), "stripe:intent:1"))
}
