package balance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/dto"
	"github.com/dkotelnikov/creditcore/pkg/auth"
	"github.com/dkotelnikov/creditcore/pkg/utils"
)

type Service interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	Debit(ctx context.Context, userID, amount int64, reason string) (int64, error)
	GetTransactions(ctx context.Context, userID int64) ([]domain.CreditTransaction, error)
}

type BalanceHandler struct {
	ledgerService Service
}

func New(ledgerService Service) *BalanceHandler {
	return &BalanceHandler{
		ledgerService: ledgerService,
	}
}

// GetBalance godoc
//
//	@Summary		Get current user credit balance
//	@Description	Retrieve the materialized credit balance for the authenticated user.
//	@Tags			Balance
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	dto.BalanceResponseDTO	"Current credit balance"
//	@Failure		401	{object}	utils.Response			"User not authorized"
//	@Failure		500	{object}	utils.Response			"Internal server error"
//	@Router			/api/user/balance [get]
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	balance, err := h.ledgerService.GetBalance(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.BalanceResponseDTO{
		Current: balance,
	})
}

// Debit godoc
//
//	@Summary		Spend credits
//	@Description	Debit credits from the authenticated user's balance on behalf of a product feature. Refuses to drive the balance negative.
//	@Tags			Balance
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.DebitRequestDTO	true	"Debit request payload"
//	@Success		200		{object}	dto.DebitResponseDTO	"New balance after debit"
//	@Failure		400		{object}	utils.Response			"Invalid request body"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		402		{object}	utils.Response			"Insufficient credits"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Router			/api/user/balance/debit [post]
func (h *BalanceHandler) Debit(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	var req dto.DebitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.ReasonDebit
	}

	newBalance, err := h.ledgerService.Debit(r.Context(), userID, req.Amount, reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.DebitResponseDTO{
		NewBalance: newBalance,
	})
}

// GetTransactions godoc
//
//	@Summary		Get credit transaction history
//	@Description	List the append-only credit transaction rows for the authenticated user, newest first.
//	@Tags			Balance
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		dto.TransactionResponseDTO	"Transaction history"
//	@Success		204	{object}	utils.Response				"No transactions"
//	@Failure		401	{object}	utils.Response				"User not authorized"
//	@Failure		500	{object}	utils.Response				"Internal server error"
//	@Router			/api/user/transactions [get]
func (h *BalanceHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	txs, err := h.ledgerService.GetTransactions(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	if len(txs) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "Transactions not found")
		return
	}

	response := make([]dto.TransactionResponseDTO, len(txs))
	for i, tx := range txs {
		response[i] = dto.TransactionResponseDTO{
			Delta:           tx.Delta,
			Reason:          tx.Reason,
			PaymentIntentID: tx.PaymentIntentID,
			CreatedAt:       tx.CreatedAt,
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}
