package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dkotelnikov/creditcore/internal/dto"
	"github.com/dkotelnikov/creditcore/pkg/utils"
)

const defaultLimit = 100

type Reconciler interface {
	ReconcilePending(ctx context.Context, limit uint32) (dto.ReconcileResponseDTO, error)
}

type AdminHandler struct {
	reconciler Reconciler
}

func New(reconciler Reconciler) *AdminHandler {
	return &AdminHandler{
		reconciler: reconciler,
	}
}

// Reconcile godoc
//
//	@Summary		Run one reconciliation pass
//	@Description	Scan stuck payment intents against the provider's authoritative status and apply pending transitions. Same code path as the background reconciler.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.ReconcileRequestDTO	false	"Scan limit"
//	@Success		200		{object}	dto.ReconcileResponseDTO
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/admin/reconcile [post]
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileRequestDTO
	// An empty body means default limit.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}

	stats, err := h.reconciler.ReconcilePending(r.Context(), req.Limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Reconciliation failed")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, stats)
}
