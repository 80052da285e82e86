package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/internal/dto"
	"github.com/dkotelnikov/creditcore/pkg/sign"
	"github.com/dkotelnikov/creditcore/pkg/utils"
)

// Signature verification is the authentication mechanism for this endpoint.
const (
	signatureHeader = "Signature"
	bodyLimit       = 1 << 20
)

type Service interface {
	Handle(ctx context.Context, payload []byte, sigHeader string) (*dto.WebhookAckDTO, error)
}

type WebhookHandler struct {
	webhookService Service
}

func New(webhookService Service) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// HandleEvent godoc
//
//	@Summary		Receive a payment provider event
//	@Description	Verify, deduplicate and apply a signed provider webhook event. A 200 response means the delivery must not be retried; any other status asks the provider to redeliver.
//	@Tags			Webhooks
//	@Accept			json
//	@Produce		json
//	@Param			Signature	header		string	true	"t=<unix-seconds>,v1=<hex-hmac>"
//	@Success		200			{object}	dto.WebhookAckDTO
//	@Failure		400			{object}	utils.Response	"Invalid signature or malformed payload"
//	@Failure		500			{object}	utils.Response	"Internal error, retry expected"
//	@Router			/api/webhooks/payment [post]
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "can't read request body")
		return
	}

	ack, err := h.webhookService.Handle(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, sign.ErrMissingSignature),
			errors.Is(err, sign.ErrInvalidSignature),
			errors.Is(err, sign.ErrStaleEvent),
			errors.Is(err, domain.ErrMalformedPayload):
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ack)
}
