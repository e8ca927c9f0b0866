package v1

import (
	"errors"
	"net/http"

	"github.com/fundraising/pledge-service/internal/dto"
	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
)

type paymentWebhookRequest struct {
	PledgeID string `json:"pledgeId"`
	Status   string `json:"status"`
	EventID  string `json:"eventId"`
}

// handlePaymentWebhook accepts payment-processor callbacks. Safe to call any
// number of times with the same eventId: duplicates return 200 without
// touching pledge state.
func (r *V1) handlePaymentWebhook(ctx *fiber.Ctx) error {
	var req paymentWebhookRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid request body")
	}

	err := r.webhooks.ProcessPaymentResult(ctx.UserContext(), dto.PaymentWebhook{
		PledgeID: req.PledgeID,
		Status:   req.Status,
		EventID:  req.EventID,
	})
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrValidation):
			return errorResponse(ctx, http.StatusBadRequest, "pledgeId, status and eventId are required")
		case errors.Is(err, errs.ErrRecordNotFound):
			return errorResponse(ctx, http.StatusNotFound, "pledge not found")
		case errors.Is(err, errs.ErrPledgeState):
			return errorResponse(ctx, http.StatusConflict, "pledge is already cancelled or completed")
		}
		r.logger.Error(err, "restapi - v1 - handlePaymentWebhook")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.SendStatus(http.StatusOK)
}
