package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/fundraising/pledge-service/internal/controller/restapi/v1/response"
	"github.com/fundraising/pledge-service/internal/dto"
	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createRecurringRequest struct {
	UserID        string          `json:"userId"`
	CampaignID    string          `json:"campaignId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Interval      string          `json:"interval"`
	StartDate     time.Time       `json:"startDate"`
	PaymentMethod map[string]any  `json:"paymentMethod"`
	Metadata      map[string]any  `json:"metadata"`
}

func (r *V1) createRecurring(ctx *fiber.Ctx) error {
	var req createRecurringRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid request body")
	}

	if req.UserID == "" || req.CampaignID == "" {
		return errorResponse(ctx, http.StatusBadRequest, "userId and campaignId are required")
	}

	pledge, err := r.pledges.CreateRecurring(ctx.UserContext(), dto.CreatePledge{
		UserID:        req.UserID,
		CampaignID:    req.CampaignID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Interval:      req.Interval,
		StartDate:     req.StartDate,
		PaymentMethod: req.PaymentMethod,
		Metadata:      req.Metadata,
	})
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return errorResponse(ctx, http.StatusBadRequest, err.Error())
		}
		r.logger.Error(err, "restapi - v1 - createRecurring")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusCreated).JSON(response.NewPledge(pledge))
}

func (r *V1) getPledge(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	pledge, err := r.pledges.GetByID(ctx.UserContext(), id)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "pledge not found")
		}
		r.logger.Error(err, "restapi - v1 - getPledge")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewPledge(pledge))
}

// getPledgeEvents returns the pledge's full outbox audit trail, delivered
// and dead-lettered events included.
func (r *V1) getPledgeEvents(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	// An unknown pledge is a 404, not an empty trail.
	if _, err := r.pledges.GetByID(ctx.UserContext(), id); err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "pledge not found")
		}
		r.logger.Error(err, "restapi - v1 - getPledgeEvents")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	records, err := r.pledges.EventsByPledge(ctx.UserContext(), id)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - getPledgeEvents")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewOutboxEventList(records))
}

func (r *V1) getUserPledgeHistory(ctx *fiber.Ctx) error {
	userID := ctx.Params("userId")
	if userID == "" {
		return errorResponse(ctx, http.StatusBadRequest, "invalid user id")
	}

	pledges, err := r.pledges.HistoryByUser(ctx.UserContext(), userID)
	if err != nil {
		r.logger.Error(err, "restapi - v1 - getUserPledgeHistory")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(response.NewPledgeList(pledges))
}

func (r *V1) cancelPledge(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "invalid id")
	}

	err = r.pledges.Cancel(ctx.UserContext(), id)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrRecordNotFound):
			return errorResponse(ctx, http.StatusNotFound, "pledge not found")
		case errors.Is(err, errs.ErrPledgeState):
			return errorResponse(ctx, http.StatusConflict, "pledge is already cancelled or completed")
		}
		r.logger.Error(err, "restapi - v1 - cancelPledge")

		return errorResponse(ctx, http.StatusInternalServerError, "storage problems")
	}

	return ctx.SendStatus(http.StatusNoContent)
}
