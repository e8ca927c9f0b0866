package v1

import (
	"github.com/fundraising/pledge-service/internal/usecase"
	"github.com/fundraising/pledge-service/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func NewPledgeRoutes(apiV1Group fiber.Router, pledges usecase.PledgeUseCase, webhooks usecase.WebhookUseCase, l logger.Interface) {
	r := &V1{pledges: pledges, webhooks: webhooks, logger: l}

	pledgesGroup := apiV1Group.Group("/pledges")
	{
		pledgesGroup.Post("/recurring", r.createRecurring)
		pledgesGroup.Get("/history/:userId", r.getUserPledgeHistory)
		pledgesGroup.Get("/:id", r.getPledge)
		pledgesGroup.Get("/:id/events", r.getPledgeEvents)
		pledgesGroup.Put("/:id/cancel", r.cancelPledge)

		pledgesGroup.Post("/payment_webhook", r.handlePaymentWebhook)
	}
}
