package restapi

import (
	v1 "github.com/fundraising/pledge-service/internal/controller/restapi/v1"
	"github.com/fundraising/pledge-service/internal/usecase"
	"github.com/fundraising/pledge-service/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func NewRouter(app *fiber.App, pledges usecase.PledgeUseCase, webhooks usecase.WebhookUseCase, l logger.Interface) {
	apiV1Group := app.Group("/v1")
	{
		v1.NewPledgeRoutes(apiV1Group, pledges, webhooks, l)
	}
}
