package v1

import (
	"github.com/fundraising/pledge-service/internal/usecase"
	"github.com/fundraising/pledge-service/pkg/logger"
)

type V1 struct {
	pledges  usecase.PledgeUseCase
	webhooks usecase.WebhookUseCase
	logger   logger.Interface
}
