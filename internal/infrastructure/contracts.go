package infrastructure

import (
	"context"

	"github.com/fundraising/pledge-service/internal/entity"
)

type (
	EventsSender interface {
		SendEvents(ctx context.Context, records []*entity.OutboxRecord) error
		Close() error
	}
)
