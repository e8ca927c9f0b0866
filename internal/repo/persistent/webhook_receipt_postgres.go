package persistent

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/fundraising/pledge-service/pkg/postgres"
	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// Table
	receiptsTable = "webhook_receipts"

	// Columns
	receiptEventIDColumn     = "event_id"
	receiptPledgeIDColumn    = "pledge_id"
	receiptStatusColumn      = "status"
	receiptProcessedAtColumn = "processed_at"

	_pgUniqueViolation = "23505"
)

type WebhookReceiptRepo struct {
	*postgres.Postgres
}

func NewWebhookReceiptRepo(pg *postgres.Postgres) *WebhookReceiptRepo {
	return &WebhookReceiptRepo{pg}
}

// Create relies on the primary key over event_id: two concurrent deliveries
// of one external event race on the insert and the loser gets
// errs.ErrDuplicateReceipt, which the gate treats as the duplicate no-op path.
func (r *WebhookReceiptRepo) Create(ctx context.Context, receipt *entity.WebhookReceipt) error {
	sql, args, err := r.Builder.
		Insert(receiptsTable).
		Columns(
			receiptEventIDColumn,
			receiptPledgeIDColumn,
			receiptStatusColumn,
			receiptProcessedAtColumn,
		).
		Values(
			receipt.EventID,
			receipt.PledgeID,
			receipt.Status,
			receipt.ProcessedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("WebhookReceiptRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == _pgUniqueViolation {
			return fmt.Errorf("WebhookReceiptRepo - Create: %w", errs.ErrDuplicateReceipt)
		}
		return fmt.Errorf("WebhookReceiptRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *WebhookReceiptRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	sql, args, err := r.Builder.
		Select("1").
		From(receiptsTable).
		Where(squirrel.Eq{receiptEventIDColumn: eventID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("WebhookReceiptRepo - Exists - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("WebhookReceiptRepo - Exists - executor.Query: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("WebhookReceiptRepo - Exists - rows.Err: %w", err)
	}

	return exists, nil
}
