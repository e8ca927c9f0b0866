package persistent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/fundraising/pledge-service/pkg/postgres"
	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// Table
	pledgesTable = "pledges"

	// Columns
	pledgeIDColumn              = "id"
	pledgeUserIDColumn          = "user_id"
	pledgeCampaignIDColumn      = "campaign_id"
	pledgeAmountColumn          = "amount"
	pledgeCurrencyColumn        = "currency"
	pledgeIntervalColumn        = "\"interval\""
	pledgeStartDateColumn       = "start_date"
	pledgeNextPaymentDateColumn = "next_payment_date"
	pledgeStatusColumn          = "status"
	pledgeFailureCountColumn    = "failure_count"
	pledgePaymentMethodColumn   = "payment_method"
	pledgeMetadataColumn        = "metadata"
	pledgeVersionColumn         = "version"
	pledgeCreatedAtColumn       = "created_at"
	pledgeUpdatedAtColumn       = "updated_at"
)

type PledgeRepo struct {
	*postgres.Postgres
}

func NewPledgeRepo(pg *postgres.Postgres) *PledgeRepo {
	return &PledgeRepo{pg}
}

func (r *PledgeRepo) Create(ctx context.Context, pledge *entity.Pledge) error {
	paymentMethod, metadata, err := marshalPledgeMaps(pledge)
	if err != nil {
		return fmt.Errorf("PledgeRepo - Create: %w", err)
	}

	sql, args, err := r.Builder.
		Insert(pledgesTable).
		Columns(
			pledgeIDColumn,
			pledgeUserIDColumn,
			pledgeCampaignIDColumn,
			pledgeAmountColumn,
			pledgeCurrencyColumn,
			pledgeIntervalColumn,
			pledgeStartDateColumn,
			pledgeNextPaymentDateColumn,
			pledgeStatusColumn,
			pledgeFailureCountColumn,
			pledgePaymentMethodColumn,
			pledgeMetadataColumn,
			pledgeVersionColumn,
			pledgeCreatedAtColumn,
			pledgeUpdatedAtColumn,
		).
		Values(
			pledge.ID,
			pledge.UserID,
			pledge.CampaignID,
			pledge.Amount,
			pledge.Currency,
			pledge.Interval,
			pledge.StartDate,
			pledge.NextPaymentDate,
			pledge.Status,
			pledge.FailureCount,
			paymentMethod,
			metadata,
			pledge.Version,
			pledge.CreatedAt,
			pledge.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("PledgeRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("PledgeRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *PledgeRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Pledge, error) {
	sql, args, err := r.selectPledge().
		Where(squirrel.Eq{pledgeIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("PledgeRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	pledge, err := scanPledge(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("PledgeRepo - GetByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("PledgeRepo - GetByID: %w", err)
	}

	return pledge, nil
}

func (r *PledgeRepo) ListByUser(ctx context.Context, userID string) ([]*entity.Pledge, error) {
	sql, args, err := r.selectPledge().
		Where(squirrel.Eq{pledgeUserIDColumn: userID}).
		OrderBy(pledgeCreatedAtColumn + " DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("PledgeRepo - ListByUser - r.Builder.ToSql: %w", err)
	}

	return r.queryPledges(ctx, "ListByUser", sql, args)
}

func (r *PledgeRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Pledge, error) {
	sql, args, err := r.selectPledge().
		Where(squirrel.And{
			squirrel.Eq{pledgeStatusColumn: entity.PledgeActive},
			squirrel.LtOrEq{pledgeNextPaymentDateColumn: now},
		}).
		OrderBy(pledgeNextPaymentDateColumn + " ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("PledgeRepo - ListDue - r.Builder.ToSql: %w", err)
	}

	return r.queryPledges(ctx, "ListDue", sql, args)
}

// UpdateVersioned is the only mutation path for an existing pledge. The write
// matches on the version the caller read, so two racing commands cannot
// silently overwrite each other: the loser gets errs.ErrVersionConflict and
// re-reads.
func (r *PledgeRepo) UpdateVersioned(ctx context.Context, pledge *entity.Pledge) error {
	paymentMethod, metadata, err := marshalPledgeMaps(pledge)
	if err != nil {
		return fmt.Errorf("PledgeRepo - UpdateVersioned: %w", err)
	}

	sql, args, err := r.Builder.
		Update(pledgesTable).
		Set(pledgeNextPaymentDateColumn, pledge.NextPaymentDate).
		Set(pledgeStatusColumn, pledge.Status).
		Set(pledgeFailureCountColumn, pledge.FailureCount).
		Set(pledgePaymentMethodColumn, paymentMethod).
		Set(pledgeMetadataColumn, metadata).
		Set(pledgeVersionColumn, pledge.Version+1).
		Set(pledgeUpdatedAtColumn, pledge.UpdatedAt).
		Where(squirrel.And{
			squirrel.Eq{pledgeIDColumn: pledge.ID},
			squirrel.Eq{pledgeVersionColumn: pledge.Version},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("PledgeRepo - UpdateVersioned - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("PledgeRepo - UpdateVersioned - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("PledgeRepo - UpdateVersioned: %w", errs.ErrVersionConflict)
	}

	pledge.Version++

	return nil
}

func (r *PledgeRepo) selectPledge() squirrel.SelectBuilder {
	return r.Builder.
		Select(
			pledgeIDColumn,
			pledgeUserIDColumn,
			pledgeCampaignIDColumn,
			pledgeAmountColumn,
			pledgeCurrencyColumn,
			pledgeIntervalColumn,
			pledgeStartDateColumn,
			pledgeNextPaymentDateColumn,
			pledgeStatusColumn,
			pledgeFailureCountColumn,
			pledgePaymentMethodColumn,
			pledgeMetadataColumn,
			pledgeVersionColumn,
			pledgeCreatedAtColumn,
			pledgeUpdatedAtColumn,
		).
		From(pledgesTable)
}

func (r *PledgeRepo) queryPledges(ctx context.Context, op, sql string, args []any) ([]*entity.Pledge, error) {
	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("PledgeRepo - %s - executor.Query: %w", op, err)
	}
	defer rows.Close()

	var pledges []*entity.Pledge
	for rows.Next() {
		pledge, err := scanPledge(rows)
		if err != nil {
			return nil, fmt.Errorf("PledgeRepo - %s: %w", op, err)
		}
		pledges = append(pledges, pledge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PledgeRepo - %s - rows.Err: %w", op, err)
	}

	return pledges, nil
}

func scanPledge(row pgx.Row) (*entity.Pledge, error) {
	var (
		pledge        entity.Pledge
		paymentMethod []byte
		metadata      []byte
	)

	err := row.Scan(
		&pledge.ID,
		&pledge.UserID,
		&pledge.CampaignID,
		&pledge.Amount,
		&pledge.Currency,
		&pledge.Interval,
		&pledge.StartDate,
		&pledge.NextPaymentDate,
		&pledge.Status,
		&pledge.FailureCount,
		&paymentMethod,
		&metadata,
		&pledge.Version,
		&pledge.CreatedAt,
		&pledge.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	if len(paymentMethod) > 0 {
		if err := json.Unmarshal(paymentMethod, &pledge.PaymentMethod); err != nil {
			return nil, fmt.Errorf("json.Unmarshal payment_method: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &pledge.Metadata); err != nil {
			return nil, fmt.Errorf("json.Unmarshal metadata: %w", err)
		}
	}

	return &pledge, nil
}

func marshalPledgeMaps(pledge *entity.Pledge) ([]byte, []byte, error) {
	paymentMethod, err := json.Marshal(pledge.PaymentMethod)
	if err != nil {
		return nil, nil, fmt.Errorf("json.Marshal payment_method: %w", err)
	}

	metadata, err := json.Marshal(pledge.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("json.Marshal metadata: %w", err)
	}

	return paymentMethod, metadata, nil
}
