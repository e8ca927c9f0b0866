package persistent

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/fundraising/pledge-service/internal/entity"
	"github.com/fundraising/pledge-service/pkg/postgres"
	"github.com/google/uuid"
)

const (
	// Table
	outboxTable = "pledge_outbox"

	// Columns
	outboxIDColumn            = "id"
	outboxAggregateTypeColumn = "aggregate_type"
	outboxAggregateIDColumn   = "aggregate_id"
	outboxEventTypeColumn     = "event_type"
	outboxPayloadColumn       = "payload"
	outboxStatusColumn        = "status"
	outboxAttemptsColumn      = "attempts"
	outboxCreatedAtColumn     = "created_at"
	outboxUpdatedAtColumn     = "updated_at"
	outboxPublishedAtColumn   = "published_at"
)

type OutboxRepo struct {
	*postgres.Postgres
}

func NewOutboxRepo(pg *postgres.Postgres) *OutboxRepo {
	return &OutboxRepo{pg}
}

func (r *OutboxRepo) Create(ctx context.Context, record *entity.OutboxRecord) error {
	sql, args, err := r.Builder.
		Insert(outboxTable).
		Columns(
			outboxIDColumn,
			outboxAggregateTypeColumn,
			outboxAggregateIDColumn,
			outboxEventTypeColumn,
			outboxPayloadColumn,
			outboxStatusColumn,
			outboxAttemptsColumn,
			outboxCreatedAtColumn,
			outboxUpdatedAtColumn,
		).
		Values(
			record.ID,
			record.AggregateType,
			record.AggregateID,
			record.EventType,
			record.Payload,
			record.Status,
			record.Attempts,
			record.CreatedAt,
			record.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("OutboxRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *OutboxRepo) ListPending(ctx context.Context, limit, maxAttempts int) ([]*entity.OutboxRecord, error) {
	sql, args, err := r.selectRecord().
		Where(squirrel.And{
			squirrel.Eq{outboxStatusColumn: entity.OutboxPending},
			squirrel.Lt{outboxAttemptsColumn: maxAttempts},
		}).
		OrderBy(outboxCreatedAtColumn + " ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - ListPending - r.Builder.ToSql: %w", err)
	}

	return r.queryRecords(ctx, "ListPending", sql, args)
}

func (r *OutboxRepo) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*entity.OutboxRecord, error) {
	sql, args, err := r.selectRecord().
		Where(squirrel.Eq{outboxAggregateIDColumn: aggregateID}).
		OrderBy(outboxCreatedAtColumn + " ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - ListByAggregate - r.Builder.ToSql: %w", err)
	}

	return r.queryRecords(ctx, "ListByAggregate", sql, args)
}

func (r *OutboxRepo) MarkPublishingBatch(ctx context.Context, ids uuid.UUIDs) error {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.OutboxPublishing).
		Set(outboxUpdatedAtColumn, time.Now().UTC()).
		Where(squirrel.Eq{outboxIDColumn: ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - MarkPublishingBatch - r.Builder.ToSql: %w", err)
	}

	return r.execBatch(ctx, "MarkPublishingBatch", sql, args)
}

func (r *OutboxRepo) MarkPublishedBatch(ctx context.Context, ids uuid.UUIDs) error {
	now := time.Now().UTC()

	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.OutboxPublished).
		Set(outboxUpdatedAtColumn, now).
		Set(outboxPublishedAtColumn, now).
		Where(squirrel.And{
			squirrel.Eq{outboxIDColumn: ids},
			// A published record is immutable; never re-mark it.
			squirrel.NotEq{outboxStatusColumn: entity.OutboxPublished},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - MarkPublishedBatch - r.Builder.ToSql: %w", err)
	}

	return r.execBatch(ctx, "MarkPublishedBatch", sql, args)
}

func (r *OutboxRepo) IncrementAttemptsBatch(ctx context.Context, ids uuid.UUIDs) error {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxAttemptsColumn, squirrel.Expr(outboxAttemptsColumn+" + 1")).
		Set(outboxStatusColumn, entity.OutboxPending).
		Set(outboxUpdatedAtColumn, time.Now().UTC()).
		Where(squirrel.Eq{outboxIDColumn: ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - IncrementAttemptsBatch - r.Builder.ToSql: %w", err)
	}

	return r.execBatch(ctx, "IncrementAttemptsBatch", sql, args)
}

func (r *OutboxRepo) MarkExhaustedFailed(ctx context.Context, maxAttempts int) (int64, error) {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.OutboxFailed).
		Set(outboxUpdatedAtColumn, time.Now().UTC()).
		Where(squirrel.And{
			squirrel.Eq{outboxStatusColumn: entity.OutboxPending},
			squirrel.GtOrEq{outboxAttemptsColumn: maxAttempts},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - MarkExhaustedFailed - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - MarkExhaustedFailed - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ResetStalePublishing is the recovery path for the claim window: a crash
// between MarkPublishingBatch and the broker ack, or a failed
// MarkPublishedBatch after a successful send, leaves records in PUBLISHING
// that no other query touches. Returning them to PENDING re-enters them into
// the normal delivery loop; a record whose send actually reached the broker
// is simply delivered again.
func (r *OutboxRepo) ResetStalePublishing(ctx context.Context, olderThan time.Time) (int64, error) {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.OutboxPending).
		Set(outboxAttemptsColumn, squirrel.Expr(outboxAttemptsColumn+" + 1")).
		Set(outboxUpdatedAtColumn, time.Now().UTC()).
		Where(squirrel.And{
			squirrel.Eq{outboxStatusColumn: entity.OutboxPublishing},
			squirrel.Lt{outboxUpdatedAtColumn: olderThan},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - ResetStalePublishing - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - ResetStalePublishing - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *OutboxRepo) selectRecord() squirrel.SelectBuilder {
	return r.Builder.
		Select(
			outboxIDColumn,
			outboxAggregateTypeColumn,
			outboxAggregateIDColumn,
			outboxEventTypeColumn,
			outboxPayloadColumn,
			outboxStatusColumn,
			outboxAttemptsColumn,
			outboxCreatedAtColumn,
			outboxUpdatedAtColumn,
			outboxPublishedAtColumn,
		).
		From(outboxTable)
}

func (r *OutboxRepo) queryRecords(ctx context.Context, op, sql string, args []any) ([]*entity.OutboxRecord, error) {
	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - %s - executor.Query: %w", op, err)
	}
	defer rows.Close()

	var records []*entity.OutboxRecord
	for rows.Next() {
		var record entity.OutboxRecord
		err = rows.Scan(
			&record.ID,
			&record.AggregateType,
			&record.AggregateID,
			&record.EventType,
			&record.Payload,
			&record.Status,
			&record.Attempts,
			&record.CreatedAt,
			&record.UpdatedAt,
			&record.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("OutboxRepo - %s - rows.Scan: %w", op, err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("OutboxRepo - %s - rows.Err: %w", op, err)
	}

	return records, nil
}

// execBatch does not inspect RowsAffected: the batch marks are idempotent and
// MarkPublishedBatch's NotEq guard legitimately matches zero rows when every
// record in the batch was already published.
func (r *OutboxRepo) execBatch(ctx context.Context, op, sql string, args []any) error {
	executor := r.GetExecutor(ctx)

	_, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("OutboxRepo - %s - executor.Exec: %w", op, err)
	}

	return nil
}
