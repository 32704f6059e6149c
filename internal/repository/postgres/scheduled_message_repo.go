// internal/repository/postgres/scheduled_message_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tuma-service/internal/domain/message"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scheduledMessageColumns = `
	id, reference, tenant_id, body, recipients, recipient_query, category,
	scheduled_at, status, estimated_credits, credits_used, execution_error,
	message_log_id, claimed_at, sent_at, cancelled_at, created_at, updated_at
`

type ScheduledMessageRepository struct {
	db *pgxpool.Pool
}

func NewScheduledMessageRepository(db *pgxpool.Pool) *ScheduledMessageRepository {
	return &ScheduledMessageRepository{db: db}
}

// Create creates a scheduled message in pending state
func (r *ScheduledMessageRepository) Create(ctx context.Context, m *message.ScheduledMessage) error {
	query := `
		INSERT INTO scheduled_messages (
			reference, tenant_id, body, recipients, recipient_query, category,
			scheduled_at, status, estimated_credits
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		m.Reference, m.TenantID, m.Body, m.Recipients, m.RecipientQuery, m.Category,
		m.ScheduledAt, m.Status, m.EstimatedCredits,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create scheduled message: %w", err)
	}

	return nil
}

// FindByID retrieves a scheduled message by ID
func (r *ScheduledMessageRepository) FindByID(ctx context.Context, id int64) (*message.ScheduledMessage, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_messages WHERE id = $1`, scheduledMessageColumns)

	m, err := scanScheduledMessage(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scheduled message: %w", err)
	}

	return m, nil
}

// ClaimDue atomically claims due pending messages for one worker. The CAS
// from pending to processing is what prevents double-send when multiple
// dispatcher workers tick concurrently; SKIP LOCKED lets workers shard the
// due set instead of serializing on it.
func (r *ScheduledMessageRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]message.ScheduledMessage, error) {
	query := fmt.Sprintf(`
		UPDATE scheduled_messages
		SET status = $1, claimed_at = $2, updated_at = $2
		WHERE id IN (
			SELECT id FROM scheduled_messages
			WHERE status = $3 AND scheduled_at <= $2
			ORDER BY scheduled_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, scheduledMessageColumns)

	rows, err := r.db.Query(ctx, query, message.ScheduledStatusProcessing, now, message.ScheduledStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due messages: %w", err)
	}
	defer rows.Close()

	claimed := []message.ScheduledMessage{}
	for rows.Next() {
		m, err := scanScheduledMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed message: %w", err)
		}
		claimed = append(claimed, *m)
	}

	return claimed, nil
}

// RequeueStale returns messages claimed before the cutoff to pending, so
// work orphaned by a dead worker gets swept again. The debit behind a resent
// message is keyed by its reference, so a redispatch cannot double-charge.
func (r *ScheduledMessageRepository) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE scheduled_messages
		SET status = $1, claimed_at = NULL, updated_at = $2
		WHERE status = $3 AND claimed_at < $4
	`

	result, err := r.db.Exec(ctx, query, message.ScheduledStatusPending, time.Now(), message.ScheduledStatusProcessing, before)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale claims: %w", err)
	}

	return result.RowsAffected(), nil
}

// CancelIfPending transitions pending -> cancelled. Losing the race against
// a dispatcher claim (or any other terminal transition) surfaces as
// ErrInvalidStateTransition.
func (r *ScheduledMessageRepository) CancelIfPending(ctx context.Context, id int64) error {
	query := `
		UPDATE scheduled_messages
		SET status = $1, cancelled_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, message.ScheduledStatusCancelled, time.Now(), id, message.ScheduledStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// MarkSent finalizes a claimed message as sent.
func (r *ScheduledMessageRepository) MarkSent(ctx context.Context, id, creditsUsed, logID int64) error {
	query := `
		UPDATE scheduled_messages
		SET status = $1, credits_used = $2, message_log_id = $3, sent_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.db.Exec(
		ctx, query,
		message.ScheduledStatusSent,
		sql.NullInt64{Int64: creditsUsed, Valid: true},
		sql.NullInt64{Int64: logID, Valid: logID != 0},
		time.Now(), id, message.ScheduledStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// MarkFailed finalizes a claimed message as failed with its execution error.
func (r *ScheduledMessageRepository) MarkFailed(ctx context.Context, id int64, execErr string) error {
	query := `
		UPDATE scheduled_messages
		SET status = $1, execution_error = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.db.Exec(
		ctx, query,
		message.ScheduledStatusFailed,
		sql.NullString{String: execErr, Valid: execErr != ""},
		time.Now(), id, message.ScheduledStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// List retrieves scheduled messages for a tenant with filters
func (r *ScheduledMessageRepository) List(ctx context.Context, tenantID int64, filters *message.ScheduledListFilters) ([]message.ScheduledMessage, int64, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argPos := 2

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}
	if filters.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argPos))
		args = append(args, filters.Category)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM scheduled_messages WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count scheduled messages: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	if filters.PageSize > 100 {
		filters.PageSize = 100
	}
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM scheduled_messages
		WHERE %s
		ORDER BY scheduled_at DESC
		LIMIT $%d OFFSET $%d
	`, scheduledMessageColumns, whereClause, argPos, argPos+1)
	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scheduled messages: %w", err)
	}
	defer rows.Close()

	messages := []message.ScheduledMessage{}
	for rows.Next() {
		m, err := scanScheduledMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan scheduled message: %w", err)
		}
		messages = append(messages, *m)
	}

	return messages, total, nil
}

// CountActive counts a tenant's pending and processing messages, for the
// maxScheduledMessages ceiling.
func (r *ScheduledMessageRepository) CountActive(ctx context.Context, tenantID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM scheduled_messages
		WHERE tenant_id = $1 AND status IN ($2, $3)
	`

	var count int64
	err := r.db.QueryRow(ctx, query, tenantID, message.ScheduledStatusPending, message.ScheduledStatusProcessing).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active scheduled messages: %w", err)
	}

	return count, nil
}

// GetStats retrieves dispatch statistics for a tenant
func (r *ScheduledMessageRepository) GetStats(ctx context.Context, tenantID int64) (*message.DispatchStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN status = 'pending' THEN 1 END) as pending,
			COUNT(CASE WHEN status = 'sent' THEN 1 END) as sent,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed,
			COUNT(CASE WHEN status = 'cancelled' THEN 1 END) as cancelled
		FROM scheduled_messages
		WHERE tenant_id = $1
	`

	var stats message.DispatchStats
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&stats.TotalScheduled, &stats.Pending, &stats.Sent, &stats.Failed, &stats.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch stats: %w", err)
	}

	return &stats, nil
}

func scanScheduledMessage(row interface{ Scan(...any) error }) (*message.ScheduledMessage, error) {
	var m message.ScheduledMessage
	err := row.Scan(
		&m.ID, &m.Reference, &m.TenantID, &m.Body, &m.Recipients, &m.RecipientQuery, &m.Category,
		&m.ScheduledAt, &m.Status, &m.EstimatedCredits, &m.CreditsUsed, &m.ExecutionError,
		&m.MessageLogID, &m.ClaimedAt, &m.SentAt, &m.CancelledAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
