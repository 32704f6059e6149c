// internal/repository/postgres/message_log_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tuma-service/internal/domain/message"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageLogRepository struct {
	db *pgxpool.Pool
}

func NewMessageLogRepository(db *pgxpool.Pool) *MessageLogRepository {
	return &MessageLogRepository{db: db}
}

// CreateWithRecipients creates a message log and its per-recipient rows in
// one transaction.
func (r *MessageLogRepository) CreateWithRecipients(ctx context.Context, log *message.MessageLog, phones []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	logQuery := `
		INSERT INTO message_logs (
			reference, tenant_id, scheduled_message_id, body,
			total_recipients, successful_count, failed_count, credits_used, overall_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(
		ctx, logQuery,
		log.Reference, log.TenantID, log.ScheduledMessageID, log.Body,
		log.TotalRecipients, log.SuccessfulCount, log.FailedCount, log.CreditsUsed, log.OverallStatus,
	).Scan(&log.ID, &log.CreatedAt, &log.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message log: %w", err)
	}

	recipientQuery := `
		INSERT INTO message_recipients (message_log_id, phone, status)
		VALUES ($1, $2, $3)
	`
	for _, phone := range phones {
		if _, err := tx.Exec(ctx, recipientQuery, log.ID, phone, message.RecipientStatusPending); err != nil {
			return fmt.Errorf("failed to create recipient: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID retrieves a message log by ID
func (r *MessageLogRepository) FindByID(ctx context.Context, id int64) (*message.MessageLog, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByReference retrieves a message log by its batch reference
func (r *MessageLogRepository) FindByReference(ctx context.Context, ref string) (*message.MessageLog, error) {
	return r.findOne(ctx, "reference = $1", ref)
}

func (r *MessageLogRepository) findOne(ctx context.Context, where string, arg interface{}) (*message.MessageLog, error) {
	query := fmt.Sprintf(`
		SELECT id, reference, tenant_id, scheduled_message_id, body,
		       total_recipients, successful_count, failed_count, credits_used,
		       overall_status, created_at, updated_at
		FROM message_logs
		WHERE %s
	`, where)

	var l message.MessageLog
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&l.ID, &l.Reference, &l.TenantID, &l.ScheduledMessageID, &l.Body,
		&l.TotalRecipients, &l.SuccessfulCount, &l.FailedCount, &l.CreditsUsed,
		&l.OverallStatus, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message log: %w", err)
	}

	return &l, nil
}

// ListRecipients retrieves the per-recipient rows of a log
func (r *MessageLogRepository) ListRecipients(ctx context.Context, logID int64) ([]message.Recipient, error) {
	query := `
		SELECT id, message_log_id, phone, status, failure_reason,
		       submitted_at, delivered_at, failed_at, created_at, updated_at
		FROM message_recipients
		WHERE message_log_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, logID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	recipients := []message.Recipient{}
	for rows.Next() {
		var rec message.Recipient
		if err := rows.Scan(
			&rec.ID, &rec.MessageLogID, &rec.Phone, &rec.Status, &rec.FailureReason,
			&rec.SubmittedAt, &rec.DeliveredAt, &rec.FailedAt, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, rec)
	}

	return recipients, nil
}

// FindRecipient retrieves one recipient row of a log by phone
func (r *MessageLogRepository) FindRecipient(ctx context.Context, logID int64, phone string) (*message.Recipient, error) {
	query := `
		SELECT id, message_log_id, phone, status, failure_reason,
		       submitted_at, delivered_at, failed_at, created_at, updated_at
		FROM message_recipients
		WHERE message_log_id = $1 AND phone = $2
	`

	var rec message.Recipient
	err := r.db.QueryRow(ctx, query, logID, phone).Scan(
		&rec.ID, &rec.MessageLogID, &rec.Phone, &rec.Status, &rec.FailureReason,
		&rec.SubmittedAt, &rec.DeliveredAt, &rec.FailedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recipient: %w", err)
	}

	return &rec, nil
}

// AdvanceRecipient moves a recipient forward, guarded so a concurrent or
// replayed callback cannot regress the stored status. The expectedStatus CAS
// mirrors the read the tracker performed.
func (r *MessageLogRepository) AdvanceRecipient(ctx context.Context, id int64, expected, next message.RecipientStatus, reason string) error {
	now := time.Now()

	var submittedAt, deliveredAt, failedAt sql.NullTime
	switch next {
	case message.RecipientStatusSubmitted:
		submittedAt = sql.NullTime{Time: now, Valid: true}
	case message.RecipientStatusDelivered:
		deliveredAt = sql.NullTime{Time: now, Valid: true}
	case message.RecipientStatusFailed:
		failedAt = sql.NullTime{Time: now, Valid: true}
	}

	query := `
		UPDATE message_recipients
		SET status = $1,
		    failure_reason = COALESCE($2, failure_reason),
		    submitted_at = COALESCE($3, submitted_at),
		    delivered_at = COALESCE($4, delivered_at),
		    failed_at = COALESCE($5, failed_at),
		    updated_at = $6
		WHERE id = $7 AND status = $8
	`

	var reasonArg sql.NullString
	if reason != "" {
		reasonArg = sql.NullString{String: reason, Valid: true}
	}

	result, err := r.db.Exec(ctx, query, next, reasonArg, submittedAt, deliveredAt, failedAt, now, id, expected)
	if err != nil {
		return fmt.Errorf("failed to advance recipient: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// FailAll marks every recipient of a log failed and finalizes the log.
// Used when the carrier rejects the whole batch before any confirmation.
func (r *MessageLogRepository) FailAll(ctx context.Context, logID int64, reason string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	recipientQuery := `
		UPDATE message_recipients
		SET status = $1, failure_reason = $2, failed_at = $3, updated_at = $3
		WHERE message_log_id = $4 AND status NOT IN ('delivered', 'failed')
	`
	if _, err := tx.Exec(ctx, recipientQuery,
		message.RecipientStatusFailed,
		sql.NullString{String: reason, Valid: reason != ""},
		now, logID,
	); err != nil {
		return fmt.Errorf("failed to fail recipients: %w", err)
	}

	logQuery := `
		UPDATE message_logs
		SET overall_status = $1, failed_count = total_recipients, successful_count = 0, updated_at = $2
		WHERE id = $3
	`
	if _, err := tx.Exec(ctx, logQuery, message.OverallStatusFailed, now, logID); err != nil {
		return fmt.Errorf("failed to fail message log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AppendEvent records a delivery callback in the audit trail, applied or not.
func (r *MessageLogRepository) AppendEvent(ctx context.Context, e *message.DeliveryEvent) error {
	query := `
		INSERT INTO delivery_events (message_log_id, phone, status, reason, applied)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, received_at
	`

	err := r.db.QueryRow(ctx, query, e.MessageLogID, e.Phone, e.Status, e.Reason, e.Applied).
		Scan(&e.ID, &e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to append delivery event: %w", err)
	}

	return nil
}

// RefreshCounters recomputes the aggregate counters from the recipient rows
// and finalizes overall_status once every recipient is terminal.
func (r *MessageLogRepository) RefreshCounters(ctx context.Context, logID int64) (*message.MessageLog, error) {
	query := `
		UPDATE message_logs l
		SET successful_count = c.delivered,
		    failed_count = c.failed,
		    overall_status = CASE
			WHEN c.terminal < l.total_recipients THEN l.overall_status
			WHEN c.failed = 0 THEN 'delivered'
			WHEN c.delivered = 0 THEN 'failed'
			ELSE 'partial'
		    END,
		    updated_at = $2
		FROM (
			SELECT
				COUNT(CASE WHEN status = 'delivered' THEN 1 END) as delivered,
				COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed,
				COUNT(CASE WHEN status IN ('delivered', 'failed') THEN 1 END) as terminal
			FROM message_recipients
			WHERE message_log_id = $1
		) c
		WHERE l.id = $1
		RETURNING l.id, l.reference, l.tenant_id, l.scheduled_message_id, l.body,
		          l.total_recipients, l.successful_count, l.failed_count, l.credits_used,
		          l.overall_status, l.created_at, l.updated_at
	`

	var l message.MessageLog
	err := r.db.QueryRow(ctx, query, logID, time.Now()).Scan(
		&l.ID, &l.Reference, &l.TenantID, &l.ScheduledMessageID, &l.Body,
		&l.TotalRecipients, &l.SuccessfulCount, &l.FailedCount, &l.CreditsUsed,
		&l.OverallStatus, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh log counters: %w", err)
	}

	return &l, nil
}
