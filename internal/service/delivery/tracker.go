// internal/service/delivery/tracker.go
package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tuma-service/internal/domain/message"
	xerrors "tuma-service/internal/pkg/errors"

	"go.uber.org/zap"
)

type LogStore interface {
	FindByID(ctx context.Context, id int64) (*message.MessageLog, error)
	FindByReference(ctx context.Context, ref string) (*message.MessageLog, error)
	FindRecipient(ctx context.Context, logID int64, phone string) (*message.Recipient, error)
	ListRecipients(ctx context.Context, logID int64) ([]message.Recipient, error)
	AdvanceRecipient(ctx context.Context, id int64, expected, next message.RecipientStatus, reason string) error
	AppendEvent(ctx context.Context, e *message.DeliveryEvent) error
	RefreshCounters(ctx context.Context, logID int64) (*message.MessageLog, error)
}

// Tracker reconciles asynchronous per-recipient delivery callbacks into the
// message log. Every callback is retained as an audit event; only forward
// status moves are applied, and the first terminal status wins.
type Tracker struct {
	logs   LogStore
	logger *zap.Logger
}

func NewTracker(logs LogStore, logger *zap.Logger) *Tracker {
	return &Tracker{logs: logs, logger: logger}
}

// Ingest applies one carrier callback. Duplicates, late arrivals and
// out-of-order events are absorbed and recorded, never surfaced as errors.
func (t *Tracker) Ingest(ctx context.Context, cb *message.DeliveryCallback) error {
	log, err := t.logs.FindByReference(ctx, cb.LogReference)
	if err != nil {
		return fmt.Errorf("message log not found for callback: %w", err)
	}

	rec, err := t.logs.FindRecipient(ctx, log.ID, cb.Phone)
	if err != nil {
		return fmt.Errorf("recipient not found for callback: %w", err)
	}

	applied := false
	if rec.Status.CanAdvanceTo(cb.Status) {
		err := t.logs.AdvanceRecipient(ctx, rec.ID, rec.Status, cb.Status, cb.Reason)
		switch {
		case err == nil:
			applied = true
		case errors.Is(err, xerrors.ErrInvalidStateTransition):
			// A concurrent callback moved the recipient first.
		default:
			return err
		}
	}

	event := &message.DeliveryEvent{
		MessageLogID: log.ID,
		Phone:        cb.Phone,
		Status:       cb.Status,
		Applied:      applied,
	}
	if cb.Reason != "" {
		event.Reason = sql.NullString{String: cb.Reason, Valid: true}
	}
	if err := t.logs.AppendEvent(ctx, event); err != nil {
		return err
	}

	if !applied {
		t.logger.Debug("delivery callback absorbed without state change",
			zap.String("log_reference", cb.LogReference),
			zap.String("phone", cb.Phone),
			zap.String("status", string(cb.Status)),
		)
		return nil
	}

	if cb.Status.Terminal() {
		updated, err := t.logs.RefreshCounters(ctx, log.ID)
		if err != nil {
			return err
		}
		if updated.OverallStatus != message.OverallStatusPending {
			t.logger.Info("message log finalized",
				zap.Int64("log_id", updated.ID),
				zap.String("overall_status", string(updated.OverallStatus)),
				zap.Int("successful", updated.SuccessfulCount),
				zap.Int("failed", updated.FailedCount),
			)
		}
	}

	return nil
}

// GetDetail retrieves a log with its recipient sub-records, enforcing
// tenant ownership.
func (t *Tracker) GetDetail(ctx context.Context, tenantID, logID int64) (*message.LogDetail, error) {
	log, err := t.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if log.TenantID != tenantID {
		return nil, xerrors.ErrUnauthorized
	}

	recipients, err := t.logs.ListRecipients(ctx, logID)
	if err != nil {
		return nil, err
	}

	return &message.LogDetail{Log: log, Recipients: recipients}, nil
}
