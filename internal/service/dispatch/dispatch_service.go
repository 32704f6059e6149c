// internal/service/dispatch/dispatch_service.go
package dispatch

import (
	"context"
	"fmt"
	"time"

	"tuma-service/internal/carrier"
	"tuma-service/internal/domain/credit"
	"tuma-service/internal/domain/message"
	"tuma-service/internal/domain/plan"
	"tuma-service/internal/domain/tenant"
	xerrors "tuma-service/internal/pkg/errors"
	"tuma-service/internal/pkg/reference"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type MessageStore interface {
	Create(ctx context.Context, m *message.ScheduledMessage) error
	FindByID(ctx context.Context, id int64) (*message.ScheduledMessage, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]message.ScheduledMessage, error)
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
	CancelIfPending(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id, creditsUsed, logID int64) error
	MarkFailed(ctx context.Context, id int64, execErr string) error
	List(ctx context.Context, tenantID int64, filters *message.ScheduledListFilters) ([]message.ScheduledMessage, int64, error)
	CountActive(ctx context.Context, tenantID int64) (int64, error)
	GetStats(ctx context.Context, tenantID int64) (*message.DispatchStats, error)
}

type LogStore interface {
	CreateWithRecipients(ctx context.Context, log *message.MessageLog, phones []string) error
	FailAll(ctx context.Context, logID int64, reason string) error
}

type Ledger interface {
	Apply(ctx context.Context, tenantID int64, kind credit.TransactionKind, amount int64, reference string) (*credit.Transaction, error)
}

type Entitlements interface {
	RequireFeature(ctx context.Context, tenantID int64, role tenant.Role, key string) error
	LimitFor(ctx context.Context, tenantID int64, role tenant.Role, key string) (plan.Limit, error)
}

// RecipientResolver expands a stored recipient query into concrete phone
// numbers at dispatch time. The directory itself is an external collaborator.
type RecipientResolver interface {
	Resolve(ctx context.Context, tenantID int64, query string) ([]string, error)
}

// Service owns scheduled messages until they reach a terminal status, and
// runs the shared debit -> send -> log pipeline for both scheduled and
// immediate sends.
type Service struct {
	messages MessageStore
	logs     LogStore
	ledger   Ledger
	gates    Entitlements
	resolver RecipientResolver
	sender   carrier.Sender

	creditsPerMessage int64
	logger            *zap.Logger
}

func NewService(
	messages MessageStore,
	logs LogStore,
	ledger Ledger,
	gates Entitlements,
	resolver RecipientResolver,
	sender carrier.Sender,
	creditsPerMessage int64,
	logger *zap.Logger,
) *Service {
	if creditsPerMessage < 1 {
		creditsPerMessage = 1
	}
	return &Service{
		messages:          messages,
		logs:              logs,
		ledger:            ledger,
		gates:             gates,
		resolver:          resolver,
		sender:            sender,
		creditsPerMessage: creditsPerMessage,
		logger:            logger,
	}
}

// CreateScheduled creates a scheduled message in pending state after the
// entitlement gates pass. Credits are only estimated here; the debit happens
// at dispatch time against the balance of that moment.
func (s *Service) CreateScheduled(ctx context.Context, tenantID int64, role tenant.Role, req *message.CreateScheduledMessageRequest) (*message.ScheduledMessage, error) {
	if err := s.gates.RequireFeature(ctx, tenantID, role, plan.FeatureScheduledMessages); err != nil {
		return nil, err
	}

	if len(req.Recipients) == 0 && req.RecipientQuery == "" {
		return nil, fmt.Errorf("recipients or a recipient query is required: %w", xerrors.ErrInvalidInput)
	}
	if !req.ScheduledAt.After(time.Now()) {
		return nil, fmt.Errorf("scheduled time must be in the future: %w", xerrors.ErrInvalidInput)
	}

	if len(req.Recipients) > 0 {
		if err := s.checkRecipientCeiling(ctx, tenantID, role, int64(len(req.Recipients))); err != nil {
			return nil, err
		}
	}

	active, err := s.messages.CountActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	limit, err := s.gates.LimitFor(ctx, tenantID, role, plan.LimitMaxScheduledMessages)
	if err != nil {
		return nil, err
	}
	if !limit.Allows(active + 1) {
		return nil, fmt.Errorf("scheduled message limit reached: %w", xerrors.ErrFeatureNotEntitled)
	}

	m := &message.ScheduledMessage{
		Reference:        reference.Message(),
		TenantID:         tenantID,
		Body:             req.Body,
		Recipients:       pq.StringArray(req.Recipients),
		ScheduledAt:      req.ScheduledAt,
		Status:           message.ScheduledStatusPending,
		EstimatedCredits: int64(len(req.Recipients)) * s.creditsPerMessage,
	}
	if req.RecipientQuery != "" {
		m.RecipientQuery.String = req.RecipientQuery
		m.RecipientQuery.Valid = true
	}
	if req.Category != "" {
		m.Category.String = req.Category
		m.Category.Valid = true
	}

	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("scheduled message created",
		zap.Int64("message_id", m.ID),
		zap.Int64("tenant_id", tenantID),
		zap.String("reference", m.Reference),
		zap.Time("scheduled_at", m.ScheduledAt),
	)

	return m, nil
}

// Cancel transitions a pending message to cancelled. It races the
// dispatcher's claim; whoever lands the atomic transition first wins and the
// loser fails cleanly.
func (s *Service) Cancel(ctx context.Context, tenantID, messageID int64) error {
	m, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.TenantID != tenantID {
		return xerrors.ErrUnauthorized
	}

	if err := s.messages.CancelIfPending(ctx, messageID); err != nil {
		return err
	}

	s.logger.Info("scheduled message cancelled",
		zap.Int64("message_id", messageID), zap.Int64("tenant_id", tenantID))

	return nil
}

// Get retrieves a scheduled message with ownership enforced
func (s *Service) Get(ctx context.Context, tenantID, messageID int64) (*message.ScheduledMessage, error) {
	m, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.TenantID != tenantID {
		return nil, xerrors.ErrUnauthorized
	}
	return m, nil
}

// List retrieves scheduled messages with filters
func (s *Service) List(ctx context.Context, tenantID int64, filters *message.ScheduledListFilters) (*message.ScheduledListResponse, error) {
	messages, total, err := s.messages.List(ctx, tenantID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled messages: %w", err)
	}

	return &message.ScheduledListResponse{
		Messages: messages,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	}, nil
}

// Stats retrieves dispatch statistics for a tenant
func (s *Service) Stats(ctx context.Context, tenantID int64) (*message.DispatchStats, error) {
	return s.messages.GetStats(ctx, tenantID)
}

// SendNow runs the immediate-send path: gate, debit, submit, log. The debit
// reference is the batch log reference, so a retry after a partial failure
// cannot double-debit.
func (s *Service) SendNow(ctx context.Context, tenantID int64, role tenant.Role, req *message.SendMessageRequest) (*message.MessageLog, error) {
	if err := s.gates.RequireFeature(ctx, tenantID, role, plan.FeatureSMS); err != nil {
		return nil, err
	}
	if err := s.checkRecipientCeiling(ctx, tenantID, role, int64(len(req.Recipients))); err != nil {
		return nil, err
	}

	debitRef := reference.Message()
	log, err := s.runBatch(ctx, tenantID, debitRef, req.Body, req.Recipients, nil)
	if err != nil {
		return nil, err
	}

	return log, nil
}

// staleClaimAge is how long a claim may sit in processing before it is
// presumed orphaned by a dead worker and handed back to the queue.
const staleClaimAge = 10 * time.Minute

// DispatchDue claims and executes every due message, up to limit. Called by
// the ticker loop; safe to run from multiple workers concurrently. Claims
// orphaned by a crashed worker are requeued first, so they rejoin the sweep
// instead of sitting in processing forever.
func (s *Service) DispatchDue(ctx context.Context, limit int) int {
	if n, err := s.messages.RequeueStale(ctx, time.Now().Add(-staleClaimAge)); err != nil {
		s.logger.Error("failed to requeue stale claims", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("requeued stale claims", zap.Int64("count", n))
	}

	claimed, err := s.messages.ClaimDue(ctx, time.Now(), limit)
	if err != nil {
		s.logger.Error("failed to claim due messages", zap.Error(err))
		return 0
	}

	for i := range claimed {
		s.execute(ctx, &claimed[i])
	}

	return len(claimed)
}

// execute runs one claimed message to a terminal status.
func (s *Service) execute(ctx context.Context, m *message.ScheduledMessage) {
	recipients := []string(m.Recipients)
	if len(recipients) == 0 && m.RecipientQuery.Valid {
		resolved, err := s.resolver.Resolve(ctx, m.TenantID, m.RecipientQuery.String)
		if err != nil {
			s.fail(ctx, m, fmt.Sprintf("recipient resolution failed: %v", err))
			return
		}
		recipients = resolved
	}
	if len(recipients) == 0 {
		s.fail(ctx, m, "no recipients resolved")
		return
	}

	scheduledID := m.ID
	log, err := s.runBatch(ctx, m.TenantID, m.Reference, m.Body, recipients, &scheduledID)
	if err != nil {
		s.fail(ctx, m, err.Error())
		return
	}

	if err := s.messages.MarkSent(ctx, m.ID, log.CreditsUsed, log.ID); err != nil {
		s.logger.Error("failed to mark message sent",
			zap.Int64("message_id", m.ID), zap.Error(err))
		return
	}

	s.logger.Info("scheduled message dispatched",
		zap.Int64("message_id", m.ID),
		zap.Int64("log_id", log.ID),
		zap.Int("recipients", log.TotalRecipients),
		zap.Int64("credits_used", log.CreditsUsed),
	)
}

// runBatch is the shared debit -> log -> submit pipeline. debitRef keys both
// the debit and any compensating refund, so replays of the failure handler
// cannot double-refund.
func (s *Service) runBatch(ctx context.Context, tenantID int64, debitRef, body string, recipients []string, scheduledID *int64) (*message.MessageLog, error) {
	cost := int64(len(recipients)) * s.creditsPerMessage

	if _, err := s.ledger.Apply(ctx, tenantID, credit.TransactionDebit, cost, debitRef); err != nil {
		return nil, err
	}

	log := &message.MessageLog{
		Reference:       reference.Log(),
		TenantID:        tenantID,
		Body:            body,
		TotalRecipients: len(recipients),
		CreditsUsed:     cost,
		OverallStatus:   message.OverallStatusPending,
	}
	if scheduledID != nil {
		log.ScheduledMessageID.Int64 = *scheduledID
		log.ScheduledMessageID.Valid = true
	}

	if err := s.logs.CreateWithRecipients(ctx, log, recipients); err != nil {
		// Nothing was submitted; hand the credits back.
		s.refund(ctx, tenantID, cost, debitRef)
		return nil, err
	}

	batch := &carrier.Batch{Reference: log.Reference, Body: body, Recipients: recipients}
	if err := s.sender.SendBatch(ctx, batch); err != nil {
		// Whole batch rejected before any recipient confirmation: refund
		// the debit and close the log out as failed.
		s.refund(ctx, tenantID, cost, debitRef)
		if failErr := s.logs.FailAll(ctx, log.ID, err.Error()); failErr != nil {
			s.logger.Error("failed to fail message log",
				zap.Int64("log_id", log.ID), zap.Error(failErr))
		}
		return nil, fmt.Errorf("%v: %w", err, xerrors.ErrDispatchFailure)
	}

	return log, nil
}

func (s *Service) refund(ctx context.Context, tenantID, amount int64, ref string) {
	if _, err := s.ledger.Apply(ctx, tenantID, credit.TransactionRefund, amount, ref); err != nil {
		s.logger.Error("failed to refund credits",
			zap.Int64("tenant_id", tenantID),
			zap.String("reference", ref),
			zap.Error(err),
		)
	}
}

func (s *Service) fail(ctx context.Context, m *message.ScheduledMessage, execErr string) {
	if err := s.messages.MarkFailed(ctx, m.ID, execErr); err != nil {
		s.logger.Error("failed to mark message failed",
			zap.Int64("message_id", m.ID), zap.Error(err))
		return
	}

	s.logger.Warn("scheduled message failed",
		zap.Int64("message_id", m.ID),
		zap.Int64("tenant_id", m.TenantID),
		zap.String("error", execErr),
	)
}

func (s *Service) checkRecipientCeiling(ctx context.Context, tenantID int64, role tenant.Role, count int64) error {
	limit, err := s.gates.LimitFor(ctx, tenantID, role, plan.LimitMaxRecipientsPerMessage)
	if err != nil {
		return err
	}
	if !limit.Allows(count) {
		return fmt.Errorf("recipient count %d exceeds plan ceiling: %w", count, xerrors.ErrFeatureNotEntitled)
	}
	return nil
}
