// internal/service/plan/plan_service.go
package plan

import (
	"context"
	"fmt"
	"time"

	"tuma-service/internal/domain/credit"
	"tuma-service/internal/domain/plan"
	xerrors "tuma-service/internal/pkg/errors"

	"go.uber.org/zap"
)

type PlanStore interface {
	Create(ctx context.Context, p *plan.Plan) error
	FindByID(ctx context.Context, id int64) (*plan.Plan, error)
	FindByCode(ctx context.Context, code string) (*plan.Plan, error)
	FindDefault(ctx context.Context) (*plan.Plan, error)
	List(ctx context.Context) ([]plan.Plan, error)
	Retire(ctx context.Context, id int64) error
}

type TenantStore interface {
	UpdatePlan(ctx context.Context, tenantID, planID int64) error
}

type Ledger interface {
	Apply(ctx context.Context, tenantID int64, kind credit.TransactionKind, amount int64, reference string) (*credit.Transaction, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, tenantID int64)
}

// Service is the plan catalog surface plus the plan-credit grant path.
type Service struct {
	plans    PlanStore
	tenants  TenantStore
	ledger   Ledger
	resolver Invalidator
	logger   *zap.Logger
}

func NewService(plans PlanStore, tenants TenantStore, ledger Ledger, resolver Invalidator, logger *zap.Logger) *Service {
	return &Service{
		plans:    plans,
		tenants:  tenants,
		ledger:   ledger,
		resolver: resolver,
		logger:   logger,
	}
}

// List retrieves the active plan catalog
func (s *Service) List(ctx context.Context) ([]plan.Plan, error) {
	return s.plans.List(ctx)
}

// Get retrieves a plan by ID
func (s *Service) Get(ctx context.Context, id int64) (*plan.Plan, error) {
	return s.plans.FindByID(ctx, id)
}

// Default returns the plan new tenants start on.
func (s *Service) Default(ctx context.Context) (*plan.Plan, error) {
	return s.plans.FindDefault(ctx)
}

// Publish creates a new plan version. Published plans are immutable; a
// pricing or matrix change is a new row, never an update in place.
func (s *Service) Publish(ctx context.Context, p *plan.Plan) (*plan.Plan, error) {
	if p.PlanCode == "" || p.Name == "" {
		return nil, fmt.Errorf("plan code and name are required: %w", xerrors.ErrInvalidInput)
	}
	if p.Version < 1 {
		p.Version = 1
	}
	if existing, err := s.plans.FindByCode(ctx, p.PlanCode); err == nil {
		p.Version = existing.Version + 1
	}
	p.Status = plan.PlanStatusActive

	if err := s.plans.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("plan published",
		zap.Int64("plan_id", p.ID),
		zap.String("plan_code", p.PlanCode),
		zap.Int("version", p.Version),
	)

	return p, nil
}

// Retire marks a plan inactive. Tenants already on it keep their snapshot
// until reassigned; new assignments stop.
func (s *Service) Retire(ctx context.Context, id int64) error {
	if err := s.plans.Retire(ctx, id); err != nil {
		return err
	}

	s.logger.Info("plan retired", zap.Int64("plan_id", id))
	return nil
}

// AssignPlan moves a tenant onto a plan and invalidates the cached
// entitlement snapshot so the change takes effect immediately.
func (s *Service) AssignPlan(ctx context.Context, tenantID, planID int64) error {
	if _, err := s.plans.FindByID(ctx, planID); err != nil {
		return fmt.Errorf("plan not found: %w", err)
	}

	if err := s.tenants.UpdatePlan(ctx, tenantID, planID); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, tenantID)

	s.logger.Info("tenant plan assigned",
		zap.Int64("tenant_id", tenantID), zap.Int64("plan_id", planID))

	return nil
}

// GrantPeriodCredits grants the plan's smsCredits allotment for the current
// billing period. The reference embeds the period, so re-running the grant
// job within a period is a no-op.
func (s *Service) GrantPeriodCredits(ctx context.Context, tenantID, planID int64, period time.Time) error {
	p, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("plan not found: %w", err)
	}

	limit := p.LimitFor(plan.LimitSMSCredits)
	if limit.IsUnlimited() || limit.Value() == 0 {
		// Unlimited plans draw no metered pool; unconfigured plans grant nothing.
		return nil
	}

	ref := fmt.Sprintf("GRANT-%d-%s", tenantID, period.Format("200601"))
	if _, err := s.ledger.Apply(ctx, tenantID, credit.TransactionGrant, limit.Value(), ref); err != nil {
		return err
	}

	s.logger.Info("plan credits granted",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("plan_id", planID),
		zap.Int64("credits", limit.Value()),
		zap.String("reference", ref),
	)

	return nil
}
