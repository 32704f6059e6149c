// internal/service/entitlement/entitlement.go
package entitlement

import (
	"context"
	"fmt"

	"tuma-service/internal/domain/plan"
	"tuma-service/internal/domain/tenant"
	xerrors "tuma-service/internal/pkg/errors"

	"go.uber.org/zap"
)

type TenantStore interface {
	FindByID(ctx context.Context, id int64) (*tenant.Tenant, error)
}

type PlanStore interface {
	FindByID(ctx context.Context, id int64) (*plan.Plan, error)
}

// SnapshotCache caches the resolved plan per tenant. Entries must be
// invalidated on any plan or plan-assignment change.
type SnapshotCache interface {
	Get(ctx context.Context, tenantID int64) (*plan.Plan, bool)
	Set(ctx context.Context, tenantID int64, p *plan.Plan)
	Invalidate(ctx context.Context, tenantID int64)
}

// Service resolves feature and limit entitlements from a tenant's plan
// snapshot. Pure given the snapshot; superuser bypasses everything.
type Service struct {
	tenants TenantStore
	plans   PlanStore
	cache   SnapshotCache
	logger  *zap.Logger
}

func NewService(tenants TenantStore, plans PlanStore, cache SnapshotCache, logger *zap.Logger) *Service {
	return &Service{
		tenants: tenants,
		plans:   plans,
		cache:   cache,
		logger:  logger,
	}
}

// HasFeature answers "is feature key enabled for this tenant". A key absent
// from the plan matrix is false: entitlements fail closed.
func (s *Service) HasFeature(ctx context.Context, tenantID int64, role tenant.Role, key string) (bool, error) {
	if role.IsSuperAdmin() {
		return true, nil
	}

	snapshot, err := s.planSnapshot(ctx, tenantID)
	if err != nil {
		return false, err
	}

	return snapshot.HasFeature(key), nil
}

// LimitFor answers the numeric ceiling for a limit key. Absent keys resolve
// to NoAccess, never Unlimited.
func (s *Service) LimitFor(ctx context.Context, tenantID int64, role tenant.Role, key string) (plan.Limit, error) {
	if role.IsSuperAdmin() {
		return plan.Unlimited(), nil
	}

	snapshot, err := s.planSnapshot(ctx, tenantID)
	if err != nil {
		return plan.NoAccess(), err
	}

	return snapshot.LimitFor(key), nil
}

// RequireFeature is the gate-check helper: nil when entitled, otherwise
// ErrFeatureNotEntitled annotated with the feature key so callers can
// surface an upgrade hint.
func (s *Service) RequireFeature(ctx context.Context, tenantID int64, role tenant.Role, key string) error {
	ok, err := s.HasFeature(ctx, tenantID, role, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("feature %q: %w", key, xerrors.ErrFeatureNotEntitled)
	}
	return nil
}

// FeatureMatrix returns the full resolved matrix for the tenant, for the
// cacheable /entitlements/features read.
func (s *Service) FeatureMatrix(ctx context.Context, tenantID int64, role tenant.Role) (plan.FeatureMatrix, error) {
	snapshot, err := s.planSnapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if !role.IsSuperAdmin() {
		if snapshot.Features == nil {
			return plan.FeatureMatrix{}, nil
		}
		return snapshot.Features, nil
	}

	// Superuser sees every known key enabled.
	matrix := plan.FeatureMatrix{}
	for key := range snapshot.Features {
		matrix[key] = true
	}
	return matrix, nil
}

// Invalidate drops the cached snapshot after a plan change.
func (s *Service) Invalidate(ctx context.Context, tenantID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenantID)
	}
}

func (s *Service) planSnapshot(ctx context.Context, tenantID int64) (*plan.Plan, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, tenantID); ok {
			return p, nil
		}
	}

	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant not found: %w", err)
	}

	p, err := s.plans.FindByID(ctx, t.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan not found: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, tenantID, p)
	}

	return p, nil
}
