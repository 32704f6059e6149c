// internal/repository/postgres/tenant_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tuma-service/internal/domain/tenant"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

// FindByID retrieves a tenant by ID
func (r *TenantRepository) FindByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	query := `
		SELECT id, name, plan_id, status, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var t tenant.Tenant
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.PlanID, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}

	return &t, nil
}

// UpdatePlan moves a tenant onto a different plan version.
func (r *TenantRepository) UpdatePlan(ctx context.Context, tenantID, planID int64) error {
	query := `UPDATE tenants SET plan_id = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, planID, time.Now(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}
