// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tuma-service/internal/domain/plan"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create publishes a new plan version. Rows are immutable once published;
// changes arrive as a new row with a bumped version.
func (r *PlanRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (
			plan_code, name, description, version, price, currency,
			features, limits, status, is_default
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	featuresJSON, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	limitsJSON, err := json.Marshal(p.Limits)
	if err != nil {
		return fmt.Errorf("failed to marshal limits: %w", err)
	}

	err = r.db.QueryRow(
		ctx, query,
		p.PlanCode, p.Name, p.Description, p.Version, p.Price, p.Currency,
		featuresJSON, limitsJSON, p.Status, p.IsDefault,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

// FindByID retrieves a plan by ID
func (r *PlanRepository) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	query := `
		SELECT id, plan_code, name, description, version, price, currency,
		       features, limits, status, is_default, created_at, updated_at
		FROM plans
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByCode retrieves the latest active version of a plan by code
func (r *PlanRepository) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	query := `
		SELECT id, plan_code, name, description, version, price, currency,
		       features, limits, status, is_default, created_at, updated_at
		FROM plans
		WHERE plan_code = $1 AND status = 'active'
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, code))
}

// FindDefault retrieves the default plan assigned to new tenants
func (r *PlanRepository) FindDefault(ctx context.Context) (*plan.Plan, error) {
	query := `
		SELECT id, plan_code, name, description, version, price, currency,
		       features, limits, status, is_default, created_at, updated_at
		FROM plans
		WHERE is_default = TRUE AND status = 'active'
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query))
}

// List retrieves active plans ordered by price
func (r *PlanRepository) List(ctx context.Context) ([]plan.Plan, error) {
	query := `
		SELECT id, plan_code, name, description, version, price, currency,
		       features, limits, status, is_default, created_at, updated_at
		FROM plans
		WHERE status = 'active'
		ORDER BY price ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []plan.Plan{}
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}

	return plans, nil
}

// Retire marks a plan version inactive so new tenants cannot pick it up.
func (r *PlanRepository) Retire(ctx context.Context, id int64) error {
	query := `UPDATE plans SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, plan.PlanStatusInactive, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to retire plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PlanRepository) scanOne(row rowScanner) (*plan.Plan, error) {
	p, err := r.scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

func (r *PlanRepository) scanRow(row rowScanner) (*plan.Plan, error) {
	var p plan.Plan
	var featuresJSON, limitsJSON []byte

	err := row.Scan(
		&p.ID, &p.PlanCode, &p.Name, &p.Description, &p.Version, &p.Price, &p.Currency,
		&featuresJSON, &limitsJSON, &p.Status, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &p.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}
	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &p.Limits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal limits: %w", err)
		}
	}

	return &p, nil
}
