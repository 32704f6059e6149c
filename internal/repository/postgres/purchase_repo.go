// internal/repository/postgres/purchase_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tuma-service/internal/domain/purchase"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PurchaseRepository struct {
	db *pgxpool.Pool
}

func NewPurchaseRepository(db *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create creates a purchase attempt in pending state
func (r *PurchaseRepository) Create(ctx context.Context, p *purchase.Purchase) error {
	query := `
		INSERT INTO purchases (
			tenant_id, package_id, reference, rail, amount, currency, credits,
			status, credits_added, gateway_session_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.TenantID, p.PackageID, p.Reference, p.Rail, p.Amount, p.Currency, p.Credits,
		p.Status, p.CreditsAdded, p.GatewaySessionID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}

	return nil
}

// FindByID retrieves a purchase by ID
func (r *PurchaseRepository) FindByID(ctx context.Context, id int64) (*purchase.Purchase, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByReference retrieves a purchase by its payment reference
func (r *PurchaseRepository) FindByReference(ctx context.Context, ref string) (*purchase.Purchase, error) {
	return r.findOne(ctx, "reference = $1", ref)
}

func (r *PurchaseRepository) findOne(ctx context.Context, where string, arg interface{}) (*purchase.Purchase, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, package_id, reference, rail, amount, currency, credits,
		       status, credits_added, failure_reason, gateway_session_id,
		       completed_at, created_at, updated_at
		FROM purchases
		WHERE %s
	`, where)

	var p purchase.Purchase
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.TenantID, &p.PackageID, &p.Reference, &p.Rail, &p.Amount, &p.Currency, &p.Credits,
		&p.Status, &p.CreditsAdded, &p.FailureReason, &p.GatewaySessionID,
		&p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find purchase: %w", err)
	}

	return &p, nil
}

// MarkProcessing claims a purchase with a pending -> processing
// compare-and-set. Exactly one caller wins; everyone else gets
// ErrInvalidStateTransition. Winning the claim is the precondition for
// every money movement, so a purchase cannot be debited or settled twice.
func (r *PurchaseRepository) MarkProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE purchases
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, purchase.StatusProcessing, time.Now(), id, purchase.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to claim purchase: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// ReleasePending hands a claimed purchase back for a later retry. Used when
// settlement fails transiently after the customer has already paid.
func (r *PurchaseRepository) ReleasePending(ctx context.Context, id int64) error {
	query := `
		UPDATE purchases
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, purchase.StatusPending, time.Now(), id, purchase.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to release purchase: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// MarkCompleted transitions processing -> completed. Only the claim holder
// can get here, so a zero rows-affected means the state machine was violated.
func (r *PurchaseRepository) MarkCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE purchases
		SET status = $1, credits_added = TRUE, completed_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Exec(ctx, query, purchase.StatusCompleted, time.Now(), id, purchase.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete purchase: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// MarkFailed transitions processing -> failed with a reason. CAS as above.
func (r *PurchaseRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE purchases
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.db.Exec(
		ctx, query,
		purchase.StatusFailed,
		sql.NullString{String: reason, Valid: reason != ""},
		time.Now(), id, purchase.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to fail purchase: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrInvalidStateTransition
	}

	return nil
}

// List retrieves purchases for a tenant with filters
func (r *PurchaseRepository) List(ctx context.Context, tenantID int64, filters *purchase.ListFilters) ([]purchase.Purchase, int64, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argPos := 2

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}
	if filters.Rail != nil {
		conditions = append(conditions, fmt.Sprintf("rail = $%d", argPos))
		args = append(args, *filters.Rail)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM purchases WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchases: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`
		SELECT id, tenant_id, package_id, reference, rail, amount, currency, credits,
		       status, credits_added, failure_reason, gateway_session_id,
		       completed_at, created_at, updated_at
		FROM purchases
		WHERE %s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	purchases := []purchase.Purchase{}
	for rows.Next() {
		var p purchase.Purchase
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.PackageID, &p.Reference, &p.Rail, &p.Amount, &p.Currency, &p.Credits,
			&p.Status, &p.CreditsAdded, &p.FailureReason, &p.GatewaySessionID,
			&p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	return purchases, total, nil
}
