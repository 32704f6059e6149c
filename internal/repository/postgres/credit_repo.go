// internal/repository/postgres/credit_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tuma-service/internal/domain/credit"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreditRepository owns credit_accounts and the append-only
// credit_transactions log. Nothing else writes these tables.
type CreditRepository struct {
	db *pgxpool.Pool
}

func NewCreditRepository(db *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{db: db}
}

// GetAccount retrieves a tenant's credit account, creating a zeroed row on
// first touch.
func (r *CreditRepository) GetAccount(ctx context.Context, tenantID int64) (*credit.Account, error) {
	query := `
		SELECT id, tenant_id, plan_credits, purchased_credits, total_used, created_at, updated_at
		FROM credit_accounts
		WHERE tenant_id = $1
	`

	var a credit.Account
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&a.ID, &a.TenantID, &a.PlanCredits, &a.PurchasedCredits, &a.TotalUsed,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.createAccount(ctx, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credit account: %w", err)
	}

	return &a, nil
}

func (r *CreditRepository) createAccount(ctx context.Context, tenantID int64) (*credit.Account, error) {
	query := `
		INSERT INTO credit_accounts (tenant_id, plan_credits, purchased_credits, total_used)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (tenant_id) DO UPDATE SET updated_at = credit_accounts.updated_at
		RETURNING id, tenant_id, plan_credits, purchased_credits, total_used, created_at, updated_at
	`

	var a credit.Account
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&a.ID, &a.TenantID, &a.PlanCredits, &a.PurchasedCredits, &a.TotalUsed,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit account: %w", err)
	}

	return &a, nil
}

// FindTransaction looks up a ledger entry by its idempotency key.
func (r *CreditRepository) FindTransaction(ctx context.Context, kind credit.TransactionKind, ref string) (*credit.Transaction, error) {
	query := `
		SELECT id, tenant_id, kind, amount, reference, balance_after, created_at
		FROM credit_transactions
		WHERE kind = $1 AND reference = $2
	`

	var t credit.Transaction
	err := r.db.QueryRow(ctx, query, kind, ref).Scan(
		&t.ID, &t.TenantID, &t.Kind, &t.Amount, &t.Reference, &t.BalanceAfter, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credit transaction: %w", err)
	}

	return &t, nil
}

// Append atomically inserts one ledger row and writes the updated projection
// onto the account, locking the account row for the duration. The unique
// index on (kind, reference) is the cross-instance idempotency backstop; a
// conflict surfaces as ErrDuplicateEntry.
func (r *CreditRepository) Append(ctx context.Context, txn *credit.Transaction, account *credit.Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `SELECT id FROM credit_accounts WHERE tenant_id = $1 FOR UPDATE`
	var accountID int64
	if err := tx.QueryRow(ctx, lockQuery, txn.TenantID).Scan(&accountID); err != nil {
		return fmt.Errorf("failed to lock credit account: %w", err)
	}

	insertQuery := `
		INSERT INTO credit_transactions (tenant_id, kind, amount, reference, balance_after)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err = tx.QueryRow(
		ctx, insertQuery,
		txn.TenantID, txn.Kind, txn.Amount, txn.Reference, txn.BalanceAfter,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append credit transaction: %w", err)
	}

	updateQuery := `
		UPDATE credit_accounts
		SET plan_credits = $1, purchased_credits = $2, total_used = $3, updated_at = $4
		WHERE tenant_id = $5
	`
	if _, err := tx.Exec(
		ctx, updateQuery,
		account.PlanCredits, account.PurchasedCredits, account.TotalUsed, time.Now(), txn.TenantID,
	); err != nil {
		return fmt.Errorf("failed to update credit account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListTransactions retrieves ledger entries with filters
func (r *CreditRepository) ListTransactions(ctx context.Context, tenantID int64, filters *credit.TransactionListFilters) ([]credit.Transaction, int64, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argPos := 2

	if filters.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, *filters.Kind)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM credit_transactions WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`
		SELECT id, tenant_id, kind, amount, reference, balance_after, created_at
		FROM credit_transactions
		WHERE %s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []credit.Transaction{}
	for rows.Next() {
		var t credit.Transaction
		if err := rows.Scan(
			&t.ID, &t.TenantID, &t.Kind, &t.Amount, &t.Reference, &t.BalanceAfter, &t.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, total, nil
}

// AllTransactions streams the full log for a tenant in append order, for
// balance reconciliation.
func (r *CreditRepository) AllTransactions(ctx context.Context, tenantID int64) ([]credit.Transaction, error) {
	query := `
		SELECT id, tenant_id, kind, amount, reference, balance_after, created_at
		FROM credit_transactions
		WHERE tenant_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	transactions := []credit.Transaction{}
	for rows.Next() {
		var t credit.Transaction
		if err := rows.Scan(
			&t.ID, &t.TenantID, &t.Kind, &t.Amount, &t.Reference, &t.BalanceAfter, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, nil
}
