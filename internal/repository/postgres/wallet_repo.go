// internal/repository/postgres/wallet_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tuma-service/internal/domain/wallet"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WalletRepository struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{db: db}
}

// FindByTenant retrieves a tenant's monetary wallet
func (r *WalletRepository) FindByTenant(ctx context.Context, tenantID int64) (*wallet.Wallet, error) {
	query := `
		SELECT id, tenant_id, balance, currency, last_updated
		FROM wallets
		WHERE tenant_id = $1
	`

	var w wallet.Wallet
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&w.ID, &w.TenantID, &w.Balance, &w.Currency, &w.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}

	return &w, nil
}

// DebitIfSufficient debits the wallet only when the balance covers the
// amount; the balance check and the debit are one atomic statement.
func (r *WalletRepository) DebitIfSufficient(ctx context.Context, tenantID int64, amount float64) error {
	query := `
		UPDATE wallets
		SET balance = balance - $1, last_updated = $2
		WHERE tenant_id = $3 AND balance >= $1
	`

	result, err := r.db.Exec(ctx, query, amount, time.Now(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrPaymentRailFailure
	}

	return nil
}

// Credit adds funds back, used only to unwind a wallet debit whose ledger
// crediting failed.
func (r *WalletRepository) Credit(ctx context.Context, tenantID int64, amount float64) error {
	query := `
		UPDATE wallets
		SET balance = balance + $1, last_updated = $2
		WHERE tenant_id = $3
	`

	result, err := r.db.Exec(ctx, query, amount, time.Now(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}
