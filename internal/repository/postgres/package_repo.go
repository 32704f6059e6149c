// internal/repository/postgres/package_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"tuma-service/internal/domain/credit"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PackageRepository struct {
	db *pgxpool.Pool
}

func NewPackageRepository(db *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{db: db}
}

// List retrieves active credit packages, primary package first.
func (r *PackageRepository) List(ctx context.Context) ([]credit.Package, error) {
	query := `
		SELECT id, slug, name, credits, price, currency, discount_percent,
		       is_primary, status, created_at, updated_at
		FROM credit_packages
		WHERE status = 'active'
		ORDER BY is_primary DESC, credits ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit packages: %w", err)
	}
	defer rows.Close()

	packages := []credit.Package{}
	for rows.Next() {
		var p credit.Package
		if err := rows.Scan(
			&p.ID, &p.Slug, &p.Name, &p.Credits, &p.Price, &p.Currency, &p.DiscountPercent,
			&p.IsPrimary, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credit package: %w", err)
		}
		packages = append(packages, p)
	}

	return packages, nil
}

// FindByID retrieves a credit package by ID
func (r *PackageRepository) FindByID(ctx context.Context, id int64) (*credit.Package, error) {
	query := `
		SELECT id, slug, name, credits, price, currency, discount_percent,
		       is_primary, status, created_at, updated_at
		FROM credit_packages
		WHERE id = $1
	`

	var p credit.Package
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Slug, &p.Name, &p.Credits, &p.Price, &p.Currency, &p.DiscountPercent,
		&p.IsPrimary, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credit package: %w", err)
	}

	return &p, nil
}
