// internal/repository/postgres/contact_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ContactRepository is a read-only view over the directory owned by the
// surrounding CRUD product. The dispatcher only needs to expand a category
// query into phone numbers at execution time.
type ContactRepository struct {
	db *pgxpool.Pool
}

func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// Resolve expands a recipient query (a contact category) into phones.
func (r *ContactRepository) Resolve(ctx context.Context, tenantID int64, query string) ([]string, error) {
	sql := `
		SELECT phone
		FROM contacts
		WHERE tenant_id = $1 AND category = $2
		ORDER BY phone ASC
	`

	rows, err := r.db.Query(ctx, sql, tenantID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	defer rows.Close()

	phones := []string{}
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		phones = append(phones, phone)
	}

	return phones, nil
}
