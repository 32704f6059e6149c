// internal/domain/wallet/entity.go
package wallet

import "time"

// Wallet is the tenant's monetary balance, an external collaborator to the
// credit core: the purchase orchestrator only debits it as a payment rail.
type Wallet struct {
	ID          int64     `json:"id" db:"id"`
	TenantID    int64     `json:"tenant_id" db:"tenant_id"`
	Balance     float64   `json:"balance" db:"balance"`
	Currency    string    `json:"currency" db:"currency"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}
