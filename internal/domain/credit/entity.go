// internal/domain/credit/entity.go
package credit

import "time"

type TransactionKind string

const (
	TransactionGrant    TransactionKind = "grant"
	TransactionPurchase TransactionKind = "purchase"
	TransactionDebit    TransactionKind = "debit"
	TransactionRefund   TransactionKind = "refund"
)

// Account holds a tenant's credit pools. The fields are a materialized
// projection of the transaction log; Balance is always derivable as
// planCredits + purchasedCredits - totalUsed and never goes negative.
type Account struct {
	ID               int64 `json:"id" db:"id"`
	TenantID         int64 `json:"tenant_id" db:"tenant_id"`
	PlanCredits      int64 `json:"plan_credits" db:"plan_credits"`
	PurchasedCredits int64 `json:"purchased_credits" db:"purchased_credits"`
	TotalUsed        int64 `json:"total_used" db:"total_used"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (a *Account) Balance() int64 {
	return a.PlanCredits + a.PurchasedCredits - a.TotalUsed
}

// Transaction is an append-only ledger entry. (Kind, Reference) is the
// idempotency key: replays of the same reference are no-ops.
type Transaction struct {
	ID           int64           `json:"id" db:"id"`
	TenantID     int64           `json:"tenant_id" db:"tenant_id"`
	Kind         TransactionKind `json:"kind" db:"kind"`
	Amount       int64           `json:"amount" db:"amount"`
	Reference    string          `json:"reference" db:"reference"`
	BalanceAfter int64           `json:"balance_after" db:"balance_after"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type PackageStatus string

const (
	PackageStatusActive   PackageStatus = "active"
	PackageStatusInactive PackageStatus = "inactive"
)

// Package is a purchasable credit bundle. Immutable during an active
// purchase; pricing changes publish a new row.
type Package struct {
	ID              int64         `json:"id" db:"id"`
	Slug            string        `json:"slug" db:"slug"`
	Name            string        `json:"name" db:"name"`
	Credits         int64         `json:"credits" db:"credits"`
	Price           float64       `json:"price" db:"price"`
	Currency        string        `json:"currency" db:"currency"`
	DiscountPercent float64       `json:"discount_percent" db:"discount_percent"`
	IsPrimary       bool          `json:"is_primary" db:"is_primary"`
	Status          PackageStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
