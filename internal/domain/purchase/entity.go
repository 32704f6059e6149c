// internal/domain/purchase/entity.go
package purchase

import (
	"database/sql"
	"time"
)

type Rail string

const (
	RailWallet  Rail = "wallet"
	RailGateway Rail = "gateway"
)

func (r Rail) Valid() bool { return r == RailWallet || r == RailGateway }

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Purchase is one attempt to buy a credit package. Its Reference funds
// exactly one ledger transaction; every settlement or failure must first
// claim the attempt with a pending -> processing transition, so whichever
// caller wins the claim owns the outcome and everyone else is absorbed.
type Purchase struct {
	ID        int64 `json:"id" db:"id"`
	TenantID  int64 `json:"tenant_id" db:"tenant_id"`
	PackageID int64 `json:"package_id" db:"package_id"`

	Reference string `json:"reference" db:"reference"`
	Rail      Rail   `json:"rail" db:"rail"`

	Amount   float64 `json:"amount" db:"amount"`
	Currency string  `json:"currency" db:"currency"`
	Credits  int64   `json:"credits" db:"credits"`

	Status       Status         `json:"status" db:"status"`
	CreditsAdded bool           `json:"credits_added" db:"credits_added"`
	FailureReason sql.NullString `json:"failure_reason,omitempty" db:"failure_reason"`

	// Gateway rail only
	GatewaySessionID sql.NullString `json:"gateway_session_id,omitempty" db:"gateway_session_id"`

	CompletedAt sql.NullTime `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

func (p *Purchase) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}
