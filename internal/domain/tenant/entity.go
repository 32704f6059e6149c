// internal/domain/tenant/entity.go
package tenant

import "time"

type Role string

const (
	RoleMerchant   Role = "merchant"
	RoleSuperAdmin Role = "super_admin"
)

// IsSuperAdmin reports whether the acting role bypasses feature and limit
// checks entirely.
func (r Role) IsSuperAdmin() bool { return r == RoleSuperAdmin }

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is a merchant organization with its own plan, credits and data.
type Tenant struct {
	ID     int64        `json:"id" db:"id"`
	Name   string       `json:"name" db:"name"`
	PlanID int64        `json:"plan_id" db:"plan_id"`
	Status TenantStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
