// internal/domain/plan/entity.go
package plan

import (
	"time"
)

type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusInactive PlanStatus = "inactive"
	PlanStatusArchived PlanStatus = "archived"
)

// Feature keys recognised by the entitlement resolver. Plans may carry
// additional keys; unknown keys resolve to false.
const (
	FeatureSMS               = "sms"
	FeatureScheduledMessages = "scheduledMessages"
	FeatureBulkSend          = "bulkSend"
	FeatureReports           = "reports"
)

// Limit keys. smsCredits doubles as the monthly plan-credit grant amount.
const (
	LimitSMSCredits              = "smsCredits"
	LimitMaxRecipientsPerMessage = "maxRecipientsPerMessage"
	LimitMaxScheduledMessages    = "maxScheduledMessages"
	LimitMaxBranches             = "maxBranches"
)

// FeatureMatrix maps feature key -> enabled.
type FeatureMatrix map[string]bool

// LimitMatrix maps limit key -> ceiling.
type LimitMatrix map[string]Limit

type Plan struct {
	ID          int64  `json:"id" db:"id"`
	PlanCode    string `json:"plan_code" db:"plan_code"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Version     int    `json:"version" db:"version"`

	Price    float64 `json:"price" db:"price"`
	Currency string  `json:"currency" db:"currency"`

	Features FeatureMatrix `json:"features" db:"features"`
	Limits   LimitMatrix   `json:"limits" db:"limits"`

	Status    PlanStatus `json:"status" db:"status"`
	IsDefault bool       `json:"is_default" db:"is_default"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasFeature reports whether the plan enables the given feature key.
// A missing key is false, never an error.
func (p *Plan) HasFeature(key string) bool {
	if p.Features == nil {
		return false
	}
	return p.Features[key]
}

// LimitFor returns the plan's ceiling for the given limit key. A key absent
// from the matrix yields NoAccess, not Unlimited; an unconfigured plan must
// not silently grant unbounded use.
func (p *Plan) LimitFor(key string) Limit {
	if p.Limits == nil {
		return NoAccess()
	}
	l, ok := p.Limits[key]
	if !ok {
		return NoAccess()
	}
	return l
}
