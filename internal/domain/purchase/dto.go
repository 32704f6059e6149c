// internal/domain/purchase/dto.go
package purchase

import "encoding/json"

type InitiateRequest struct {
	PackageID int64 `json:"package_id" binding:"required"`
	Rail      Rail  `json:"rail" binding:"required"`
}

// InitiateResponse carries rail-specific session data back to the client.
// CheckoutURL is empty for the wallet rail.
type InitiateResponse struct {
	PurchaseID  int64   `json:"purchase_id"`
	Reference   string  `json:"reference"`
	Rail        Rail    `json:"rail"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Credits     int64   `json:"credits"`
	Status      Status  `json:"status"`
	CheckoutURL string  `json:"checkout_url,omitempty"`
}

type GatewayOutcome string

const (
	GatewayOutcomeSuccess GatewayOutcome = "success"
	GatewayOutcomeFailed  GatewayOutcome = "failed"
)

// GatewayCallback is the webhook payload from the external payment gateway.
// Raw is retained verbatim for audit.
type GatewayCallback struct {
	Reference string          `json:"reference" binding:"required"`
	Outcome   GatewayOutcome  `json:"outcome" binding:"required"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

type ListFilters struct {
	Status   *Status `form:"status"`
	Rail     *Rail   `form:"rail"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

func (f *ListFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

type ListResponse struct {
	Purchases []Purchase `json:"purchases"`
	Total     int64      `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}
