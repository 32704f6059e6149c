// internal/domain/credit/dto.go
package credit

// BalanceSummary is the /credits read model.
type BalanceSummary struct {
	Balance          int64 `json:"balance"`
	PlanCredits      int64 `json:"plan_credits"`
	PurchasedCredits int64 `json:"purchased_credits"`
	TotalAdded       int64 `json:"total_added"`
	TotalUsed        int64 `json:"total_used"`
}

func SummaryFromAccount(a *Account) *BalanceSummary {
	return &BalanceSummary{
		Balance:          a.Balance(),
		PlanCredits:      a.PlanCredits,
		PurchasedCredits: a.PurchasedCredits,
		TotalAdded:       a.PlanCredits + a.PurchasedCredits,
		TotalUsed:        a.TotalUsed,
	}
}

type TransactionListFilters struct {
	Kind     *TransactionKind `form:"kind"`
	Page     int              `form:"page"`
	PageSize int              `form:"page_size"`
}

func (f *TransactionListFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
}
