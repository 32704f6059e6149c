// internal/handlers/credit/credit_handler.go
package credit

import (
	"net/http"

	"tuma-service/internal/domain/credit"
	"tuma-service/internal/middleware"
	"tuma-service/internal/pkg/response"
	service "tuma-service/internal/service/credit"

	"github.com/gin-gonic/gin"
)

type CreditHandler struct {
	ledger *service.Ledger
}

func NewCreditHandler(ledger *service.Ledger) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// GetBalance returns the tenant's balance summary.
func (h *CreditHandler) GetBalance(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	summary, err := h.ledger.Summary(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to fetch balance", err)
		return
	}

	response.Success(c, http.StatusOK, "balance fetched", summary)
}

// ListTransactions returns the tenant's ledger history, newest first.
func (h *CreditHandler) ListTransactions(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters credit.TransactionListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}
	filters.Normalize()

	result, err := h.ledger.Transactions(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list transactions", err)
		return
	}

	response.Success(c, http.StatusOK, "transactions fetched", result)
}
