// internal/handlers/purchase/purchase_handler.go
package purchase

import (
	"errors"
	"net/http"
	"strconv"

	"tuma-service/internal/domain/purchase"
	"tuma-service/internal/middleware"
	xerrors "tuma-service/internal/pkg/errors"
	"tuma-service/internal/pkg/response"
	service "tuma-service/internal/service/purchase"

	"github.com/gin-gonic/gin"
)

type PurchaseHandler struct {
	orchestrator *service.Orchestrator
}

func NewPurchaseHandler(orchestrator *service.Orchestrator) *PurchaseHandler {
	return &PurchaseHandler{orchestrator: orchestrator}
}

// ListPackages returns the purchasable credit packages.
func (h *PurchaseHandler) ListPackages(c *gin.Context) {
	packages, err := h.orchestrator.Packages(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list packages", err)
		return
	}

	response.Success(c, http.StatusOK, "packages fetched", gin.H{"packages": packages})
}

// GetWallet returns the tenant's monetary wallet balance.
func (h *PurchaseHandler) GetWallet(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	w, err := h.orchestrator.WalletBalance(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, "failed to fetch wallet", err)
		return
	}

	response.Success(c, http.StatusOK, "wallet fetched", w)
}

// Initiate opens a purchase attempt on the chosen rail.
func (h *PurchaseHandler) Initiate(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req purchase.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.orchestrator.Initiate(c.Request.Context(), tenantID, &req)
	if err != nil {
		h.writeError(c, "failed to initiate purchase", err)
		return
	}

	response.Success(c, http.StatusCreated, "purchase initiated", resp)
}

// ConfirmWallet settles a wallet-rail purchase synchronously.
func (h *PurchaseHandler) ConfirmWallet(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	purchaseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid purchase id", err)
		return
	}

	p, err := h.orchestrator.ConfirmWallet(c.Request.Context(), tenantID, purchaseID)
	if err != nil {
		h.writeError(c, "failed to confirm purchase", err)
		return
	}

	response.Success(c, http.StatusOK, "purchase confirmed", p)
}

// Verify is the client-polled settlement fallback for the gateway rail.
func (h *PurchaseHandler) Verify(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	ref := c.Param("reference")

	p, err := h.orchestrator.Verify(c.Request.Context(), tenantID, ref)
	if err != nil {
		h.writeError(c, "failed to verify purchase", err)
		return
	}

	response.Success(c, http.StatusOK, "purchase verified", p)
}

// Cancel abandons a pending purchase.
func (h *PurchaseHandler) Cancel(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	purchaseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid purchase id", err)
		return
	}

	p, err := h.orchestrator.Cancel(c.Request.Context(), tenantID, purchaseID)
	if err != nil {
		h.writeError(c, "failed to cancel purchase", err)
		return
	}

	response.Success(c, http.StatusOK, "purchase cancelled", p)
}

// List returns the tenant's purchase history.
func (h *PurchaseHandler) List(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters purchase.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}
	filters.Normalize()

	result, err := h.orchestrator.List(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list purchases", err)
		return
	}

	response.Success(c, http.StatusOK, "purchases fetched", result)
}

// GatewayWebhook ingests payment confirmations from the gateway. Retries of
// the same confirmation are absorbed, so the gateway always gets a 200 for a
// purchase it has already settled.
func (h *PurchaseHandler) GatewayWebhook(c *gin.Context) {
	var cb purchase.GatewayCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid callback payload", err)
		return
	}

	p, err := h.orchestrator.ConfirmGateway(c.Request.Context(), cb.Reference, cb.Outcome)
	if err != nil {
		h.writeError(c, "failed to process payment callback", err)
		return
	}

	response.Success(c, http.StatusOK, "callback processed", p)
}

func (h *PurchaseHandler) writeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		response.Error(c, http.StatusNotFound, msg, err)
	case errors.Is(err, xerrors.ErrUnauthorized):
		response.Error(c, http.StatusForbidden, msg, err)
	case errors.Is(err, xerrors.ErrInvalidStateTransition):
		response.Conflict(c, msg, err)
	case errors.Is(err, xerrors.ErrPaymentRailFailure), errors.Is(err, xerrors.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, msg, err)
	default:
		response.Error(c, http.StatusInternalServerError, msg, err)
	}
}
