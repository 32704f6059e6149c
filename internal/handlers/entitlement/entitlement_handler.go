// internal/handlers/entitlement/entitlement_handler.go
package entitlement

import (
	"net/http"

	"tuma-service/internal/domain/plan"
	"tuma-service/internal/middleware"
	"tuma-service/internal/pkg/response"
	service "tuma-service/internal/service/entitlement"

	"github.com/gin-gonic/gin"
)

type EntitlementHandler struct {
	entitlementService *service.Service
}

func NewEntitlementHandler(entitlementService *service.Service) *EntitlementHandler {
	return &EntitlementHandler{entitlementService: entitlementService}
}

// GetFeatures returns the resolved feature matrix for the caller's tenant.
// Cheap and cacheable; clients poll it after plan changes.
func (h *EntitlementHandler) GetFeatures(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	role := middleware.GetRole(c)

	matrix, err := h.entitlementService.FeatureMatrix(c.Request.Context(), tenantID, role)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to resolve features", err)
		return
	}

	response.Success(c, http.StatusOK, "features resolved", gin.H{"features": matrix})
}

// GetLimit returns the ceiling for one limit key.
func (h *EntitlementHandler) GetLimit(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	role := middleware.GetRole(c)
	key := c.Param("key")

	limit, err := h.entitlementService.LimitFor(c.Request.Context(), tenantID, role, key)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to resolve limit", err)
		return
	}

	body := gin.H{"key": key, "kind": limit.Kind()}
	if limit.Kind() == plan.LimitKindBounded {
		body["value"] = limit.Value()
	}

	response.Success(c, http.StatusOK, "limit resolved", body)
}
