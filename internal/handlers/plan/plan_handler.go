// internal/handlers/plan/plan_handler.go
package plan

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	domain "tuma-service/internal/domain/plan"
	"tuma-service/internal/middleware"
	xerrors "tuma-service/internal/pkg/errors"
	"tuma-service/internal/pkg/response"
	service "tuma-service/internal/service/plan"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	planService *service.Service
}

func NewPlanHandler(planService *service.Service) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// ListPlans returns the active plan catalog.
func (h *PlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.planService.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list plans", err)
		return
	}

	response.Success(c, http.StatusOK, "plans fetched", gin.H{"plans": plans})
}

// GetDefaultPlan returns the plan new tenants start on.
func (h *PlanHandler) GetDefaultPlan(c *gin.Context) {
	p, err := h.planService.Default(c.Request.Context())
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "no default plan configured")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to fetch default plan", err)
		return
	}

	response.Success(c, http.StatusOK, "default plan fetched", p)
}

// GetPlan returns one plan.
func (h *PlanHandler) GetPlan(c *gin.Context) {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan id", err)
		return
	}

	p, err := h.planService.Get(c.Request.Context(), planID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "plan not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to fetch plan", err)
		return
	}

	response.Success(c, http.StatusOK, "plan fetched", p)
}

// PublishPlan creates a new plan version. Super-admin only.
func (h *PlanHandler) PublishPlan(c *gin.Context) {
	if !middleware.IsSuperAdmin(c) {
		response.Forbidden(c, "super admin access required")
		return
	}

	var p domain.Plan
	if err := c.ShouldBindJSON(&p); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	published, err := h.planService.Publish(c.Request.Context(), &p)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, "invalid plan definition", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to publish plan", err)
		return
	}

	response.Success(c, http.StatusCreated, "plan published", published)
}

// RetirePlan marks a plan inactive. Super-admin only.
func (h *PlanHandler) RetirePlan(c *gin.Context) {
	if !middleware.IsSuperAdmin(c) {
		response.Forbidden(c, "super admin access required")
		return
	}

	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan id", err)
		return
	}

	if err := h.planService.Retire(c.Request.Context(), planID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "plan not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to retire plan", err)
		return
	}

	response.Success(c, http.StatusOK, "plan retired", nil)
}

type assignPlanRequest struct {
	TenantID int64 `json:"tenant_id" binding:"required"`
	PlanID   int64 `json:"plan_id" binding:"required"`
}

// AssignPlan moves a tenant onto a plan. Super-admin only.
func (h *PlanHandler) AssignPlan(c *gin.Context) {
	if !middleware.IsSuperAdmin(c) {
		response.Forbidden(c, "super admin access required")
		return
	}

	var req assignPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.planService.AssignPlan(c.Request.Context(), req.TenantID, req.PlanID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "plan not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to assign plan", err)
		return
	}

	response.Success(c, http.StatusOK, "plan assigned", nil)
}

type grantCreditsRequest struct {
	TenantID int64 `json:"tenant_id" binding:"required"`
	PlanID   int64 `json:"plan_id" binding:"required"`
}

// GrantPeriodCredits grants the plan's credit allotment for the current
// billing period. Re-running it within a period is a no-op. Super-admin only.
func (h *PlanHandler) GrantPeriodCredits(c *gin.Context) {
	if !middleware.IsSuperAdmin(c) {
		response.Forbidden(c, "super admin access required")
		return
	}

	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.planService.GrantPeriodCredits(c.Request.Context(), req.TenantID, req.PlanID, time.Now()); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "plan not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to grant credits", err)
		return
	}

	response.Success(c, http.StatusOK, "credits granted", nil)
}
