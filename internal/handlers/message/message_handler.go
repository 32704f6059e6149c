// internal/handlers/message/message_handler.go
package message

import (
	"errors"
	"net/http"
	"strconv"

	"tuma-service/internal/domain/message"
	"tuma-service/internal/middleware"
	xerrors "tuma-service/internal/pkg/errors"
	"tuma-service/internal/pkg/response"
	"tuma-service/internal/service/delivery"
	"tuma-service/internal/service/dispatch"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	dispatchService *dispatch.Service
	tracker         *delivery.Tracker
}

func NewMessageHandler(dispatchService *dispatch.Service, tracker *delivery.Tracker) *MessageHandler {
	return &MessageHandler{dispatchService: dispatchService, tracker: tracker}
}

// Send debits credits and submits a message batch immediately.
func (h *MessageHandler) Send(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	role := middleware.GetRole(c)

	var req message.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	log, err := h.dispatchService.SendNow(c.Request.Context(), tenantID, role, &req)
	if err != nil {
		h.writeError(c, "failed to send message", err)
		return
	}

	response.Success(c, http.StatusCreated, "message submitted", log)
}

// CreateScheduled queues a message for future dispatch.
func (h *MessageHandler) CreateScheduled(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	role := middleware.GetRole(c)

	var req message.CreateScheduledMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	m, err := h.dispatchService.CreateScheduled(c.Request.Context(), tenantID, role, &req)
	if err != nil {
		h.writeError(c, "failed to schedule message", err)
		return
	}

	response.Success(c, http.StatusCreated, "message scheduled", m)
}

// GetScheduled fetches one scheduled message.
func (h *MessageHandler) GetScheduled(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid message id", err)
		return
	}

	m, err := h.dispatchService.Get(c.Request.Context(), tenantID, messageID)
	if err != nil {
		h.writeError(c, "failed to fetch scheduled message", err)
		return
	}

	response.Success(c, http.StatusOK, "scheduled message fetched", m)
}

// ListScheduled lists the tenant's scheduled messages.
func (h *MessageHandler) ListScheduled(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters message.ScheduledListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}
	filters.Normalize()

	result, err := h.dispatchService.List(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list scheduled messages", err)
		return
	}

	response.Success(c, http.StatusOK, "scheduled messages fetched", result)
}

// CancelScheduled cancels a pending scheduled message. It races the
// dispatcher's claim; a message already picked up comes back as a conflict.
func (h *MessageHandler) CancelScheduled(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid message id", err)
		return
	}

	if err := h.dispatchService.Cancel(c.Request.Context(), tenantID, messageID); err != nil {
		h.writeError(c, "failed to cancel scheduled message", err)
		return
	}

	response.Success(c, http.StatusOK, "scheduled message cancelled", nil)
}

// Stats returns the tenant's scheduled-message counters.
func (h *MessageHandler) Stats(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	stats, err := h.dispatchService.Stats(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to fetch dispatch stats", err)
		return
	}

	response.Success(c, http.StatusOK, "dispatch stats fetched", stats)
}

// GetLogDetail returns a message log with its per-recipient records.
func (h *MessageHandler) GetLogDetail(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	logID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid log id", err)
		return
	}

	detail, err := h.tracker.GetDetail(c.Request.Context(), tenantID, logID)
	if err != nil {
		h.writeError(c, "failed to fetch message log", err)
		return
	}

	response.Success(c, http.StatusOK, "message log fetched", detail)
}

// DeliveryWebhook ingests per-recipient status callbacks from the carrier.
// Duplicates and out-of-order callbacks are recorded and absorbed, so the
// carrier never needs to retry a callback it already delivered.
func (h *MessageHandler) DeliveryWebhook(c *gin.Context) {
	var cb message.DeliveryCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid callback payload", err)
		return
	}

	if err := h.tracker.Ingest(c.Request.Context(), &cb); err != nil {
		h.writeError(c, "failed to process delivery callback", err)
		return
	}

	response.Success(c, http.StatusOK, "callback processed", nil)
}

func (h *MessageHandler) writeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		response.Error(c, http.StatusNotFound, msg, err)
	case errors.Is(err, xerrors.ErrUnauthorized):
		response.Error(c, http.StatusForbidden, msg, err)
	case errors.Is(err, xerrors.ErrFeatureNotEntitled):
		response.Error(c, http.StatusForbidden, msg, err)
	case errors.Is(err, xerrors.ErrInvalidStateTransition):
		response.Conflict(c, msg, err)
	case errors.Is(err, xerrors.ErrInsufficientCredits),
		errors.Is(err, xerrors.ErrInvalidInput),
		errors.Is(err, xerrors.ErrDispatchFailure):
		response.Error(c, http.StatusBadRequest, msg, err)
	default:
		response.Error(c, http.StatusInternalServerError, msg, err)
	}
}
