package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/service"
	"github.com/skillmarket/marketplace-backend/internal/validation"
)

// DisputeHandler предоставляет HTTP слой для споров.
type DisputeHandler struct {
	svc *service.DisputeService
}

// NewDisputeHandler создаёт хэндлер.
func NewDisputeHandler(s *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{svc: s}
}

// CreateDispute обрабатывает POST /orders/:id/dispute.
func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.CreateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateDisputeReason(req.Reason); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.CreateDispute(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dispute)
}

// GetOrderDispute обрабатывает GET /orders/:id/dispute.
func (h *DisputeHandler) GetOrderDispute(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.GetOpenDisputeForOrder(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// ListMyDisputes обрабатывает GET /disputes.
func (h *DisputeHandler) ListMyDisputes(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	disputes, err := h.svc.ListUserDisputes(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

// ListOpenDisputes обрабатывает GET /admin/disputes.
func (h *DisputeHandler) ListOpenDisputes(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	disputes, err := h.svc.ListOpenDisputes(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

// ResolveDispute обрабатывает POST /admin/disputes/:id/resolve.
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.ResolveDispute(c.Request.Context(), disputeID, adminID, req.Resolution, req.Notes, req.PartialAmount)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}
