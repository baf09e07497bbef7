package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/service"
	"github.com/skillmarket/marketplace-backend/internal/validation"
)

// OrderHandler предоставляет HTTP слой для заказов.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler создаёт хэндлер.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder обрабатывает POST /orders.
// В ответе вместе с заказом возвращается ссылка на оплату.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateRequirements(req.Requirements); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	serviceID, err := req.ParseServiceID()
	if err != nil {
		common.RespondBadRequest(c, "неверный service_id")
		return
	}

	attachmentIDs, err := req.ParseAttachmentIDs()
	if err != nil {
		common.RespondBadRequest(c, "неверный формат attachment_ids")
		return
	}

	order, checkoutURL, err := h.orders.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		ClientID:            userID,
		ServiceID:           serviceID,
		Requirements:        req.Requirements,
		RequirementMediaIDs: attachmentIDs,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateOrderResponse{
		Order:       order,
		CheckoutURL: checkoutURL,
	})
}

// GetOrder обрабатывает GET /orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
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

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListMyOrders обрабатывает GET /orders.
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	orders, err := h.orders.ListMyOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// DeliverOrder обрабатывает POST /orders/:id/deliver.
func (h *OrderHandler) DeliverOrder(c *gin.Context) {
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

	var req dto.DeliverOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateDeliveryMessage(req.Message); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	fileIDs, err := req.ParseFileIDs()
	if err != nil {
		common.RespondBadRequest(c, "неверный формат file_ids")
		return
	}

	order, err := h.orders.DeliverOrder(c.Request.Context(), orderID, userID, req.Message, fileIDs)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// RequestRevision обрабатывает POST /orders/:id/revision.
func (h *OrderHandler) RequestRevision(c *gin.Context) {
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

	order, err := h.orders.RequestRevision(c.Request.Context(), orderID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CompleteOrder обрабатывает POST /orders/:id/complete.
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
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

	order, err := h.orders.CompleteOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CancelOrder обрабатывает POST /orders/:id/cancel.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
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

	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, order)
}
