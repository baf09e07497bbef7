package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

// PaymentHandler предоставляет HTTP слой для платежей.
type PaymentHandler struct {
	payments *service.PaymentService
	orders   *service.OrderService
}

// NewPaymentHandler создаёт хэндлер.
func NewPaymentHandler(payments *service.PaymentService, orders *service.OrderService) *PaymentHandler {
	return &PaymentHandler{payments: payments, orders: orders}
}

// FinalizeCheckout обрабатывает POST /payments/finalize.
// Вызывается фронтендом после возврата с платёжной страницы: статус сессии
// перепроверяется у шлюза, поэтому endpoint безопасен даже если вебхук
// обгонит или отстанет.
func (h *PaymentHandler) FinalizeCheckout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		PaymentID string `json:"payment_id" binding:"required"`
		OrderID   string `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		common.RespondBadRequest(c, "неверный payment_id")
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		common.RespondBadRequest(c, "неверный order_id")
		return
	}

	// Финализировать оплату может только участник заказа
	if _, err := h.orders.GetOrder(c.Request.Context(), orderID, userID); err != nil {
		c.Error(err)
		return
	}

	payment, err := h.payments.FinalizeWithoutWebhook(c.Request.Context(), paymentID, orderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// GetOrderPayment обрабатывает GET /orders/:id/payment.
func (h *PaymentHandler) GetOrderPayment(c *gin.Context) {
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

	if _, err := h.orders.GetOrder(c.Request.Context(), orderID, userID); err != nil {
		c.Error(err)
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}

	refunds, err := h.payments.ListRefunds(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.OrderPaymentResponse{
		Payment: payment,
		Refunds: refunds,
	})
}

// RefundOrder обрабатывает POST /admin/orders/:id/refund.
// Пустая сумма означает возврат всего остатка платежа.
func (h *PaymentHandler) RefundOrder(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.payments.RefundPayment(c.Request.Context(), orderID, req.Amount)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, payment)
}
