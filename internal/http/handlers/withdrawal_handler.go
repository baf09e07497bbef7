package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

// WithdrawalHandler предоставляет HTTP слой для баланса и вывода средств.
type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

// NewWithdrawalHandler создаёт хэндлер.
func NewWithdrawalHandler(s *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: s}
}

// GetBalance обрабатывает GET /balance.
// Параметр with_entries=true добавляет в ответ историю движений.
func (h *WithdrawalHandler) GetBalance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	balance, err := h.svc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	resp := dto.BalanceResponse{Balance: balance}

	if withEntries, _ := strconv.ParseBool(c.Query("with_entries")); withEntries {
		limit, offset := common.GetPagination(c)
		entries, err := h.svc.ListLedgerEntries(c.Request.Context(), userID, limit, offset)
		if err != nil {
			c.Error(err)
			return
		}
		resp.Entries = entries
	}

	c.JSON(http.StatusOK, resp)
}

// ListLedgerEntries обрабатывает GET /balance/entries.
func (h *WithdrawalHandler) ListLedgerEntries(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	entries, err := h.svc.ListLedgerEntries(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// CreateWithdrawal обрабатывает POST /withdrawals.
func (h *WithdrawalHandler) CreateWithdrawal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	w, err := h.svc.CreateWithdrawal(c.Request.Context(), userID, req.Amount, req.CardLast4, req.BankName)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, w)
}

// ListWithdrawals обрабатывает GET /withdrawals.
func (h *WithdrawalHandler) ListWithdrawals(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	withdrawals, err := h.svc.ListUserWithdrawals(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawals": withdrawals})
}

// ListPendingWithdrawals обрабатывает GET /admin/withdrawals.
func (h *WithdrawalHandler) ListPendingWithdrawals(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	withdrawals, err := h.svc.ListPendingWithdrawals(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawals": withdrawals})
}

// ApproveWithdrawal обрабатывает POST /admin/withdrawals/:id/approve.
func (h *WithdrawalHandler) ApproveWithdrawal(c *gin.Context) {
	withdrawalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	w, err := h.svc.ApproveWithdrawal(c.Request.Context(), withdrawalID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, w)
}

// RejectWithdrawal обрабатывает POST /admin/withdrawals/:id/reject.
func (h *WithdrawalHandler) RejectWithdrawal(c *gin.Context) {
	withdrawalID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	w, err := h.svc.RejectWithdrawal(c.Request.Context(), withdrawalID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, w)
}
