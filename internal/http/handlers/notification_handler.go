package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

// NotificationHandler предоставляет HTTP слой для уведомлений.
type NotificationHandler struct {
	svc *service.NotificationService
}

// NewNotificationHandler создаёт хэндлер.
func NewNotificationHandler(s *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: s}
}

// ListNotifications обрабатывает GET /notifications.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	unreadOnly, _ := strconv.ParseBool(c.Query("unread_only"))

	notifications, err := h.svc.ListNotifications(c.Request.Context(), userID, limit, offset, unreadOnly)
	if err != nil {
		c.Error(err)
		return
	}

	unread, err := h.svc.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NotificationsResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	})
}

// MarkAsRead обрабатывает POST /notifications/:id/read.
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	notificationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.MarkAsRead(c.Request.Context(), notificationID, userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "уведомление прочитано"})
}

// MarkAllAsRead обрабатывает POST /notifications/read-all.
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	if err := h.svc.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "все уведомления прочитаны"})
}
