package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

// Заголовок с подписью вебхука платёжного шлюза.
const signatureHeader = "Gateway-Signature"

// Лимит тела вебхука, защита от произвольно больших запросов.
const maxWebhookBody = 256 * 1024

// WebhookHandler принимает вебхуки платёжного шлюза.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

// NewWebhookHandler создаёт хэндлер.
func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Handle обрабатывает POST /webhooks/gateway.
// 401 — неверная подпись, 200 — событие принято (в том числе повторное),
// 500 — ошибка обработки: событие уже записано в журнал, переотправка шлюза
// будет поглощена дедупликацией, разбор — по журналу необработанных событий.
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать тело запроса"})
		return
	}

	err = h.webhooks.ProcessWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "подпись невалидна"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "событие не обработано"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
