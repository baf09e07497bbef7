package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/logger"
	"github.com/skillmarket/marketplace-backend/internal/pkg/apperror"
	"github.com/skillmarket/marketplace-backend/internal/repository"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

// Соответствие известных ошибок слоя сервисов и репозиториев HTTP-ответам.
// Всё, что не перечислено, маскируется как внутренняя ошибка.
var errorStatusMap = []struct {
	err     error
	status  int
	message string
}{
	// 404
	{repository.ErrUserNotFound, http.StatusNotFound, "пользователь не найден"},
	{repository.ErrOrderNotFound, http.StatusNotFound, "заказ не найден"},
	{repository.ErrServiceNotFound, http.StatusNotFound, "услуга не найдена"},
	{repository.ErrPaymentNotFound, http.StatusNotFound, "платёж не найден"},
	{repository.ErrDisputeNotFound, http.StatusNotFound, "спор не найден"},
	{repository.ErrWithdrawalNotFound, http.StatusNotFound, "заявка на вывод не найдена"},
	{repository.ErrNotificationNotFound, http.StatusNotFound, "уведомление не найдено"},
	{repository.ErrMediaNotFound, http.StatusNotFound, "файл не найден"},
	{repository.ErrBalanceNotFound, http.StatusNotFound, "баланс не найден"},

	// 400
	{service.ErrRequirementsTooShort, http.StatusBadRequest, "требования к заказу должны содержать не менее 10 символов"},
	{service.ErrDisputeReasonTooShort, http.StatusBadRequest, "причина спора должна содержать не менее 10 символов"},
	{service.ErrDeliveryIncomplete, http.StatusBadRequest, "для сдачи работы нужны сообщение и хотя бы один файл"},
	{service.ErrServiceFieldsInvalid, http.StatusBadRequest, "название, описание и срок выполнения услуги обязательны"},
	{service.ErrServicePriceInvalid, http.StatusBadRequest, "цена услуги должна быть положительной"},
	{service.ErrSettingsInvalid, http.StatusBadRequest, "комиссия должна быть в диапазоне от 0 до 100, лимит правок неотрицательным"},
	{service.ErrInvalidResolution, http.StatusBadRequest, "неизвестное решение по спору"},
	{service.ErrPartialAmountInvalid, http.StatusBadRequest, "сумма частичного возврата должна быть положительной и не превышать цену заказа"},
	{service.ErrRefundTooLarge, http.StatusBadRequest, "сумма возврата превышает остаток платежа"},
	{service.ErrMinWithdrawalAmount, http.StatusBadRequest, "минимальная сумма вывода — 100 рублей"},

	// 401
	{gateway.ErrInvalidSignature, http.StatusUnauthorized, "подпись вебхука невалидна"},

	// 403
	{service.ErrNotOrderClient, http.StatusForbidden, "действие доступно только клиенту заказа"},
	{service.ErrNotOrderStudent, http.StatusForbidden, "действие доступно только исполнителю заказа"},
	{service.ErrNotParticipant, http.StatusForbidden, "вы не участник этого заказа"},
	{service.ErrOwnService, http.StatusForbidden, "нельзя заказать собственную услугу"},

	// 409: конфликт текущего состояния
	{repository.ErrInvalidTransition, http.StatusConflict, "заказ находится в неподходящем статусе"},
	{repository.ErrDisputeExists, http.StatusConflict, "по заказу уже открыт спор"},
	{repository.ErrDisputeNotOpen, http.StatusConflict, "спор уже закрыт"},
	{repository.ErrWithdrawalNotPending, http.StatusConflict, "заявка на вывод уже обработана"},
	{repository.ErrInsufficientFunds, http.StatusConflict, "недостаточно средств на балансе"},
	{service.ErrServiceNotActive, http.StatusConflict, "услуга недоступна для заказа"},
	{service.ErrOrderNotCancellable, http.StatusConflict, "отменить можно только неоплаченный заказ"},
	{service.ErrRevisionLimitReached, http.StatusConflict, "лимит правок исчерпан, откройте спор"},
	{service.ErrOrderNotDisputable, http.StatusConflict, "статус заказа не позволяет открыть спор"},
	{service.ErrPaymentNotRefundable, http.StatusConflict, "платёж не подлежит возврату"},

	// 402
	{service.ErrSessionUnpaid, http.StatusPaymentRequired, "платёж ещё не подтверждён"},

	// 502
	{service.ErrGatewayUnavailable, http.StatusBadGateway, "платёжный шлюз временно недоступен"},
}

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()

		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("Request error")
		}

		// AppError несёт код и статус сам
		var appErr *apperror.AppError
		if errors.As(err.Err, &appErr) {
			body := gin.H{"error": appErr.Message}
			if len(appErr.Fields) > 0 {
				body["fields"] = appErr.Fields
			}
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		for _, entry := range errorStatusMap {
			if errors.Is(err.Err, entry.err) {
				c.JSON(entry.status, gin.H{"error": entry.message})
				return
			}
		}

		statusCode := http.StatusInternalServerError
		message := "внутренняя ошибка сервера"

		// Русскоязычные сообщения сервисов считаем безопасными для клиента
		if errStr := err.Error(); errStr != "" && !containsInternalKeywords(errStr) {
			message = errStr
			if contains(errStr, "неверный") || contains(errStr, "невалид") || contains(errStr, "обязател") {
				statusCode = http.StatusBadRequest
			} else if contains(errStr, "нет прав") || contains(errStr, "не авторизован") {
				statusCode = http.StatusForbidden
			}
		}

		c.JSON(statusCode, gin.H{"error": message})
	}
}

// containsInternalKeywords проверяет, содержит ли строка ключевые слова внутренних ошибок.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	for _, keyword := range keywords {
		if contains(s, keyword) {
			return true
		}
	}
	return false
}

// contains проверяет, содержит ли строка подстроку (case-insensitive).
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
