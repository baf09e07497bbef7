package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/skillmarket/marketplace-backend/internal/pkg/apperror"
	"github.com/skillmarket/marketplace-backend/internal/repository"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

func performWithError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/test", func(c *gin.Context) {
		c.Error(err)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)
	return w
}

func TestErrorHandler_ValidationFields(t *testing.T) {
	w := performWithError(t, apperror.Validation(map[string]string{
		"title": "название услуги обязательно",
		"price": "цена должна быть положительной",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ошибка валидации", body.Error)
	assert.Equal(t, "название услуги обязательно", body.Fields["title"])
	assert.Equal(t, "цена должна быть положительной", body.Fields["price"])
}

func TestErrorHandler_AppErrorWithoutFields(t *testing.T) {
	w := performWithError(t, apperror.New(apperror.ErrCodeBadRequest, "неподдерживаемый формат файла"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"неподдерживаемый формат файла"}`, w.Body.String())
}

func TestErrorHandler_KnownSentinel(t *testing.T) {
	w := performWithError(t, repository.ErrDisputeNotOpen)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"спор уже закрыт"}`, w.Body.String())
}

func TestErrorHandler_InternalErrorMasked(t *testing.T) {
	w := performWithError(t, errors.New("sql: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"внутренняя ошибка сервера"}`, w.Body.String())
}

func TestErrorHandler_GatewayUnavailable(t *testing.T) {
	w := performWithError(t, service.ErrGatewayUnavailable)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"платёжный шлюз временно недоступен"}`, w.Body.String())
}
