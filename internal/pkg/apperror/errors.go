package apperror

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeState        ErrorCode = "STATE_ERROR"
	ErrCodeGateway      ErrorCode = "GATEWAY_ERROR"
)

// AppError — ошибка с кодом и HTTP-статусом. Центральный обработчик ошибок
// отдаёт её клиенту как есть, без сопоставления по карте известных ошибок.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	// Fields хранит ошибки валидации по полям для ответа клиенту.
	Fields map[string]string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Validation создаёт ошибку валидации с картой поле -> сообщение.
func Validation(fields map[string]string) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    "ошибка валидации",
		HTTPStatus: http.StatusBadRequest,
		Fields:     fields,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeState:
		return http.StatusConflict
	case ErrCodeGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
