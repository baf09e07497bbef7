package dto

import (
	"github.com/skillmarket/marketplace-backend/internal/models"
)

// AuthResponse — ответ на успешную регистрацию или вход.
type AuthResponse struct {
	User         *models.User    `json:"user"`
	Profile      *models.Profile `json:"profile"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
}

// TokenResponse — обновлённая пара токенов.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CreateOrderResponse — созданный заказ со ссылкой на оплату.
type CreateOrderResponse struct {
	Order       *models.Order `json:"order"`
	CheckoutURL string        `json:"checkout_url"`
}

// OrderPaymentResponse — платёж заказа вместе с журналом возвратов.
type OrderPaymentResponse struct {
	Payment *models.Payment          `json:"payment"`
	Refunds []models.RefundOperation `json:"refunds,omitempty"`
}

// BalanceResponse — баланс исполнителя.
type BalanceResponse struct {
	Balance *models.SellerBalance `json:"balance"`
	Entries []models.LedgerEntry  `json:"entries,omitempty"`
}

// NotificationsResponse — страница уведомлений со счётчиком непрочитанных.
type NotificationsResponse struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
}

// MediaUploadResponse — загруженный файл со ссылкой на скачивание.
type MediaUploadResponse struct {
	Media       *models.MediaFile `json:"media"`
	DownloadURL string            `json:"download_url"`
}

// ErrorResponse — стандартный формат ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}
