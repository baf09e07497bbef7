package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Статусы оплаты checkout-сессии на стороне шлюза.
const (
	SessionPaymentStatusPaid   = "paid"
	SessionPaymentStatusUnpaid = "unpaid"
)

// Типы событий, которые обрабатывает платформа.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventChargeRefunded           = "charge.refunded"
	EventTransferCreated          = "transfer.created"
)

var (
	// ErrInvalidSignature возвращается при неверной подписи вебхука.
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")
	// ErrTransient помечает временную ошибку шлюза, которую имеет смысл повторить.
	ErrTransient = errors.New("gateway: transient error")
)

// CheckoutParams описывает создание checkout-сессии.
// Сумма передаётся в минимальных единицах валюты.
type CheckoutParams struct {
	OrderID     uuid.UUID
	PaymentID   uuid.UUID
	Title       string
	AmountMinor int64
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession — созданная шлюзом сессия оплаты.
type CheckoutSession struct {
	SessionID string
	URL       string
}

// SessionInfo — состояние сессии при повторном запросе.
type SessionInfo struct {
	PaymentStatus   string
	PaymentIntentID string
}

// Event — разобранное событие вебхука.
type Event struct {
	ID   string
	Type string

	// Заполняются в зависимости от типа события.
	SessionID       string
	PaymentIntentID string
	OrderID         string
	PaymentID       string
	RefundID        string
	TransferID      string
	AmountMinor     int64
}

// Gateway — адаптер внешнего платёжного шлюза.
// Вызовы шлюза необратимы: откат локальной транзакции не отменяет
// успешно выполненный внешний вызов.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64, idempotencyKey string) (string, error)
	CreateTransfer(ctx context.Context, destinationAccount string, amountMinor int64, idempotencyKey string, metadata map[string]string) (string, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}
