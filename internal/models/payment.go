package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы платежей. Статус монотонный: из pending платёж переходит в
// succeeded или failed и никогда не возвращается обратно.
const (
	PaymentStatusPending           = "pending"
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusFailed            = "failed"
)

// Типы операций возврата
const (
	RefundOperationFull    = "full_refund"
	RefundOperationPartial = "partial_refund"
)

// Payment представляет платёж по заказу.
// OrderID заполняется при финализации: строка платежа создаётся сразу после
// создания checkout-сессии, когда заказ ещё может не существовать.
// Инвариант: Amount == CommissionAmount + StudentAmount; RefundAmount <= Amount.
type Payment struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	OrderID           *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	CheckoutSessionID string     `db:"checkout_session_id" json:"checkout_session_id"`
	PaymentIntentID   *string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	TransferID        *string    `db:"transfer_id" json:"transfer_id,omitempty"`
	Amount            float64    `db:"amount" json:"amount"`
	CommissionAmount  float64    `db:"commission_amount" json:"commission_amount"`
	StudentAmount     float64    `db:"student_amount" json:"student_amount"`
	Status            string     `db:"status" json:"status"`
	RefundAmount      float64    `db:"refund_amount" json:"refund_amount"`
	ReleasedAt        *time.Time `db:"released_at" json:"released_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// RefundOperation — запись в журнале возвратов. Уникальность ключа
// идемпотентности гарантирует, что повтор операции не создаст второй возврат.
type RefundOperation struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PaymentID      uuid.UUID `db:"payment_id" json:"payment_id"`
	OrderID        uuid.UUID `db:"order_id" json:"order_id"`
	OperationType  string    `db:"operation_type" json:"operation_type"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	Amount         float64   `db:"amount" json:"amount"`
	RefundID       *string   `db:"refund_id" json:"refund_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// WebhookEvent — журнал входящих событий платёжного шлюза.
// Append-only: событие с данным stripe_event_id применяется не более одного раза.
type WebhookEvent struct {
	ID            uuid.UUID `db:"id" json:"id"`
	StripeEventID string    `db:"stripe_event_id" json:"stripe_event_id"`
	EventType     string    `db:"event_type" json:"event_type"`
	Payload       []byte    `db:"payload" json:"-"`
	Processed     bool      `db:"processed" json:"processed"`
	Error         *string   `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
