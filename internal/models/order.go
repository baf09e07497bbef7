package models

import (
	"time"

	"github.com/google/uuid"
)

// Order описывает заказ клиента на услугу исполнителя.
// commission_rate и max_revisions — снимки платформенных настроек на момент
// создания заказа; изменение настроек не влияет на существующие заказы.
type Order struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	ClientID           uuid.UUID  `db:"client_id" json:"client_id"`
	StudentID          uuid.UUID  `db:"student_id" json:"student_id"`
	ServiceID          uuid.UUID  `db:"service_id" json:"service_id"`
	Status             string     `db:"status" json:"status"`
	Requirements       string     `db:"requirements" json:"requirements"`
	Price              float64    `db:"price" json:"price"`
	CommissionRate     float64    `db:"commission_rate" json:"commission_rate"`
	MaxRevisions       int        `db:"max_revisions" json:"max_revisions"`
	RevisionCount      int        `db:"revision_count" json:"revision_count"`
	DeadlineAt         time.Time  `db:"deadline_at" json:"deadline_at"`
	DeliveryMessage    *string    `db:"delivery_message" json:"delivery_message,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	RequirementFiles []OrderFile `json:"requirement_files,omitempty"`
	DeliveryFiles    []OrderFile `json:"delivery_files,omitempty"`
}

// OrderFile связывает заказ с загруженным файлом.
// Kind различает файлы требований клиента и файлы выполненной работы.
type OrderFile struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	OrderID   uuid.UUID  `db:"order_id" json:"order_id"`
	MediaID   uuid.UUID  `db:"media_id" json:"media_id"`
	Kind      string     `db:"kind" json:"kind"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Media     *MediaFile `json:"media,omitempty"`
}

// StudentEarnings возвращает сумму, причитающуюся исполнителю
// за вычетом комиссии платформы по зафиксированной ставке.
func (o *Order) StudentEarnings() float64 {
	return Round2(o.Price * (1 - o.CommissionRate/100))
}

// IsParticipant сообщает, является ли пользователь стороной заказа.
func (o *Order) IsParticipant(userID uuid.UUID) bool {
	return o.ClientID == userID || o.StudentID == userID
}

// IsTerminal сообщает, находится ли заказ в конечном статусе.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}
