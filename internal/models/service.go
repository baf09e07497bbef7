package models

import (
	"time"

	"github.com/google/uuid"
)

// Service описывает услугу с фиксированной ценой, которую продаёт исполнитель.
type Service struct {
	ID           uuid.UUID `db:"id" json:"id"`
	StudentID    uuid.UUID `db:"student_id" json:"student_id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Price        float64   `db:"price" json:"price"`
	DeliveryDays int       `db:"delivery_days" json:"delivery_days"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PlatformSettings — глобальные настройки платформы. Значения читаются один
// раз при создании заказа и фиксируются на нём; изменение настроек не
// затрагивает существующие заказы.
type PlatformSettings struct {
	ID             int       `db:"id" json:"id"`
	CommissionRate float64   `db:"commission_rate" json:"commission_rate"`
	MaxRevisions   int       `db:"max_revisions" json:"max_revisions"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
