package models

import "math"

// OrderStatus константы статусов заказов
const (
	OrderStatusPending           = "pending"
	OrderStatusInProgress        = "in_progress"
	OrderStatusDelivered         = "delivered"
	OrderStatusRevisionRequested = "revision_requested"
	OrderStatusCompleted         = "completed"
	OrderStatusCancelled         = "cancelled"
)

// OrderFileKind константы типов файлов заказа
const (
	OrderFileKindRequirement = "requirement"
	OrderFileKindDelivery    = "delivery"
)

// Роли пользователей
const (
	RoleClient  = "client"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// ServiceStatus константы статусов услуг
const (
	ServiceStatusActive = "active"
	ServiceStatusPaused = "paused"
)

// ValidOrderStatuses список валидных статусов заказов
var ValidOrderStatuses = map[string]struct{}{
	OrderStatusPending:           {},
	OrderStatusInProgress:        {},
	OrderStatusDelivered:         {},
	OrderStatusRevisionRequested: {},
	OrderStatusCompleted:         {},
	OrderStatusCancelled:         {},
}

// DisputableOrderStatuses статусы, в которых по заказу можно открыть спор
var DisputableOrderStatuses = map[string]struct{}{
	OrderStatusInProgress:        {},
	OrderStatusDelivered:         {},
	OrderStatusRevisionRequested: {},
}

// Round2 округляет денежную сумму до копеек.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MinorUnits переводит сумму в минимальные единицы валюты для шлюза.
func MinorUnits(v float64) int64 {
	return int64(math.Round(v * 100))
}
