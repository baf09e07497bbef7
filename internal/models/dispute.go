package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// Варианты решения спора администратором.
const (
	DisputeResolutionReleaseToStudent = "release_to_student"
	DisputeResolutionRefundToClient   = "refund_to_client"
	DisputeResolutionPartialRefund    = "partial_refund"
)

// ValidDisputeResolutions список допустимых решений спора
var ValidDisputeResolutions = map[string]struct{}{
	DisputeResolutionReleaseToStudent: {},
	DisputeResolutionRefundToClient:   {},
	DisputeResolutionPartialRefund:    {},
}

// Dispute представляет спор по заказу. На заказ может существовать не более
// одного открытого спора; решение возможно только пока спор открыт.
type Dispute struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	OrderID         uuid.UUID  `db:"order_id" json:"order_id"`
	OpenedBy        uuid.UUID  `db:"opened_by" json:"opened_by"`
	Reason          string     `db:"reason" json:"reason"`
	Status          string     `db:"status" json:"status"`
	Resolution      *string    `db:"resolution" json:"resolution,omitempty"`
	ResolutionNotes *string    `db:"resolution_notes" json:"resolution_notes,omitempty"`
	ResolvedBy      *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
