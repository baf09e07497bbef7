package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы записей журнала баланса
const (
	LedgerEntryOrderEarnings    = "order_earnings"
	LedgerEntryDisputeEarnings  = "dispute_earnings"
	LedgerEntryWithdrawal       = "withdrawal"
	LedgerEntryWithdrawalReturn = "withdrawal_return"
)

// SellerBalance представляет баланс исполнителя. Балансы никогда не
// перезаписываются абсолютными значениями — только относительными
// инкрементами, что безопасно при конкурентных писателях.
type SellerBalance struct {
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	AvailableBalance float64   `db:"available_balance" json:"available_balance"`
	PendingBalance   float64   `db:"pending_balance" json:"pending_balance"`
	TotalWithdrawn   float64   `db:"total_withdrawn" json:"total_withdrawn"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry — append-only запись о движении средств по балансу.
type LedgerEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	OrderID     *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	Type        string     `db:"type" json:"type"`
	Amount      float64    `db:"amount" json:"amount"`
	Description *string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
