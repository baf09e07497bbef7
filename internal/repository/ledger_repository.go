package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceNotFound   = errors.New("balance not found")
)

// LedgerRepository отвечает за баланс исполнителя и журнал движений средств.
// Баланс хранится в профиле и изменяется только относительными инкрементами:
// это безопасно при конкурентных писателях без дополнительных блокировок.
// Методы принимают sqlx.ExtContext, чтобы встраиваться в чужие транзакции
// без вложенности.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetBalance возвращает баланс исполнителя.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.SellerBalance, error) {
	var balance models.SellerBalance
	query := `
		SELECT user_id, available_balance, pending_balance, total_withdrawn, updated_at
		FROM profiles WHERE user_id = $1
	`
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("ledger repository: get balance %w", err)
	}
	return &balance, nil
}

// Credit начисляет средства на доступный баланс и пишет запись в журнал.
func (r *LedgerRepository) Credit(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, orderID *uuid.UUID, entryType string, amount float64, description string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger repository: сумма начисления должна быть положительной")
	}

	_, err := ext.ExecContext(ctx, `
		UPDATE profiles SET available_balance = available_balance + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ledger repository: credit %w", err)
	}

	return r.writeEntry(ctx, ext, userID, orderID, entryType, amount, description)
}

// DebitAvailable списывает средства с доступного баланса. Проверка
// достаточности выполняется в самом UPDATE: ноль затронутых строк означает
// нехватку средств.
func (r *LedgerRepository) DebitAvailable(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, entryType string, amount float64, description string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger repository: сумма списания должна быть положительной")
	}

	res, err := ext.ExecContext(ctx, `
		UPDATE profiles SET available_balance = available_balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND available_balance >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ledger repository: debit %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger repository: debit rows affected %w", err)
	}
	if affected == 0 {
		return ErrInsufficientFunds
	}

	return r.writeEntry(ctx, ext, userID, nil, entryType, -amount, description)
}

// AddWithdrawn увеличивает счётчик выведенных средств.
func (r *LedgerRepository) AddWithdrawn(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, amount float64) error {
	_, err := ext.ExecContext(ctx, `
		UPDATE profiles SET total_withdrawn = total_withdrawn + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ledger repository: add withdrawn %w", err)
	}
	return nil
}

// ListEntries возвращает журнал движений средств пользователя.
func (r *LedgerRepository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, order_id, type, amount, description, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: list entries %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) writeEntry(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, orderID *uuid.UUID, entryType string, amount float64, description string) error {
	_, err := ext.ExecContext(ctx, `
		INSERT INTO ledger_entries (user_id, order_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, orderID, entryType, amount, description)
	if err != nil {
		return fmt.Errorf("ledger repository: write entry %w", err)
	}
	return nil
}
