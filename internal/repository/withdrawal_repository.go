package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository/common"
)

var (
	ErrWithdrawalNotFound   = errors.New("withdrawal not found")
	ErrWithdrawalNotPending = errors.New("withdrawal is not pending")
)

// WithdrawalRepository отвечает за заявки на вывод средств.
type WithdrawalRepository struct {
	db     *sqlx.DB
	ledger *LedgerRepository
}

func NewWithdrawalRepository(db *sqlx.DB, ledger *LedgerRepository) *WithdrawalRepository {
	return &WithdrawalRepository{db: db, ledger: ledger}
}

// Create списывает сумму с доступного баланса и создаёт заявку в одной
// транзакции. Недостаток средств обнаруживается условным UPDATE в ledger.
func (r *WithdrawalRepository) Create(ctx context.Context, userID uuid.UUID, amount float64, cardLast4, bankName string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := r.ledger.DebitAvailable(ctx, tx, userID, models.LedgerEntryWithdrawal, amount, "Заявка на вывод средств"); err != nil {
			return err
		}

		return tx.GetContext(ctx, &w, `
			INSERT INTO withdrawals (user_id, amount, card_last4, bank_name, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING *
		`, userID, amount, cardLast4, bankName, models.WithdrawalStatusPending)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return common.GetByID[models.Withdrawal](ctx, r.db, "withdrawals", id, ErrWithdrawalNotFound)
}

// Complete фиксирует успешную выплату: сохраняет идентификатор перевода
// и увеличивает счётчик выведенных средств.
func (r *WithdrawalRepository) Complete(ctx context.Context, id uuid.UUID, transferID string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now()
		err := tx.GetContext(ctx, &w, `
			UPDATE withdrawals SET status = $2, transfer_id = $3, processed_at = $4
			WHERE id = $1 AND status IN ($5, $6)
			RETURNING *
		`, id, models.WithdrawalStatusCompleted, transferID, now,
			models.WithdrawalStatusPending, models.WithdrawalStatusProcessing)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrWithdrawalNotPending
			}
			return fmt.Errorf("withdrawal repository: complete %w", err)
		}

		return r.ledger.AddWithdrawn(ctx, tx, w.UserID, w.Amount)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Reject отклоняет заявку и возвращает средства на доступный баланс.
func (r *WithdrawalRepository) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now()
		err := tx.GetContext(ctx, &w, `
			UPDATE withdrawals SET status = $2, rejection_reason = $3, processed_at = $4
			WHERE id = $1 AND status IN ($5, $6)
			RETURNING *
		`, id, models.WithdrawalStatusRejected, reason, now,
			models.WithdrawalStatusPending, models.WithdrawalStatusProcessing)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrWithdrawalNotPending
			}
			return fmt.Errorf("withdrawal repository: reject %w", err)
		}

		return r.ledger.Credit(ctx, tx, w.UserID, nil, models.LedgerEntryWithdrawalReturn, w.Amount, "Возврат средств по отклонённой заявке")
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListByUser возвращает заявки пользователя.
func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, `
		SELECT * FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("withdrawal repository: list by user %w", err)
	}
	return withdrawals, nil
}

// ListPending возвращает необработанные заявки для администратора.
func (r *WithdrawalRepository) ListPending(ctx context.Context, limit, offset int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, `
		SELECT * FROM withdrawals WHERE status = $1 ORDER BY created_at LIMIT $2 OFFSET $3
	`, models.WithdrawalStatusPending, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("withdrawal repository: list pending %w", err)
	}
	return withdrawals, nil
}
