package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository/common"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrRefundRecorded  = errors.New("refund operation already recorded")
)

// PaymentRepository отвечает за платежи, журнал возвратов и связь с заказом.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет новый платёж со статусом pending. Идентификатор платежа
// генерируется вызывающей стороной: он уезжает в метаданные checkout-сессии
// до того, как появится строка в базе. OrderID может быть пустым: связка с
// заказом выполняется при финализации.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, checkout_session_id, amount, commission_amount, student_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.OrderID, p.CheckoutSessionID, p.Amount, p.CommissionAmount, p.StudentAmount, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// GetByID возвращает платёж по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.db, "payments", id, ErrPaymentNotFound)
}

// GetByOrderID возвращает платёж заказа.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "order_id", orderID, ErrPaymentNotFound)
}

// GetBySessionID возвращает платёж по checkout-сессии.
func (r *PaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "checkout_session_id", sessionID, ErrPaymentNotFound)
}

// GetByPaymentIntentID возвращает платёж по идентификатору списания в шлюзе.
func (r *PaymentRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "payment_intent_id", paymentIntentID, ErrPaymentNotFound)
}

// FinalizeSucceeded переводит платёж pending -> succeeded и связывает его с
// заказом одним условным UPDATE. Вебхук и синхронная финализация могут
// выполняться одновременно для одной сессии: побеждает ровно один писатель,
// второй получает false и трактует это как идемпотентный no-op.
func (r *PaymentRepository) FinalizeSucceeded(ctx context.Context, paymentID uuid.UUID, paymentIntentID string, orderID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, payment_intent_id = $3, order_id = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, paymentID, models.PaymentStatusSucceeded, paymentIntentID, orderID, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("payment repository: finalize %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment repository: finalize rows affected %w", err)
	}
	return affected == 1, nil
}

// MarkFailed помечает платёж неуспешным, только если он ещё pending.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, paymentID, models.PaymentStatusFailed, models.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("payment repository: mark failed %w", err)
	}
	return nil
}

// HasRefundOperation проверяет, была ли уже выполнена операция возврата
// с данным ключом идемпотентности.
func (r *PaymentRepository) HasRefundOperation(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM refund_operations WHERE idempotency_key = $1`, idempotencyKey)
	if err != nil {
		return false, fmt.Errorf("payment repository: has refund operation %w", err)
	}
	return count > 0, nil
}

// RecordRefund записывает подтверждённый шлюзом возврат: добавляет запись в
// журнал возвратов, накапливает refund_amount и обновляет статус платежа.
// Уникальный индекс на ключе идемпотентности поглощает гонку двух
// одинаковых операций: проигравший писатель получает ErrRefundRecorded.
// Внешний вызов шлюза к этому моменту уже выполнен и транзакцией не
// охватывается.
func (r *PaymentRepository) RecordRefund(ctx context.Context, op *models.RefundOperation) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO refund_operations (payment_id, order_id, operation_type, idempotency_key, amount, refund_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, op.PaymentID, op.OrderID, op.OperationType, op.IdempotencyKey, op.Amount, op.RefundID)
		if err != nil {
			return fmt.Errorf("payment repository: insert refund operation %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrRefundRecorded
		}

		var p models.Payment
		err = tx.GetContext(ctx, &p, `SELECT * FROM payments WHERE id = $1 FOR UPDATE`, op.PaymentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("payment repository: lock payment %w", err)
		}

		newRefundAmount := models.Round2(p.RefundAmount + op.Amount)
		if newRefundAmount > p.Amount {
			return fmt.Errorf("payment repository: сумма возвратов %.2f превышает сумму платежа %.2f", newRefundAmount, p.Amount)
		}

		status := models.PaymentStatusPartiallyRefunded
		if newRefundAmount == p.Amount {
			status = models.PaymentStatusRefunded
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE payments SET refund_amount = $2, status = $3, updated_at = NOW()
			WHERE id = $1
		`, op.PaymentID, newRefundAmount, status)
		if err != nil {
			return fmt.Errorf("payment repository: update refund amount %w", err)
		}
		return nil
	})
}

// SetTransfer сохраняет идентификатор перевода средств исполнителю
// и отметку о выпуске средств.
func (r *PaymentRepository) SetTransfer(ctx context.Context, paymentID uuid.UUID, transferID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET transfer_id = $2, released_at = COALESCE(released_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`, paymentID, transferID)
	if err != nil {
		return fmt.Errorf("payment repository: set transfer %w", err)
	}
	return nil
}

// ListRefundOperations возвращает журнал возвратов по заказу.
func (r *PaymentRepository) ListRefundOperations(ctx context.Context, orderID uuid.UUID) ([]models.RefundOperation, error) {
	var ops []models.RefundOperation
	err := r.db.SelectContext(ctx, &ops, `
		SELECT * FROM refund_operations WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("payment repository: list refund operations %w", err)
	}
	return ops, nil
}
