package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository/common"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition возвращается, когда условный UPDATE не затронул
	// ни одной строки: заказ уже не в требуемом статусе.
	ErrInvalidTransition = errors.New("order is not in required status")
)

// OrderRepository отвечает за заказы и их файлы. Переходы статусов
// выполняются условными UPDATE с проверкой затронутых строк, чтобы два
// конкурентных писателя не применили один переход дважды.
type OrderRepository struct {
	db     *sqlx.DB
	ledger *LedgerRepository
}

func NewOrderRepository(db *sqlx.DB, ledger *LedgerRepository) *OrderRepository {
	return &OrderRepository{db: db, ledger: ledger}
}

// Create сохраняет заказ вместе с файлами требований в одной транзакции.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, requirementMediaIDs []uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (client_id, student_id, service_id, status, requirements, price,
				commission_rate, max_revisions, deadline_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, revision_count, created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			order.ClientID, order.StudentID, order.ServiceID, order.Status, order.Requirements,
			order.Price, order.CommissionRate, order.MaxRevisions, order.DeadlineAt,
		).Scan(&order.ID, &order.RevisionCount, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("order repository: create %w", err)
		}

		for _, mediaID := range requirementMediaIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_files (order_id, media_id, kind) VALUES ($1, $2, $3)
			`, order.ID, mediaID, models.OrderFileKindRequirement); err != nil {
				return fmt.Errorf("order repository: attach requirement file %w", err)
			}
		}
		return nil
	})
}

// GetByID возвращает заказ с файлами.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := common.GetByID[models.Order](ctx, r.db, "orders", id, ErrOrderNotFound)
	if err != nil {
		return nil, err
	}

	var files []models.OrderFile
	err = r.db.SelectContext(ctx, &files, `
		SELECT id, order_id, media_id, kind, created_at
		FROM order_files WHERE order_id = $1 ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("order repository: load files %w", err)
	}

	for _, f := range files {
		switch f.Kind {
		case models.OrderFileKindDelivery:
			order.DeliveryFiles = append(order.DeliveryFiles, f)
		default:
			order.RequirementFiles = append(order.RequirementFiles, f)
		}
	}
	return order, nil
}

// ListByParticipant возвращает заказы, где пользователь выступает клиентом
// или исполнителем.
func (r *OrderRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE client_id = $1 OR student_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order repository: list by participant %w", err)
	}
	return orders, nil
}

// MarkInProgress переводит заказ pending -> in_progress после подтверждения
// оплаты. Повторное подтверждение (вторая финализация той же сессии)
// затрагивает ноль строк и не является ошибкой.
func (r *OrderRepository) MarkInProgress(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, orderID, models.OrderStatusInProgress, models.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("order repository: mark in progress %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Deliver сохраняет результат работы: статус delivered, сообщение и файлы.
func (r *OrderRepository) Deliver(ctx context.Context, orderID uuid.UUID, message string, deliveryMediaIDs []uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = $2, delivery_message = $3, updated_at = NOW()
			WHERE id = $1 AND status IN ($4, $5)
		`, orderID, models.OrderStatusDelivered, message,
			models.OrderStatusInProgress, models.OrderStatusRevisionRequested)
		if err != nil {
			return fmt.Errorf("order repository: deliver %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInvalidTransition
		}

		for _, mediaID := range deliveryMediaIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_files (order_id, media_id, kind) VALUES ($1, $2, $3)
			`, orderID, mediaID, models.OrderFileKindDelivery); err != nil {
				return fmt.Errorf("order repository: attach delivery file %w", err)
			}
		}
		return nil
	})
}

// RequestRevision увеличивает счётчик правок и возвращает заказ в работу.
// Лимит правок проверяется в самом UPDATE: при исчерпании лимита или
// неподходящем статусе счётчик не меняется.
func (r *OrderRepository) RequestRevision(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, revision_count = revision_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND revision_count < max_revisions
	`, orderID, models.OrderStatusRevisionRequested, models.OrderStatusDelivered)
	if err != nil {
		return false, fmt.Errorf("order repository: request revision %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Complete завершает заказ из указанного статуса и начисляет исполнителю
// заработок в той же транзакции. Необратимо.
func (r *OrderRepository) Complete(ctx context.Context, order *models.Order, fromStatus string, earnings float64, entryType string) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now()
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = $2, completed_at = $3, updated_at = NOW()
			WHERE id = $1 AND status = $4
		`, order.ID, models.OrderStatusCompleted, now, fromStatus)
		if err != nil {
			return fmt.Errorf("order repository: complete %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInvalidTransition
		}

		if earnings > 0 {
			description := fmt.Sprintf("Оплата за заказ %s", order.ID)
			if err := r.ledger.Credit(ctx, tx, order.StudentID, &order.ID, entryType, earnings, description); err != nil {
				return err
			}
		}

		order.Status = models.OrderStatusCompleted
		order.CompletedAt = &now
		return nil
	})
}

// Cancel отменяет заказ из указанного статуса с указанием причины.
func (r *OrderRepository) Cancel(ctx context.Context, order *models.Order, fromStatuses []string, reason string) error {
	now := time.Now()
	query, args, err := sqlx.In(`
		UPDATE orders SET status = ?, cancelled_at = ?, cancellation_reason = ?, updated_at = NOW()
		WHERE id = ? AND status IN (?)
	`, models.OrderStatusCancelled, now, reason, order.ID, fromStatuses)
	if err != nil {
		return fmt.Errorf("order repository: cancel build query %w", err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("order repository: cancel %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}

	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	order.CancellationReason = &reason
	return nil
}
