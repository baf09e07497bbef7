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
	ErrDisputeNotFound = errors.New("dispute not found")
	// ErrDisputeExists возвращается при попытке открыть второй спор по заказу.
	ErrDisputeExists = errors.New("open dispute already exists for this order")
	// ErrDisputeNotOpen возвращается при повторной попытке решить спор.
	ErrDisputeNotOpen = errors.New("dispute is not open")
)

// DisputeRepository отвечает за споры по заказам. Частичный уникальный
// индекс на (order_id) WHERE status = 'open' гарантирует не более одного
// открытого спора на заказ.
type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (order_id, opened_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, d.OrderID, d.OpenedBy, d.Reason, d.Status).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDisputeExists
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

// GetOpenByOrderID возвращает открытый спор по заказу.
func (r *DisputeRepository) GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE order_id = $1 AND status = $2
	`, orderID, models.DisputeStatusOpen)
	if err != nil {
		return nil, ErrDisputeNotFound
	}
	return &d, nil
}

// Resolve помечает спор решённым. Условный UPDATE по статусу open
// гарантирует, что решение применяется не более одного раза: повторная
// попытка получает ErrDisputeNotOpen.
func (r *DisputeRepository) Resolve(ctx context.Context, id uuid.UUID, resolution, notes string, resolvedBy uuid.UUID) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolution_notes = $4, resolved_by = $5, resolved_at = $6
		WHERE id = $1 AND status = $7
	`, id, models.DisputeStatusResolved, resolution, notes, resolvedBy, now, models.DisputeStatusOpen)
	if err != nil {
		return fmt.Errorf("dispute repository: resolve %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotOpen
	}
	return nil
}

// ListByUser возвращает споры по заказам, где пользователь является стороной.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN orders o ON d.order_id = o.id
		WHERE o.client_id = $1 OR o.student_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return disputes, nil
}

// ListOpen возвращает открытые споры для администратора.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status = $1 ORDER BY created_at LIMIT $2 OFFSET $3
	`, models.DisputeStatusOpen, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open %w", err)
	}
	return disputes, nil
}
