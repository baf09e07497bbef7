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

// ErrServiceNotFound возвращается, когда услуга не найдена.
var ErrServiceNotFound = errors.New("service not found")

// ServiceRepository отвечает за работу с таблицей services.
type ServiceRepository struct {
	db *sqlx.DB
}

// NewServiceRepository создаёт экземпляр репозитория.
func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// Create создаёт новую услугу.
func (r *ServiceRepository) Create(ctx context.Context, service *models.Service) error {
	query := `
		INSERT INTO services (student_id, title, description, price, delivery_days, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		service.StudentID,
		service.Title,
		service.Description,
		service.Price,
		service.DeliveryDays,
		service.Status,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt); err != nil {
		return fmt.Errorf("service repository: create %w", err)
	}

	return nil
}

// GetByID возвращает услугу по идентификатору.
func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var service models.Service
	if err := r.db.GetContext(ctx, &service, `SELECT * FROM services WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("service repository: get by id %w", err)
	}

	return &service, nil
}

// Update обновляет описание и цену услуги. Цена действует только на новые
// заказы: уже созданные заказы держат зафиксированную на них цену.
func (r *ServiceRepository) Update(ctx context.Context, service *models.Service) error {
	query := `
		UPDATE services
		SET title = $2, description = $3, price = $4, delivery_days = $5, updated_at = NOW()
		WHERE id = $1 AND student_id = $6
		RETURNING updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		service.ID,
		service.Title,
		service.Description,
		service.Price,
		service.DeliveryDays,
		service.StudentID,
	).Scan(&service.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrServiceNotFound
		}
		return fmt.Errorf("service repository: update %w", err)
	}

	return nil
}

// SetStatus переключает услугу между active и paused.
func (r *ServiceRepository) SetStatus(ctx context.Context, id uuid.UUID, studentID uuid.UUID, status string) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE services SET status = $3, updated_at = NOW() WHERE id = $1 AND student_id = $2`,
		id, studentID, status,
	)
	if err != nil {
		return fmt.Errorf("service repository: set status %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("service repository: set status rows affected %w", err)
	}

	if rowsAffected == 0 {
		return ErrServiceNotFound
	}

	return nil
}

// ListByStudent возвращает услуги исполнителя.
func (r *ServiceRepository) ListByStudent(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]models.Service, error) {
	query := `
		SELECT * FROM services
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var services []models.Service
	if err := r.db.SelectContext(ctx, &services, query, studentID, limit, offset); err != nil {
		return nil, fmt.Errorf("service repository: list by student %w", err)
	}

	return services, nil
}

// ListActive возвращает активные услуги для каталога.
func (r *ServiceRepository) ListActive(ctx context.Context, limit, offset int) ([]models.Service, error) {
	query := `
		SELECT * FROM services
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var services []models.Service
	if err := r.db.SelectContext(ctx, &services, query, models.ServiceStatusActive, limit, offset); err != nil {
		return nil, fmt.Errorf("service repository: list active %w", err)
	}

	return services, nil
}
