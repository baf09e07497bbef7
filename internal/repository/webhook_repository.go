package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/models"
)

var ErrWebhookEventNotFound = errors.New("webhook event not found")

// WebhookRepository ведёт append-only журнал входящих событий шлюза.
// Уникальность stripe_event_id — единственный механизм дедупликации:
// повторная вставка того же события затрагивает ноль строк.
type WebhookRepository struct {
	db *sqlx.DB
}

func NewWebhookRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Insert записывает событие. Возвращает false, если событие с таким
// stripe_event_id уже было получено ранее.
func (r *WebhookRepository) Insert(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (stripe_event_id, event_type, payload, processed)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (stripe_event_id) DO NOTHING
	`, event.StripeEventID, event.EventType, event.Payload)
	if err != nil {
		return false, fmt.Errorf("webhook repository: insert %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("webhook repository: insert rows affected %w", err)
	}
	return affected == 1, nil
}

// MarkProcessed помечает событие успешно обработанным.
func (r *WebhookRepository) MarkProcessed(ctx context.Context, stripeEventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET processed = TRUE, error = NULL WHERE stripe_event_id = $1
	`, stripeEventID)
	if err != nil {
		return fmt.Errorf("webhook repository: mark processed %w", err)
	}
	return nil
}

// RecordError сохраняет ошибку обработки на строке события.
// Автоматического повтора нет: событие остаётся необработанным.
func (r *WebhookRepository) RecordError(ctx context.Context, stripeEventID string, processErr error) error {
	msg := processErr.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET error = $2 WHERE stripe_event_id = $1
	`, stripeEventID, msg)
	if err != nil {
		return fmt.Errorf("webhook repository: record error %w", err)
	}
	return nil
}

// GetByEventID возвращает событие по идентификатору шлюза.
func (r *WebhookRepository) GetByEventID(ctx context.Context, stripeEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.GetContext(ctx, &event, `SELECT * FROM webhook_events WHERE stripe_event_id = $1`, stripeEventID)
	if err != nil {
		return nil, ErrWebhookEventNotFound
	}
	return &event, nil
}

// ListUnprocessed возвращает события с ошибками обработки для ручного разбора.
func (r *WebhookRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM webhook_events WHERE processed = FALSE AND error IS NOT NULL
		ORDER BY created_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("webhook repository: list unprocessed %w", err)
	}
	return events, nil
}
