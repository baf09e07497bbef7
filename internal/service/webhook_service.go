package service

import (
	"context"

	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/logger"
	"github.com/skillmarket/marketplace-backend/internal/models"
)

// WebhookRepository — журнал входящих событий шлюза.
type WebhookRepository interface {
	Insert(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, stripeEventID string) error
	RecordError(ctx context.Context, stripeEventID string, processErr error) error
}

// WebhookVerifier проверяет подпись и разбирает тело вебхука.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (*gateway.Event, error)
}

// SettlementHandlers — обработчики событий движка расчётов.
type SettlementHandlers interface {
	HandleCheckoutCompleted(ctx context.Context, event *gateway.Event) error
	HandleChargeRefunded(ctx context.Context, event *gateway.Event) error
	HandleTransferCreated(ctx context.Context, event *gateway.Event) error
}

// WebhookService принимает вебхуки шлюза: проверка подписи, дедупликация по
// идентификатору события, диспетчеризация по типу.
type WebhookService struct {
	events   WebhookRepository
	verifier WebhookVerifier
	settle   SettlementHandlers
}

// NewWebhookService создаёт обработчик вебхуков.
func NewWebhookService(events WebhookRepository, verifier WebhookVerifier, settle SettlementHandlers) *WebhookService {
	return &WebhookService{events: events, verifier: verifier, settle: settle}
}

// ProcessWebhook обрабатывает входящий вебхук. Неверная подпись —
// gateway.ErrInvalidSignature до какой-либо записи в базу. Повторная доставка
// события — успешный no-op: дедупликация по идентификатору поглощает и
// переотправки шлюза после нашей 500. Ошибка обработки записывается на
// строку события; такие события остаются в журнале с processed = false и
// разбираются вручную через ListUnprocessed.
func (s *WebhookService) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.verifier.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return err
	}

	first, err := s.events.Insert(ctx, &models.WebhookEvent{
		StripeEventID: event.ID,
		EventType:     event.Type,
		Payload:       payload,
	})
	if err != nil {
		return err
	}
	if !first {
		logger.Log.WithField("event_id", event.ID).Info("webhook service: повторная доставка события, пропуск")
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		logger.Log.WithField("event_id", event.ID).WithField("event_type", event.Type).
			WithError(err).Error("webhook service: событие не обработано")
		if recErr := s.events.RecordError(ctx, event.ID, err); recErr != nil {
			logger.Log.WithError(recErr).Error("webhook service: не удалось записать ошибку события")
		}
		return err
	}

	return s.events.MarkProcessed(ctx, event.ID)
}

func (s *WebhookService) dispatch(ctx context.Context, event *gateway.Event) error {
	switch event.Type {
	case gateway.EventCheckoutSessionCompleted:
		return s.settle.HandleCheckoutCompleted(ctx, event)
	case gateway.EventChargeRefunded:
		return s.settle.HandleChargeRefunded(ctx, event)
	case gateway.EventTransferCreated:
		return s.settle.HandleTransferCreated(ctx, event)
	default:
		// Неизвестные типы подтверждаем, чтобы шлюз их не переотправлял.
		logger.Log.WithField("event_type", event.Type).Info("webhook service: событие без обработчика")
		return nil
	}
}
