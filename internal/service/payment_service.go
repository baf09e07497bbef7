package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/logger"
	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository"
)

var (
	ErrPaymentNotRefundable = errors.New("payment is not in a refundable status")
	ErrRefundTooLarge       = errors.New("refund amount exceeds remaining payment amount")
	ErrSessionUnpaid        = errors.New("checkout session is not paid")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
)

// Повторы обращений к шлюзу при временных сбоях. Пауза удваивается между
// попытками; контекст прерывает ожидание.
const gatewayRetryAttempts = 3

var gatewayRetryBase = 500 * time.Millisecond

// PaymentRepository описывает взаимодействие движка расчётов с хранилищем платежей.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Payment, error)
	FinalizeSucceeded(ctx context.Context, paymentID uuid.UUID, paymentIntentID string, orderID uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, paymentID uuid.UUID) error
	HasRefundOperation(ctx context.Context, idempotencyKey string) (bool, error)
	RecordRefund(ctx context.Context, op *models.RefundOperation) error
	SetTransfer(ctx context.Context, paymentID uuid.UUID, transferID string) error
	ListRefundOperations(ctx context.Context, orderID uuid.UUID) ([]models.RefundOperation, error)
}

// OrderStateStore — минимальный контракт хранилища заказов, нужный движку:
// перевод заказа в работу после подтверждения оплаты.
type OrderStateStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	MarkInProgress(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// PaymentService — движок расчётов: checkout-сессии, двухканальная
// финализация платежа и возвраты.
type PaymentService struct {
	payments PaymentRepository
	orders   OrderStateStore
	gw       gateway.Gateway
	notify   *NotificationService

	successURL string
	cancelURL  string
}

// NewPaymentService создаёт движок расчётов.
func NewPaymentService(payments PaymentRepository, orders OrderStateStore, gw gateway.Gateway, successURL, cancelURL string) *PaymentService {
	return &PaymentService{
		payments:   payments,
		orders:     orders,
		gw:         gw,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// SetNotifier подключает сервис уведомлений.
func (s *PaymentService) SetNotifier(n *NotificationService) {
	s.notify = n
}

// CreateCheckoutSession создаёт checkout-сессию в шлюзе и сохраняет платёж
// в статусе pending. Комиссия считается по зафиксированной на заказе ставке:
// amount = commission_amount + student_amount всегда сходится за счёт
// вычитания, а не повторного округления.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, order *models.Order, title string) (*models.Payment, string, error) {
	commission := models.Round2(order.Price * order.CommissionRate / 100)
	student := models.Round2(order.Price - commission)

	paymentID := uuid.New()
	session, err := s.gw.CreateCheckoutSession(ctx, gateway.CheckoutParams{
		OrderID:     order.ID,
		PaymentID:   paymentID,
		Title:       title,
		AmountMinor: models.MinorUnits(order.Price),
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
	})
	if err != nil {
		logger.WithOrder(order.ID.String(), paymentID.String()).WithError(err).Error("payment service: не удалось создать checkout-сессию")
		return nil, "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	payment := &models.Payment{
		ID:                paymentID,
		CheckoutSessionID: session.SessionID,
		Amount:            order.Price,
		CommissionAmount:  commission,
		StudentAmount:     student,
		Status:            models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, "", err
	}

	return payment, session.URL, nil
}

// FinalizeWithoutWebhook — синхронная финализация по возврату клиента со
// страницы оплаты. Перепроверяет состояние сессии в шлюзе и применяет тот же
// атомарный переход pending -> succeeded, что и вебхук: при гонке двух
// каналов побеждает один, второй завершается как no-op.
func (s *PaymentService) FinalizeWithoutWebhook(ctx context.Context, paymentID, orderID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		// Уже финализирован другим каналом.
		return payment, nil
	}

	info, err := s.gw.RetrieveSession(ctx, payment.CheckoutSessionID)
	if err != nil {
		logger.WithOrder(orderID.String(), paymentID.String()).WithError(err).Error("payment service: не удалось перепроверить сессию")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if info.PaymentStatus != gateway.SessionPaymentStatusPaid {
		return nil, ErrSessionUnpaid
	}

	return s.finalize(ctx, paymentID, info.PaymentIntentID, orderID)
}

// HandleCheckoutCompleted применяет событие checkout.session.completed.
func (s *PaymentService) HandleCheckoutCompleted(ctx context.Context, event *gateway.Event) error {
	payment, err := s.payments.GetBySessionID(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("payment service: session %s: %w", event.SessionID, err)
	}

	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		return fmt.Errorf("payment service: bad order_id in event metadata: %w", err)
	}

	_, err = s.finalize(ctx, payment.ID, event.PaymentIntentID, orderID)
	return err
}

// finalize — общий хвост обоих каналов финализации. Условный UPDATE
// закрывает гонку писателей; перевод заказа в работу тоже условный, поэтому
// повтор безопасен даже если победивший писатель упал между шагами.
//
// Если заказ в работу не перешёл, причиной может быть отмена, успевшая
// между оплатой и финализацией: оплаченный отменённый заказ тут же
// возвращается клиенту, ключ идемпотентности делает сверку безопасной при
// любом исходе гонки с RefundPayment из отмены.
func (s *PaymentService) finalize(ctx context.Context, paymentID uuid.UUID, paymentIntentID string, orderID uuid.UUID) (*models.Payment, error) {
	won, err := s.payments.FinalizeSucceeded(ctx, paymentID, paymentIntentID, orderID)
	if err != nil {
		return nil, err
	}

	started, err := s.orders.MarkInProgress(ctx, orderID)
	if err != nil {
		return nil, err
	}

	log := logger.WithOrder(orderID.String(), paymentID.String())
	if !won {
		log.Info("payment service: финализация уже выполнена другим каналом")
	}

	if started {
		order, err := s.orders.GetByID(ctx, orderID)
		if err == nil && s.notify != nil {
			s.notify.Push(ctx, order.StudentID, "order.paid", map[string]interface{}{
				"order_id": orderID,
				"amount":   order.Price,
			})
		}
	} else if err := s.refundIfCancelled(ctx, orderID); err != nil {
		return nil, err
	}

	return s.payments.GetByID(ctx, paymentID)
}

// refundIfCancelled возвращает оплату по заказу, отменённому до финализации.
func (s *PaymentService) refundIfCancelled(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil || order.Status != models.OrderStatusCancelled {
		return nil
	}

	logger.WithOrder(orderID.String(), "").Warn("payment service: платёж подтверждён по отменённому заказу, возврат")
	if _, err := s.RefundPayment(ctx, orderID, nil); err != nil {
		logger.WithOrder(orderID.String(), "").WithError(err).Error("payment service: возврат по отменённому заказу не выполнен")
		return err
	}
	return nil
}

// MarkFailed помечает платёж проваленным, если он всё ещё pending.
func (s *PaymentService) MarkFailed(ctx context.Context, paymentID uuid.UUID) error {
	return s.payments.MarkFailed(ctx, paymentID)
}

// RefundPayment выполняет полный или частичный возврат. amount == nil
// означает возврат всей невозвращённой суммы. Ключ идемпотентности
// детерминирован от заказа и суммы: повтор той же операции — no-op.
//
// Внешний вызов шлюза выполняется до локальной транзакции: откат локальной
// записи не отменил бы уже проведённый возврат, поэтому порядок строго
// шлюз -> локальный учёт, а повтор после сбоя учёта поглощается ключом
// идемпотентности с обеих сторон.
func (s *PaymentService) RefundPayment(ctx context.Context, orderID uuid.UUID, amount *float64) (*models.Payment, error) {
	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if payment.Status != models.PaymentStatusSucceeded && payment.Status != models.PaymentStatusPartiallyRefunded {
		return nil, ErrPaymentNotRefundable
	}
	if payment.PaymentIntentID == nil {
		return nil, ErrPaymentNotRefundable
	}

	remaining := models.Round2(payment.Amount - payment.RefundAmount)
	operationType := models.RefundOperationFull
	refundAmount := remaining
	if amount != nil {
		refundAmount = models.Round2(*amount)
		if refundAmount < payment.Amount {
			operationType = models.RefundOperationPartial
		}
	}
	if refundAmount <= 0 || refundAmount > remaining {
		return nil, ErrRefundTooLarge
	}

	idempotencyKey := fmt.Sprintf("refund:%s:%.2f", orderID, refundAmount)

	exists, err := s.payments.HasRefundOperation(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return payment, nil
	}

	refundID, err := s.callRefund(ctx, *payment.PaymentIntentID, models.MinorUnits(refundAmount), idempotencyKey)
	if err != nil {
		logger.WithOrder(orderID.String(), payment.ID.String()).WithError(err).Error("payment service: возврат в шлюзе не выполнен")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	op := &models.RefundOperation{
		PaymentID:      payment.ID,
		OrderID:        orderID,
		OperationType:  operationType,
		IdempotencyKey: idempotencyKey,
		Amount:         refundAmount,
		RefundID:       &refundID,
	}
	if err := s.payments.RecordRefund(ctx, op); err != nil {
		// Конкурентный дубликат успел записать ту же операцию.
		if !errors.Is(err, repository.ErrRefundRecorded) {
			return nil, err
		}
	}

	return s.payments.GetByID(ctx, payment.ID)
}

// callRefund вызывает шлюз с ограниченными повторами при временных сбоях.
func (s *PaymentService) callRefund(ctx context.Context, paymentIntentID string, amountMinor int64, idempotencyKey string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < gatewayRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(gatewayRetryBase << (attempt - 1)):
			}
		}

		refundID, err := s.gw.CreateRefund(ctx, paymentIntentID, amountMinor, idempotencyKey)
		if err == nil {
			return refundID, nil
		}
		lastErr = err
		if !errors.Is(err, gateway.ErrTransient) {
			return "", err
		}
		logger.Log.WithError(err).WithField("attempt", attempt+1).Warn("payment service: временный сбой шлюза, повтор")
	}
	return "", lastErr
}

// HandleChargeRefunded сверяет локальный учёт с событием charge.refunded.
// Возвраты инициирует платформа, поэтому обычно событие лишь подтверждает
// уже записанную операцию; расхождение сумм логируется для разбора.
func (s *PaymentService) HandleChargeRefunded(ctx context.Context, event *gateway.Event) error {
	payment, err := s.payments.GetByPaymentIntentID(ctx, event.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("payment service: intent %s: %w", event.PaymentIntentID, err)
	}

	gatewayRefunded := float64(event.AmountMinor) / 100
	if models.MinorUnits(payment.RefundAmount) != event.AmountMinor {
		logger.WithOrder(orderIDString(payment), payment.ID.String()).
			WithField("local_refunded", payment.RefundAmount).
			WithField("gateway_refunded", gatewayRefunded).
			Warn("payment service: расхождение сумм возврата с шлюзом")
	}
	return nil
}

// HandleTransferCreated связывает выплату исполнителю с платежом.
func (s *PaymentService) HandleTransferCreated(ctx context.Context, event *gateway.Event) error {
	paymentID, err := uuid.Parse(event.PaymentID)
	if err != nil {
		return fmt.Errorf("payment service: bad payment_id in event metadata: %w", err)
	}
	return s.payments.SetTransfer(ctx, paymentID, event.TransferID)
}

// ReleaseTransfer переводит заработок исполнителю после завершения заказа.
// Выплата best-effort: сбой не откатывает завершение заказа, перевод будет
// досведён по событию transfer.created либо вручную. Перевод идемпотентен
// по ключу от платежа, поэтому гонка двух вызовов в окне между проверкой
// transfer_id и его записью не создаёт вторую выплату.
func (s *PaymentService) ReleaseTransfer(ctx context.Context, order *models.Order, destinationAccount string) {
	payment, err := s.payments.GetByOrderID(ctx, order.ID)
	if err != nil {
		logger.WithOrder(order.ID.String(), "").WithError(err).Error("payment service: платёж для выплаты не найден")
		return
	}
	if payment.TransferID != nil {
		return
	}

	transferID, err := s.gw.CreateTransfer(ctx, destinationAccount, models.MinorUnits(payment.StudentAmount), "payout:"+payment.ID.String(), map[string]string{
		"order_id":   order.ID.String(),
		"payment_id": payment.ID.String(),
	})
	if err != nil {
		logger.WithOrder(order.ID.String(), payment.ID.String()).WithError(err).Error("payment service: выплата исполнителю не выполнена")
		return
	}

	if err := s.payments.SetTransfer(ctx, payment.ID, transferID); err != nil {
		logger.WithOrder(order.ID.String(), payment.ID.String()).WithError(err).Error("payment service: не удалось записать transfer_id")
	}
}

// GetPayment возвращает платёж заказа.
func (s *PaymentService) GetPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}

// ListRefunds возвращает журнал возвратов по заказу.
func (s *PaymentService) ListRefunds(ctx context.Context, orderID uuid.UUID) ([]models.RefundOperation, error) {
	return s.payments.ListRefundOperations(ctx, orderID)
}

func orderIDString(p *models.Payment) string {
	if p.OrderID == nil {
		return ""
	}
	return p.OrderID.String()
}
