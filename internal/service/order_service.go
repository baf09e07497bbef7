package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillmarket/marketplace-backend/internal/logger"
	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository"
)

var (
	ErrServiceNotActive     = errors.New("service is not active")
	ErrOwnService           = errors.New("cannot order your own service")
	ErrNotOrderClient       = errors.New("user is not the client of this order")
	ErrNotOrderStudent      = errors.New("user is not the student of this order")
	ErrRequirementsTooShort = errors.New("requirements must be at least 10 characters")
	ErrDeliveryIncomplete   = errors.New("delivery needs a message and at least one file")
	ErrRevisionLimitReached = errors.New("revision limit reached, open a dispute instead")
	ErrOrderNotCancellable  = errors.New("only pending orders can be cancelled")
)

const minRequirementsLen = 10

// OrderRepository описывает взаимодействие сервиса с хранилищем заказов.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order, requirementMediaIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
	Deliver(ctx context.Context, orderID uuid.UUID, message string, deliveryMediaIDs []uuid.UUID) error
	RequestRevision(ctx context.Context, orderID uuid.UUID) (bool, error)
	Complete(ctx context.Context, order *models.Order, fromStatus string, earnings float64, entryType string) error
	Cancel(ctx context.Context, order *models.Order, fromStatuses []string, reason string) error
}

// ServiceCatalog — доступ к каталогу услуг.
type ServiceCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// SettingsProvider — текущие настройки платформы.
type SettingsProvider interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
}

// PayoutAccounts — счёт исполнителя в платёжном шлюзе.
type PayoutAccounts interface {
	GetGatewayAccount(ctx context.Context, userID uuid.UUID) (string, error)
}

// Settlements — операции движка расчётов, нужные машине состояний заказа.
type Settlements interface {
	CreateCheckoutSession(ctx context.Context, order *models.Order, title string) (*models.Payment, string, error)
	RefundPayment(ctx context.Context, orderID uuid.UUID, amount *float64) (*models.Payment, error)
	ReleaseTransfer(ctx context.Context, order *models.Order, destinationAccount string)
	GetPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
}

// OrderService — машина состояний заказа.
type OrderService struct {
	repo     OrderRepository
	catalog  ServiceCatalog
	settings SettingsProvider
	accounts PayoutAccounts
	settle   Settlements
	notify   *NotificationService
}

// NewOrderService создаёт новый сервис заказов.
func NewOrderService(repo OrderRepository, catalog ServiceCatalog, settings SettingsProvider, accounts PayoutAccounts, settle Settlements) *OrderService {
	return &OrderService{
		repo:     repo,
		catalog:  catalog,
		settings: settings,
		accounts: accounts,
		settle:   settle,
	}
}

// SetNotifier подключает сервис уведомлений.
func (s *OrderService) SetNotifier(n *NotificationService) {
	s.notify = n
}

// CreateOrderInput описывает входные данные.
type CreateOrderInput struct {
	ClientID            uuid.UUID
	ServiceID           uuid.UUID
	Requirements        string
	RequirementMediaIDs []uuid.UUID
}

// CreateOrder создаёт заказ на активную услугу и открывает checkout-сессию.
// Ставка комиссии и лимит доработок фиксируются на заказе в момент создания.
// Возвращает заказ и URL оплаты.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, string, error) {
	if len(strings.TrimSpace(in.Requirements)) < minRequirementsLen {
		return nil, "", ErrRequirementsTooShort
	}

	svc, err := s.catalog.GetByID(ctx, in.ServiceID)
	if err != nil {
		return nil, "", err
	}
	if svc.Status != models.ServiceStatusActive {
		return nil, "", ErrServiceNotActive
	}
	if svc.StudentID == in.ClientID {
		return nil, "", ErrOwnService
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, "", err
	}

	order := &models.Order{
		ClientID:       in.ClientID,
		StudentID:      svc.StudentID,
		ServiceID:      svc.ID,
		Status:         models.OrderStatusPending,
		Requirements:   in.Requirements,
		Price:          svc.Price,
		CommissionRate: settings.CommissionRate,
		MaxRevisions:   settings.MaxRevisions,
		DeadlineAt:     time.Now().AddDate(0, 0, svc.DeliveryDays),
	}

	if err := s.repo.Create(ctx, order, in.RequirementMediaIDs); err != nil {
		return nil, "", err
	}

	_, checkoutURL, err := s.settle.CreateCheckoutSession(ctx, order, svc.Title)
	if err != nil {
		// Заказ остаётся pending без сессии; клиент может отменить его
		// или повторить оформление.
		return nil, "", err
	}

	if s.notify != nil {
		s.notify.Push(ctx, order.StudentID, "order.created", map[string]interface{}{
			"order_id": order.ID,
			"price":    order.Price,
		})
	}

	return order, checkoutURL, nil
}

// GetOrder возвращает заказ с файлами; доступен только его сторонам.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(userID) {
		return nil, ErrNotOrderClient
	}
	return order, nil
}

// ListMyOrders возвращает заказы пользователя как любой из сторон.
func (s *OrderService) ListMyOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByParticipant(ctx, userID, limit, offset)
}

// DeliverOrder — сдача работы исполнителем. Требует непустое сообщение и
// хотя бы один файл; допускается из in_progress и revision_requested.
func (s *OrderService) DeliverOrder(ctx context.Context, orderID, studentID uuid.UUID, message string, deliveryMediaIDs []uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.StudentID != studentID {
		return nil, ErrNotOrderStudent
	}
	if strings.TrimSpace(message) == "" || len(deliveryMediaIDs) == 0 {
		return nil, ErrDeliveryIncomplete
	}

	if err := s.repo.Deliver(ctx, orderID, message, deliveryMediaIDs); err != nil {
		return nil, err
	}

	if s.notify != nil {
		s.notify.Push(ctx, order.ClientID, "order.delivered", map[string]interface{}{
			"order_id": orderID,
		})
	}

	return s.repo.GetByID(ctx, orderID)
}

// RequestRevision — запрос доработки клиентом. После исчерпания лимита
// доработок путь лежит через спор, а не через новые итерации.
func (s *OrderService) RequestRevision(ctx context.Context, orderID, clientID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != clientID {
		return nil, ErrNotOrderClient
	}

	ok, err := s.repo.RequestRevision(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if order.Status == models.OrderStatusDelivered {
			return nil, ErrRevisionLimitReached
		}
		return nil, repository.ErrInvalidTransition
	}

	if s.notify != nil {
		s.notify.Push(ctx, order.StudentID, "order.revision_requested", map[string]interface{}{
			"order_id": orderID,
		})
	}

	return s.repo.GetByID(ctx, orderID)
}

// CompleteOrder — приёмка работы клиентом. Начисление заработка исполнителю
// происходит в одной транзакции с переводом заказа в completed; выплата через
// шлюз выполняется после и не влияет на результат приёмки.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, clientID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != clientID {
		return nil, ErrNotOrderClient
	}

	earnings := order.StudentEarnings()
	if err := s.repo.Complete(ctx, order, models.OrderStatusDelivered, earnings, models.LedgerEntryOrderEarnings); err != nil {
		return nil, err
	}

	if s.notify != nil {
		s.notify.Push(ctx, order.StudentID, "order.completed", map[string]interface{}{
			"order_id": orderID,
			"earnings": earnings,
		})
	}

	s.releaseEarnings(ctx, order)

	return s.repo.GetByID(ctx, orderID)
}

// releaseEarnings запускает best-effort выплату исполнителю.
func (s *OrderService) releaseEarnings(ctx context.Context, order *models.Order) {
	account, err := s.accounts.GetGatewayAccount(ctx, order.StudentID)
	if err != nil || account == "" {
		logger.WithOrder(order.ID.String(), "").Info("order service: у исполнителя нет счёта для выплат, перевод отложен")
		return
	}
	s.settle.ReleaseTransfer(ctx, order, account)
}

// CancelOrder — отмена заказа клиентом. Разрешена только из pending. Если к
// моменту отмены платёж уже прошёл, вся сумма возвращается клиенту; отмена
// выполняется первой, чтобы одновременная финализация платежа не увела заказ
// в работу.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, clientID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != clientID {
		return nil, ErrNotOrderClient
	}

	if err := s.repo.Cancel(ctx, order, []string{models.OrderStatusPending}, reason); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, ErrOrderNotCancellable
		}
		return nil, err
	}

	payment, err := s.settle.GetPayment(ctx, orderID)
	if err == nil && (payment.Status == models.PaymentStatusSucceeded || payment.Status == models.PaymentStatusPartiallyRefunded) {
		if _, err := s.settle.RefundPayment(ctx, orderID, nil); err != nil {
			logger.WithOrder(orderID.String(), payment.ID.String()).WithError(err).Error("order service: возврат при отмене не выполнен")
			return nil, err
		}
	}

	if s.notify != nil {
		s.notify.Push(ctx, order.StudentID, "order.cancelled", map[string]interface{}{
			"order_id": orderID,
			"reason":   reason,
		})
	}

	return s.repo.GetByID(ctx, orderID)
}
