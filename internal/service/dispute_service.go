package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/skillmarket/marketplace-backend/internal/logger"
	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository"
)

var (
	ErrNotParticipant        = errors.New("user is not a participant of this order")
	ErrOrderNotDisputable    = errors.New("order status does not allow a dispute")
	ErrDisputeReasonTooShort = errors.New("dispute reason must be at least 10 characters")
	ErrInvalidResolution     = errors.New("unknown dispute resolution")
	ErrPartialAmountInvalid  = errors.New("partial refund amount must be positive and not exceed the order price")
)

const minDisputeReasonLen = 10

// DisputeRepository описывает взаимодействие сервиса с хранилищем споров.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution, notes string, resolvedBy uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
}

// DisputeOrderStore — операции над заказом при решении спора.
type DisputeOrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Complete(ctx context.Context, order *models.Order, fromStatus string, earnings float64, entryType string) error
	Cancel(ctx context.Context, order *models.Order, fromStatuses []string, reason string) error
}

// DisputeService — движок разрешения споров.
type DisputeService struct {
	disputes DisputeRepository
	orders   DisputeOrderStore
	accounts PayoutAccounts
	settle   Settlements
	notify   *NotificationService
}

// NewDisputeService создаёт движок споров.
func NewDisputeService(disputes DisputeRepository, orders DisputeOrderStore, accounts PayoutAccounts, settle Settlements) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		orders:   orders,
		accounts: accounts,
		settle:   settle,
	}
}

// SetNotifier подключает сервис уведомлений.
func (s *DisputeService) SetNotifier(n *NotificationService) {
	s.notify = n
}

// CreateDispute открывает спор по заказу. Спор доступен обеим сторонам из
// in_progress, delivered и revision_requested; на заказ — не больше одного
// открытого спора.
func (s *DisputeService) CreateDispute(ctx context.Context, orderID, openedBy uuid.UUID, reason string) (*models.Dispute, error) {
	if len(strings.TrimSpace(reason)) < minDisputeReasonLen {
		return nil, ErrDisputeReasonTooShort
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(openedBy) {
		return nil, ErrNotParticipant
	}
	if _, ok := models.DisputableOrderStatuses[order.Status]; !ok {
		return nil, ErrOrderNotDisputable
	}

	dispute := &models.Dispute{
		OrderID:  orderID,
		OpenedBy: openedBy,
		Reason:   reason,
		Status:   models.DisputeStatusOpen,
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		return nil, err
	}

	if s.notify != nil {
		data := map[string]interface{}{"order_id": orderID, "dispute_id": dispute.ID}
		s.notify.Push(ctx, order.ClientID, "dispute.opened", data)
		s.notify.Push(ctx, order.StudentID, "dispute.opened", data)
	}

	return dispute, nil
}

// ResolveDispute применяет решение администратора. Решение допустимо только
// по открытому спору: статус перепроверяется до любых денежных операций,
// чтобы второй администратор не отправил возврат по уже решённому спору.
// Дальше операции идут в строгом порядке: идемпотентный возврат в шлюзе
// (если решение его требует), условный перевод спора в resolved, локальный
// учёт. Повтор после сбоя безопасен, пока спор открыт; гонку двух
// администраторов в оставшемся окне закрывают условный UPDATE и ключ
// идемпотентности возврата.
func (s *DisputeService) ResolveDispute(ctx context.Context, disputeID, adminID uuid.UUID, resolution, notes string, partialAmount *float64) (*models.Dispute, error) {
	if _, ok := models.ValidDisputeResolutions[resolution]; !ok {
		return nil, ErrInvalidResolution
	}

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, repository.ErrDisputeNotOpen
	}

	order, err := s.orders.GetByID(ctx, dispute.OrderID)
	if err != nil {
		return nil, err
	}

	var refundAmount *float64
	switch resolution {
	case models.DisputeResolutionRefundToClient:
		refundAmount = nil // вся сумма
	case models.DisputeResolutionPartialRefund:
		if partialAmount == nil || *partialAmount <= 0 || *partialAmount > order.Price {
			return nil, ErrPartialAmountInvalid
		}
		refundAmount = partialAmount
	}

	if resolution != models.DisputeResolutionReleaseToStudent {
		if _, err := s.settle.RefundPayment(ctx, dispute.OrderID, refundAmount); err != nil {
			return nil, err
		}
	}

	if err := s.disputes.Resolve(ctx, disputeID, resolution, notes, adminID); err != nil {
		return nil, err
	}

	if err := s.applyResolution(ctx, order, resolution, partialAmount); err != nil {
		// Спор уже resolved; перевод заказа досводится вручную.
		logger.Log.WithField("dispute_id", disputeID).WithField("order_id", order.ID).
			WithError(err).Error("dispute service: решение применено не полностью")
		return nil, err
	}

	if s.notify != nil {
		data := map[string]interface{}{
			"order_id":   order.ID,
			"dispute_id": disputeID,
			"resolution": resolution,
		}
		s.notify.Push(ctx, order.ClientID, "dispute.resolved", data)
		s.notify.Push(ctx, order.StudentID, "dispute.resolved", data)
	}

	return s.disputes.GetByID(ctx, disputeID)
}

// applyResolution переводит заказ и начисляет заработок согласно решению.
func (s *DisputeService) applyResolution(ctx context.Context, order *models.Order, resolution string, partialAmount *float64) error {
	switch resolution {
	case models.DisputeResolutionReleaseToStudent:
		earnings := order.StudentEarnings()
		if err := s.orders.Complete(ctx, order, order.Status, earnings, models.LedgerEntryDisputeEarnings); err != nil {
			return err
		}
		s.releasePayout(ctx, order)
		return nil

	case models.DisputeResolutionRefundToClient:
		fromStatuses := []string{models.OrderStatusInProgress, models.OrderStatusDelivered, models.OrderStatusRevisionRequested}
		return s.orders.Cancel(ctx, order, fromStatuses, "спор решён в пользу клиента")

	case models.DisputeResolutionPartialRefund:
		// Исполнитель получает долю за вычетом комиссии с остатка.
		earnings := models.Round2((order.Price - *partialAmount) * (1 - order.CommissionRate/100))
		if err := s.orders.Complete(ctx, order, order.Status, earnings, models.LedgerEntryDisputeEarnings); err != nil {
			return err
		}
		s.releasePayout(ctx, order)
		return nil
	}

	return fmt.Errorf("dispute service: unreachable resolution %s", resolution)
}

func (s *DisputeService) releasePayout(ctx context.Context, order *models.Order) {
	account, err := s.accounts.GetGatewayAccount(ctx, order.StudentID)
	if err != nil || account == "" {
		return
	}
	s.settle.ReleaseTransfer(ctx, order, account)
}

// GetDispute возвращает спор; сторонам заказа и администратору.
func (s *DisputeService) GetDispute(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	return s.disputes.GetByID(ctx, disputeID)
}

// GetOpenDisputeForOrder возвращает открытый спор по заказу.
func (s *DisputeService) GetOpenDisputeForOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	return s.disputes.GetOpenByOrderID(ctx, orderID)
}

// ListUserDisputes возвращает споры по заказам пользователя.
func (s *DisputeService) ListUserDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

// ListOpenDisputes возвращает открытые споры для панели администратора.
func (s *DisputeService) ListOpenDisputes(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.disputes.ListOpen(ctx, limit, offset)
}
