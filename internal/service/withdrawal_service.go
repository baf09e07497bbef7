package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/logger"
	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository"
)

var ErrMinWithdrawalAmount = errors.New("minimum withdrawal amount is 100 RUB")

const minWithdrawalAmount = 100

// WithdrawalRepository описывает взаимодействие сервиса с хранилищем выводов.
type WithdrawalRepository interface {
	Create(ctx context.Context, userID uuid.UUID, amount float64, cardLast4, bankName string) (*models.Withdrawal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	Complete(ctx context.Context, id uuid.UUID, transferID string) (*models.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.Withdrawal, error)
}

// BalanceReader — чтение баланса исполнителя.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.SellerBalance, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
}

// WithdrawalService — вывод доступного баланса исполнителя.
type WithdrawalService struct {
	repo     WithdrawalRepository
	ledger   BalanceReader
	accounts PayoutAccounts
	gw       gateway.Gateway
	notify   *NotificationService
}

// NewWithdrawalService создаёт сервис выводов.
func NewWithdrawalService(repo WithdrawalRepository, ledger BalanceReader, accounts PayoutAccounts, gw gateway.Gateway) *WithdrawalService {
	return &WithdrawalService{repo: repo, ledger: ledger, accounts: accounts, gw: gw}
}

// SetNotifier подключает сервис уведомлений.
func (s *WithdrawalService) SetNotifier(n *NotificationService) {
	s.notify = n
}

// CreateWithdrawal создаёт заявку на вывод. Доступный баланс списывается
// сразу, атомарно с созданием заявки: недостаток средств отклоняет заявку.
func (s *WithdrawalService) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount float64, cardLast4, bankName string) (*models.Withdrawal, error) {
	if amount < minWithdrawalAmount {
		return nil, ErrMinWithdrawalAmount
	}
	return s.repo.Create(ctx, userID, models.Round2(amount), cardLast4, bankName)
}

// ApproveWithdrawal — одобрение заявки администратором: перевод через шлюз,
// затем заявка закрывается и сумма записывается в total_withdrawn. Повторное
// одобрение отклоняется до обращения к шлюзу, а сам перевод идемпотентен по
// ключу от идентификатора заявки: повтор после таймаута не платит дважды.
func (s *WithdrawalService) ApproveWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	withdrawal, err := s.repo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if withdrawal.Status != models.WithdrawalStatusPending {
		return nil, repository.ErrWithdrawalNotPending
	}

	account, err := s.accounts.GetGatewayAccount(ctx, withdrawal.UserID)
	if err != nil {
		return nil, err
	}
	if account == "" {
		return nil, fmt.Errorf("withdrawal service: у исполнителя не подключён счёт для выплат")
	}

	transferID, err := s.gw.CreateTransfer(ctx, account, models.MinorUnits(withdrawal.Amount), "withdrawal:"+withdrawal.ID.String(), map[string]string{
		"withdrawal_id": withdrawal.ID.String(),
	})
	if err != nil {
		logger.Log.WithField("withdrawal_id", withdrawalID).WithError(err).Error("withdrawal service: перевод не выполнен")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	done, err := s.repo.Complete(ctx, withdrawalID, transferID)
	if err != nil {
		return nil, err
	}

	if s.notify != nil {
		s.notify.Push(ctx, done.UserID, "withdrawal.completed", map[string]interface{}{
			"withdrawal_id": done.ID,
			"amount":        done.Amount,
		})
	}

	return done, nil
}

// RejectWithdrawal — отклонение заявки: зарезервированная сумма возвращается
// на доступный баланс.
func (s *WithdrawalService) RejectWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) (*models.Withdrawal, error) {
	rejected, err := s.repo.Reject(ctx, withdrawalID, reason)
	if err != nil {
		return nil, err
	}

	if s.notify != nil {
		s.notify.Push(ctx, rejected.UserID, "withdrawal.rejected", map[string]interface{}{
			"withdrawal_id": rejected.ID,
			"reason":        reason,
		})
	}

	return rejected, nil
}

// GetBalance возвращает баланс исполнителя.
func (s *WithdrawalService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.SellerBalance, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// ListLedgerEntries возвращает журнал движений по балансу.
func (s *WithdrawalService) ListLedgerEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.ledger.ListEntries(ctx, userID, limit, offset)
}

// GetWithdrawal возвращает заявку на вывод.
func (s *WithdrawalService) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return s.repo.GetByID(ctx, id)
}

// ListUserWithdrawals возвращает заявки пользователя.
func (s *WithdrawalService) ListUserWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// ListPendingWithdrawals возвращает заявки в очереди для администратора.
func (s *WithdrawalService) ListPendingWithdrawals(ctx context.Context, limit, offset int) ([]models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListPending(ctx, limit, offset)
}
