package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository"
)

type mockWithdrawalRepo struct {
	mock.Mock
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, userID uuid.UUID, amount float64, cardLast4, bankName string) (*models.Withdrawal, error) {
	args := m.Called(ctx, userID, amount, cardLast4, bankName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) Complete(ctx context.Context, id uuid.UUID, transferID string) (*models.Withdrawal, error) {
	args := m.Called(ctx, id, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Withdrawal, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) ListPending(ctx context.Context, limit, offset int) ([]models.Withdrawal, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Withdrawal), args.Error(1)
}

type mockBalanceReader struct {
	mock.Mock
}

func (m *mockBalanceReader) GetBalance(ctx context.Context, userID uuid.UUID) (*models.SellerBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SellerBalance), args.Error(1)
}

func (m *mockBalanceReader) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

type withdrawalServiceMocks struct {
	repo     *mockWithdrawalRepo
	ledger   *mockBalanceReader
	accounts *mockPayoutAccounts
	gw       *mockGateway
}

func newWithdrawalService() (*WithdrawalService, withdrawalServiceMocks) {
	m := withdrawalServiceMocks{
		repo:     new(mockWithdrawalRepo),
		ledger:   new(mockBalanceReader),
		accounts: new(mockPayoutAccounts),
		gw:       new(mockGateway),
	}
	return NewWithdrawalService(m.repo, m.ledger, m.accounts, m.gw), m
}

func TestWithdrawalService_CreateWithdrawal(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Withdrawal{ID: uuid.New(), UserID: userID, Amount: 500, Status: models.WithdrawalStatusPending}
	m.repo.On("Create", ctx, userID, float64(500), "1234", "Т-Банк").Return(expected, nil)

	withdrawal, err := svc.CreateWithdrawal(ctx, userID, 500, "1234", "Т-Банк")
	assert.NoError(t, err)
	assert.Equal(t, expected, withdrawal)
}

func TestWithdrawalService_CreateWithdrawal_BelowMinimum(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()

	_, err := svc.CreateWithdrawal(ctx, uuid.New(), 99.99, "1234", "Т-Банк")
	assert.ErrorIs(t, err, ErrMinWithdrawalAmount)
	m.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawalService_CreateWithdrawal_InsufficientFunds(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()
	userID := uuid.New()

	m.repo.On("Create", ctx, userID, float64(1000), "1234", "Т-Банк").
		Return(nil, repository.ErrInsufficientFunds)

	_, err := svc.CreateWithdrawal(ctx, userID, 1000, "1234", "Т-Банк")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
}

func TestWithdrawalService_ApproveWithdrawal(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()

	withdrawalID := uuid.New()
	userID := uuid.New()
	pending := &models.Withdrawal{ID: withdrawalID, UserID: userID, Amount: 500, Status: models.WithdrawalStatusPending}
	completed := &models.Withdrawal{ID: withdrawalID, UserID: userID, Amount: 500, Status: models.WithdrawalStatusCompleted}

	m.repo.On("GetByID", ctx, withdrawalID).Return(pending, nil)
	m.accounts.On("GetGatewayAccount", ctx, userID).Return("acct_1", nil)
	m.gw.On("CreateTransfer", ctx, "acct_1", int64(50000), "withdrawal:"+withdrawalID.String(), map[string]string{
		"withdrawal_id": withdrawalID.String(),
	}).Return("tr_1", nil)
	m.repo.On("Complete", ctx, withdrawalID, "tr_1").Return(completed, nil)

	result, err := svc.ApproveWithdrawal(ctx, withdrawalID)
	assert.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, result.Status)
	m.gw.AssertExpectations(t)
}

func TestWithdrawalService_ApproveWithdrawal_AlreadyProcessed(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()

	withdrawalID := uuid.New()
	// Повторное одобрение уже выполненной заявки не должно дойти до шлюза.
	m.repo.On("GetByID", ctx, withdrawalID).
		Return(&models.Withdrawal{ID: withdrawalID, UserID: uuid.New(), Amount: 500, Status: models.WithdrawalStatusCompleted}, nil)

	_, err := svc.ApproveWithdrawal(ctx, withdrawalID)
	assert.ErrorIs(t, err, repository.ErrWithdrawalNotPending)
	m.gw.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.accounts.AssertNotCalled(t, "GetGatewayAccount", mock.Anything, mock.Anything)
}

func TestWithdrawalService_ApproveWithdrawal_NoAccount(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()

	withdrawalID := uuid.New()
	userID := uuid.New()
	m.repo.On("GetByID", ctx, withdrawalID).
		Return(&models.Withdrawal{ID: withdrawalID, UserID: userID, Amount: 500, Status: models.WithdrawalStatusPending}, nil)
	m.accounts.On("GetGatewayAccount", ctx, userID).Return("", nil)

	_, err := svc.ApproveWithdrawal(ctx, withdrawalID)
	assert.Error(t, err)
	m.gw.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawalService_ApproveWithdrawal_GatewayDown(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()

	withdrawalID := uuid.New()
	userID := uuid.New()
	m.repo.On("GetByID", ctx, withdrawalID).
		Return(&models.Withdrawal{ID: withdrawalID, UserID: userID, Amount: 500, Status: models.WithdrawalStatusPending}, nil)
	m.accounts.On("GetGatewayAccount", ctx, userID).Return("acct_1", nil)
	m.gw.On("CreateTransfer", ctx, "acct_1", int64(50000), "withdrawal:"+withdrawalID.String(), mock.Anything).
		Return("", assert.AnError)

	_, err := svc.ApproveWithdrawal(ctx, withdrawalID)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	m.repo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawalService_RejectWithdrawal(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()

	withdrawalID := uuid.New()
	rejected := &models.Withdrawal{ID: withdrawalID, UserID: uuid.New(), Status: models.WithdrawalStatusRejected}
	m.repo.On("Reject", ctx, withdrawalID, "нет документов").Return(rejected, nil)

	result, err := svc.RejectWithdrawal(ctx, withdrawalID, "нет документов")
	assert.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusRejected, result.Status)
}

func TestWithdrawalService_RejectWithdrawal_AlreadyProcessed(t *testing.T) {
	svc, m := newWithdrawalService()
	ctx := context.Background()

	withdrawalID := uuid.New()
	m.repo.On("Reject", ctx, withdrawalID, "поздно").Return(nil, repository.ErrWithdrawalNotPending)

	_, err := svc.RejectWithdrawal(ctx, withdrawalID, "поздно")
	assert.ErrorIs(t, err, repository.ErrWithdrawalNotPending)
}
