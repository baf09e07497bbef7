package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/models"
)

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentRepo) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentRepo) FinalizeSucceeded(ctx context.Context, paymentID uuid.UUID, paymentIntentID string, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, paymentID, paymentIntentID, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPaymentRepo) MarkFailed(ctx context.Context, paymentID uuid.UUID) error {
	args := m.Called(ctx, paymentID)
	return args.Error(0)
}

func (m *mockPaymentRepo) HasRefundOperation(ctx context.Context, idempotencyKey string) (bool, error) {
	args := m.Called(ctx, idempotencyKey)
	return args.Bool(0), args.Error(1)
}

func (m *mockPaymentRepo) RecordRefund(ctx context.Context, op *models.RefundOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *mockPaymentRepo) SetTransfer(ctx context.Context, paymentID uuid.UUID, transferID string) error {
	args := m.Called(ctx, paymentID, transferID)
	return args.Error(0)
}

func (m *mockPaymentRepo) ListRefundOperations(ctx context.Context, orderID uuid.UUID) ([]models.RefundOperation, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.RefundOperation), args.Error(1)
}

type mockOrderStateStore struct {
	mock.Mock
}

func (m *mockOrderStateStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderStateStore) MarkInProgress(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params gateway.CheckoutParams) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func (m *mockGateway) RetrieveSession(ctx context.Context, sessionID string) (*gateway.SessionInfo, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SessionInfo), args.Error(1)
}

func (m *mockGateway) CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64, idempotencyKey string) (string, error) {
	args := m.Called(ctx, paymentIntentID, amountMinor, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateTransfer(ctx context.Context, destinationAccount string, amountMinor int64, idempotencyKey string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, destinationAccount, amountMinor, idempotencyKey, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) VerifyWebhook(payload []byte, signatureHeader string) (*gateway.Event, error) {
	args := m.Called(payload, signatureHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Event), args.Error(1)
}

func newPaymentService(payments *mockPaymentRepo, orders *mockOrderStateStore, gw *mockGateway) *PaymentService {
	return NewPaymentService(payments, orders, gw, "https://example.com/success", "https://example.com/cancel")
}

func TestPaymentService_CreateCheckoutSession_Amounts(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	order := &models.Order{ID: uuid.New(), Price: 100, CommissionRate: 15}

	gw.On("CreateCheckoutSession", ctx, mock.MatchedBy(func(p gateway.CheckoutParams) bool {
		return p.OrderID == order.ID && p.AmountMinor == int64(10000)
	})).Return(&gateway.CheckoutSession{SessionID: "cs_1", URL: "https://pay.example/cs_1"}, nil)
	payments.On("Create", ctx, mock.AnythingOfType("*models.Payment")).Return(nil)

	payment, url, err := svc.CreateCheckoutSession(ctx, order, "Логотип")
	assert.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_1", url)
	assert.Equal(t, float64(15), payment.CommissionAmount)
	assert.Equal(t, float64(85), payment.StudentAmount)
	assert.Equal(t, payment.Amount, payment.CommissionAmount+payment.StudentAmount)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	payments.AssertExpectations(t)
}

func TestPaymentService_CreateCheckoutSession_RoundsCommission(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	// 99.99 * 15% = 14.9985 -> 15.00, исполнителю 84.99.
	order := &models.Order{ID: uuid.New(), Price: 99.99, CommissionRate: 15}

	gw.On("CreateCheckoutSession", ctx, mock.Anything).
		Return(&gateway.CheckoutSession{SessionID: "cs_2", URL: "u"}, nil)
	payments.On("Create", ctx, mock.AnythingOfType("*models.Payment")).Return(nil)

	payment, _, err := svc.CreateCheckoutSession(ctx, order, "Баннер")
	assert.NoError(t, err)
	assert.Equal(t, float64(15), payment.CommissionAmount)
	assert.Equal(t, 84.99, payment.StudentAmount)
	assert.Equal(t, payment.Amount, payment.CommissionAmount+payment.StudentAmount)
}

func TestPaymentService_CreateCheckoutSession_GatewayDown(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	order := &models.Order{ID: uuid.New(), Price: 100, CommissionRate: 15}
	gw.On("CreateCheckoutSession", ctx, mock.Anything).Return(nil, errors.New("connection refused"))

	_, _, err := svc.CreateCheckoutSession(ctx, order, "Логотип")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPaymentService_FinalizeWithoutWebhook_Success(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	paymentID := uuid.New()
	orderID := uuid.New()
	pending := &models.Payment{ID: paymentID, CheckoutSessionID: "cs_1", Status: models.PaymentStatusPending}
	succeeded := &models.Payment{ID: paymentID, Status: models.PaymentStatusSucceeded}

	payments.On("GetByID", ctx, paymentID).Return(pending, nil).Once()
	gw.On("RetrieveSession", ctx, "cs_1").
		Return(&gateway.SessionInfo{PaymentStatus: gateway.SessionPaymentStatusPaid, PaymentIntentID: "pi_1"}, nil)
	payments.On("FinalizeSucceeded", ctx, paymentID, "pi_1", orderID).Return(true, nil)
	orders.On("MarkInProgress", ctx, orderID).Return(true, nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{ID: orderID, StudentID: uuid.New()}, nil)
	payments.On("GetByID", ctx, paymentID).Return(succeeded, nil).Once()

	payment, err := svc.FinalizeWithoutWebhook(ctx, paymentID, orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	payments.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestPaymentService_FinalizeWithoutWebhook_AlreadyFinalized(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	paymentID := uuid.New()
	succeeded := &models.Payment{ID: paymentID, Status: models.PaymentStatusSucceeded}
	payments.On("GetByID", ctx, paymentID).Return(succeeded, nil)

	payment, err := svc.FinalizeWithoutWebhook(ctx, paymentID, uuid.New())
	assert.NoError(t, err)
	assert.Equal(t, succeeded, payment)
	gw.AssertNotCalled(t, "RetrieveSession", mock.Anything, mock.Anything)
}

func TestPaymentService_FinalizeWithoutWebhook_Unpaid(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).
		Return(&models.Payment{ID: paymentID, CheckoutSessionID: "cs_1", Status: models.PaymentStatusPending}, nil)
	gw.On("RetrieveSession", ctx, "cs_1").
		Return(&gateway.SessionInfo{PaymentStatus: gateway.SessionPaymentStatusUnpaid}, nil)

	_, err := svc.FinalizeWithoutWebhook(ctx, paymentID, uuid.New())
	assert.ErrorIs(t, err, ErrSessionUnpaid)
	payments.AssertNotCalled(t, "FinalizeSucceeded", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Finalize_LoserIsNoop(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	paymentID := uuid.New()
	orderID := uuid.New()
	pending := &models.Payment{ID: paymentID, CheckoutSessionID: "cs_1", Status: models.PaymentStatusPending}
	succeeded := &models.Payment{ID: paymentID, Status: models.PaymentStatusSucceeded}

	payments.On("GetByID", ctx, paymentID).Return(pending, nil).Once()
	gw.On("RetrieveSession", ctx, "cs_1").
		Return(&gateway.SessionInfo{PaymentStatus: gateway.SessionPaymentStatusPaid, PaymentIntentID: "pi_1"}, nil)
	// Вебхук успел первым: условный UPDATE ничего не затронул.
	payments.On("FinalizeSucceeded", ctx, paymentID, "pi_1", orderID).Return(false, nil)
	orders.On("MarkInProgress", ctx, orderID).Return(false, nil)
	// Сверка находит заказ в работе — возврат не нужен.
	orders.On("GetByID", ctx, orderID).
		Return(&models.Order{ID: orderID, Status: models.OrderStatusInProgress}, nil)
	payments.On("GetByID", ctx, paymentID).Return(succeeded, nil).Once()

	payment, err := svc.FinalizeWithoutWebhook(ctx, paymentID, orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	payments.AssertNotCalled(t, "GetByOrderID", mock.Anything, mock.Anything)
}

func TestPaymentService_Finalize_CancelledOrderGetsRefund(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	paymentID := uuid.New()
	orderID := uuid.New()
	intent := "pi_1"
	pending := &models.Payment{ID: paymentID, OrderID: &orderID, CheckoutSessionID: "cs_1", Status: models.PaymentStatusPending}
	succeeded := &models.Payment{
		ID:              paymentID,
		OrderID:         &orderID,
		Status:          models.PaymentStatusSucceeded,
		PaymentIntentID: &intent,
		Amount:          100,
	}

	payments.On("GetByID", ctx, paymentID).Return(pending, nil).Once()
	gw.On("RetrieveSession", ctx, "cs_1").
		Return(&gateway.SessionInfo{PaymentStatus: gateway.SessionPaymentStatusPaid, PaymentIntentID: "pi_1"}, nil)
	payments.On("FinalizeSucceeded", ctx, paymentID, "pi_1", orderID).Return(true, nil)
	// Заказ отменили, пока платёж ещё был pending: перевод в работу не прошёл.
	orders.On("MarkInProgress", ctx, orderID).Return(false, nil)
	orders.On("GetByID", ctx, orderID).
		Return(&models.Order{ID: orderID, Status: models.OrderStatusCancelled}, nil)
	payments.On("GetByOrderID", ctx, orderID).Return(succeeded, nil)
	payments.On("HasRefundOperation", ctx, "refund:"+orderID.String()+":100.00").Return(false, nil)
	gw.On("CreateRefund", ctx, "pi_1", int64(10000), "refund:"+orderID.String()+":100.00").
		Return("re_1", nil)
	payments.On("RecordRefund", ctx, mock.AnythingOfType("*models.RefundOperation")).Return(nil)
	payments.On("GetByID", ctx, paymentID).
		Return(&models.Payment{ID: paymentID, Status: models.PaymentStatusRefunded}, nil)

	payment, err := svc.FinalizeWithoutWebhook(ctx, paymentID, orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
	gw.AssertExpectations(t)
	payments.AssertExpectations(t)
}

func TestPaymentService_HandleCheckoutCompleted(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	paymentID := uuid.New()
	orderID := uuid.New()
	event := &gateway.Event{
		Type:            gateway.EventCheckoutSessionCompleted,
		SessionID:       "cs_1",
		PaymentIntentID: "pi_1",
		OrderID:         orderID.String(),
	}

	payments.On("GetBySessionID", ctx, "cs_1").
		Return(&models.Payment{ID: paymentID, Status: models.PaymentStatusPending}, nil)
	payments.On("FinalizeSucceeded", ctx, paymentID, "pi_1", orderID).Return(true, nil)
	orders.On("MarkInProgress", ctx, orderID).Return(true, nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{ID: orderID}, nil)
	payments.On("GetByID", ctx, paymentID).
		Return(&models.Payment{ID: paymentID, Status: models.PaymentStatusSucceeded}, nil)

	err := svc.HandleCheckoutCompleted(ctx, event)
	assert.NoError(t, err)
	payments.AssertExpectations(t)
}

func TestPaymentService_RefundPayment_Full(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	orderID := uuid.New()
	intent := "pi_1"
	payment := &models.Payment{
		ID:              uuid.New(),
		Amount:          100,
		Status:          models.PaymentStatusSucceeded,
		PaymentIntentID: &intent,
	}

	payments.On("GetByOrderID", ctx, orderID).Return(payment, nil)
	payments.On("HasRefundOperation", ctx, mock.AnythingOfType("string")).Return(false, nil)
	gw.On("CreateRefund", ctx, intent, int64(10000), mock.AnythingOfType("string")).Return("re_1", nil)
	payments.On("RecordRefund", ctx, mock.MatchedBy(func(op *models.RefundOperation) bool {
		return op.OperationType == models.RefundOperationFull && op.Amount == float64(100)
	})).Return(nil)
	payments.On("GetByID", ctx, payment.ID).
		Return(&models.Payment{ID: payment.ID, Status: models.PaymentStatusRefunded, RefundAmount: 100}, nil)

	result, err := svc.RefundPayment(ctx, orderID, nil)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, result.Status)
	payments.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestPaymentService_RefundPayment_PartialType(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	orderID := uuid.New()
	intent := "pi_1"
	payment := &models.Payment{ID: uuid.New(), Amount: 100, Status: models.PaymentStatusSucceeded, PaymentIntentID: &intent}

	payments.On("GetByOrderID", ctx, orderID).Return(payment, nil)
	payments.On("HasRefundOperation", ctx, mock.AnythingOfType("string")).Return(false, nil)
	gw.On("CreateRefund", ctx, intent, int64(4000), mock.AnythingOfType("string")).Return("re_2", nil)
	payments.On("RecordRefund", ctx, mock.MatchedBy(func(op *models.RefundOperation) bool {
		return op.OperationType == models.RefundOperationPartial && op.Amount == float64(40)
	})).Return(nil)
	payments.On("GetByID", ctx, payment.ID).
		Return(&models.Payment{ID: payment.ID, Status: models.PaymentStatusPartiallyRefunded, RefundAmount: 40}, nil)

	amount := 40.0
	result, err := svc.RefundPayment(ctx, orderID, &amount)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartiallyRefunded, result.Status)
}

func TestPaymentService_RefundPayment_RepeatIsNoop(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	orderID := uuid.New()
	intent := "pi_1"
	payment := &models.Payment{
		ID:              uuid.New(),
		Amount:          100,
		RefundAmount:    40,
		Status:          models.PaymentStatusPartiallyRefunded,
		PaymentIntentID: &intent,
	}

	payments.On("GetByOrderID", ctx, orderID).Return(payment, nil)
	payments.On("HasRefundOperation", ctx, mock.AnythingOfType("string")).Return(true, nil)

	result, err := svc.RefundPayment(ctx, orderID, nil)
	assert.NoError(t, err)
	assert.Equal(t, payment, result)
	gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_RefundPayment_TooLarge(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	orderID := uuid.New()
	intent := "pi_1"
	payment := &models.Payment{
		ID:              uuid.New(),
		Amount:          100,
		RefundAmount:    80,
		Status:          models.PaymentStatusPartiallyRefunded,
		PaymentIntentID: &intent,
	}
	payments.On("GetByOrderID", ctx, orderID).Return(payment, nil)

	amount := 50.0
	_, err := svc.RefundPayment(ctx, orderID, &amount)
	assert.ErrorIs(t, err, ErrRefundTooLarge)
}

func TestPaymentService_RefundPayment_NotRefundable(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	orderID := uuid.New()
	payments.On("GetByOrderID", ctx, orderID).
		Return(&models.Payment{ID: uuid.New(), Status: models.PaymentStatusPending}, nil)

	_, err := svc.RefundPayment(ctx, orderID, nil)
	assert.ErrorIs(t, err, ErrPaymentNotRefundable)
}

func TestPaymentService_CallRefund_RetriesTransient(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	oldBase := gatewayRetryBase
	gatewayRetryBase = 0
	defer func() { gatewayRetryBase = oldBase }()

	gw.On("CreateRefund", ctx, "pi_1", int64(1000), "key").
		Return("", gateway.ErrTransient).Twice()
	gw.On("CreateRefund", ctx, "pi_1", int64(1000), "key").
		Return("re_1", nil).Once()

	refundID, err := svc.callRefund(ctx, "pi_1", 1000, "key")
	assert.NoError(t, err)
	assert.Equal(t, "re_1", refundID)
	gw.AssertExpectations(t)
}

func TestPaymentService_CallRefund_PermanentErrorStops(t *testing.T) {
	payments := new(mockPaymentRepo)
	orders := new(mockOrderStateStore)
	gw := new(mockGateway)
	svc := newPaymentService(payments, orders, gw)
	ctx := context.Background()

	gw.On("CreateRefund", ctx, "pi_1", int64(1000), "key").
		Return("", errors.New("invalid payment intent")).Once()

	_, err := svc.callRefund(ctx, "pi_1", 1000, "key")
	assert.Error(t, err)
	gw.AssertNumberOfCalls(t, "CreateRefund", 1)
}
