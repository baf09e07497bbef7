package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/models"
)

type mockWebhookRepo struct {
	mock.Mock
}

func (m *mockWebhookRepo) Insert(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *mockWebhookRepo) MarkProcessed(ctx context.Context, stripeEventID string) error {
	args := m.Called(ctx, stripeEventID)
	return args.Error(0)
}

func (m *mockWebhookRepo) RecordError(ctx context.Context, stripeEventID string, processErr error) error {
	args := m.Called(ctx, stripeEventID, processErr)
	return args.Error(0)
}

type mockSettlementHandlers struct {
	mock.Mock
}

func (m *mockSettlementHandlers) HandleCheckoutCompleted(ctx context.Context, event *gateway.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockSettlementHandlers) HandleChargeRefunded(ctx context.Context, event *gateway.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockSettlementHandlers) HandleTransferCreated(ctx context.Context, event *gateway.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

const testWebhookSecret = "whsec_test"

func signedPayload(eventID, eventType, sessionID string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(
		`{"id":"%s","type":"%s","data":{"object":{"id":"%s","payment_intent":"pi_1","metadata":{"order_id":"o","payment_id":"p"}}}}`,
		eventID, eventType, sessionID,
	))
	return payload, gateway.SignPayload(payload, testWebhookSecret, time.Now())
}

func newWebhookService(events *mockWebhookRepo, settle *mockSettlementHandlers) *WebhookService {
	verifier := gateway.NewStripeGateway("https://api.example.com", "sk_test", testWebhookSecret)
	return NewWebhookService(events, verifier, settle)
}

func TestWebhookService_ProcessWebhook_CheckoutCompleted(t *testing.T) {
	events := new(mockWebhookRepo)
	settle := new(mockSettlementHandlers)
	svc := newWebhookService(events, settle)
	ctx := context.Background()

	payload, signature := signedPayload("evt_1", gateway.EventCheckoutSessionCompleted, "cs_1")

	events.On("Insert", ctx, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return e.StripeEventID == "evt_1" && e.EventType == gateway.EventCheckoutSessionCompleted
	})).Return(true, nil)
	settle.On("HandleCheckoutCompleted", ctx, mock.MatchedBy(func(e *gateway.Event) bool {
		return e.SessionID == "cs_1" && e.PaymentIntentID == "pi_1"
	})).Return(nil)
	events.On("MarkProcessed", ctx, "evt_1").Return(nil)

	err := svc.ProcessWebhook(ctx, payload, signature)
	assert.NoError(t, err)
	events.AssertExpectations(t)
	settle.AssertExpectations(t)
}

func TestWebhookService_ProcessWebhook_BadSignature(t *testing.T) {
	events := new(mockWebhookRepo)
	settle := new(mockSettlementHandlers)
	svc := newWebhookService(events, settle)
	ctx := context.Background()

	payload, _ := signedPayload("evt_1", gateway.EventCheckoutSessionCompleted, "cs_1")
	forged := gateway.SignPayload(payload, "wrong_secret", time.Now())

	err := svc.ProcessWebhook(ctx, payload, forged)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	// До записи в журнал дело не дошло.
	events.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestWebhookService_ProcessWebhook_StaleSignature(t *testing.T) {
	events := new(mockWebhookRepo)
	settle := new(mockSettlementHandlers)
	svc := newWebhookService(events, settle)
	ctx := context.Background()

	payload, _ := signedPayload("evt_1", gateway.EventCheckoutSessionCompleted, "cs_1")
	stale := gateway.SignPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))

	err := svc.ProcessWebhook(ctx, payload, stale)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestWebhookService_ProcessWebhook_ReplayIsNoop(t *testing.T) {
	events := new(mockWebhookRepo)
	settle := new(mockSettlementHandlers)
	svc := newWebhookService(events, settle)
	ctx := context.Background()

	payload, signature := signedPayload("evt_1", gateway.EventCheckoutSessionCompleted, "cs_1")
	events.On("Insert", ctx, mock.Anything).Return(false, nil)

	err := svc.ProcessWebhook(ctx, payload, signature)
	assert.NoError(t, err)
	settle.AssertNotCalled(t, "HandleCheckoutCompleted", mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestWebhookService_ProcessWebhook_HandlerErrorRecorded(t *testing.T) {
	events := new(mockWebhookRepo)
	settle := new(mockSettlementHandlers)
	svc := newWebhookService(events, settle)
	ctx := context.Background()

	payload, signature := signedPayload("evt_1", gateway.EventCheckoutSessionCompleted, "cs_1")
	handlerErr := errors.New("payment not found")

	events.On("Insert", ctx, mock.Anything).Return(true, nil)
	settle.On("HandleCheckoutCompleted", ctx, mock.Anything).Return(handlerErr)
	events.On("RecordError", ctx, "evt_1", handlerErr).Return(nil)

	err := svc.ProcessWebhook(ctx, payload, signature)
	assert.ErrorIs(t, err, handlerErr)
	events.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestWebhookService_ProcessWebhook_UnknownTypeAcknowledged(t *testing.T) {
	events := new(mockWebhookRepo)
	settle := new(mockSettlementHandlers)
	svc := newWebhookService(events, settle)
	ctx := context.Background()

	payload, signature := signedPayload("evt_2", "invoice.created", "in_1")

	events.On("Insert", ctx, mock.Anything).Return(true, nil)
	events.On("MarkProcessed", ctx, "evt_2").Return(nil)

	err := svc.ProcessWebhook(ctx, payload, signature)
	assert.NoError(t, err)
	settle.AssertNotCalled(t, "HandleCheckoutCompleted", mock.Anything, mock.Anything)
}

func TestWebhookService_Dispatch_TransferCreated(t *testing.T) {
	events := new(mockWebhookRepo)
	settle := new(mockSettlementHandlers)
	svc := newWebhookService(events, settle)
	ctx := context.Background()

	payload, signature := signedPayload("evt_3", gateway.EventTransferCreated, "tr_1")

	events.On("Insert", ctx, mock.Anything).Return(true, nil)
	settle.On("HandleTransferCreated", ctx, mock.MatchedBy(func(e *gateway.Event) bool {
		return e.TransferID == "tr_1"
	})).Return(nil)
	events.On("MarkProcessed", ctx, "evt_3").Return(nil)

	err := svc.ProcessWebhook(ctx, payload, signature)
	assert.NoError(t, err)
	settle.AssertExpectations(t)
}
