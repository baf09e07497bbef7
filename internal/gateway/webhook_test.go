package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test"

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"transfer.created"}`)
	now := time.Now()

	header := SignPayload(payload, testSecret, now)
	err := verifySignature(payload, header, testSecret, now)
	assert.NoError(t, err)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"transfer.created"}`)
	now := time.Now()

	header := SignPayload(payload, "whsec_other", now)
	err := verifySignature(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"transfer.created"}`)
	now := time.Now()

	header := SignPayload(payload, testSecret, now)
	err := verifySignature([]byte(`{"id":"evt_2","type":"transfer.created"}`), header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignature_Stale(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"transfer.created"}`)
	now := time.Now()

	header := SignPayload(payload, testSecret, now.Add(-6*time.Minute))
	err := verifySignature(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Подпись из будущего тоже не принимается.
	header = SignPayload(payload, testSecret, now.Add(6*time.Minute))
	err = verifySignature(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Now()

	for _, header := range []string{"", "garbage", "t=abc,v1=deadbeef", "v1=deadbeef", "t=123"} {
		err := verifySignature(payload, header, testSecret, now)
		assert.ErrorIs(t, err, ErrInvalidSignature, "header: %q", header)
	}
}

func TestParseEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"payment_intent": "pi_1",
			"metadata": {"order_id": "ord-1", "payment_id": "pay-1"}
		}}
	}`)

	ev, err := ParseEvent(payload)
	assert.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutSessionCompleted, ev.Type)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, "pi_1", ev.PaymentIntentID)
	assert.Equal(t, "ord-1", ev.OrderID)
	assert.Equal(t, "pay-1", ev.PaymentID)
}

func TestParseEvent_ChargeRefunded(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "charge.refunded",
		"data": {"object": {
			"id": "re_1",
			"payment_intent": "pi_1",
			"amount_refunded": 4000
		}}
	}`)

	ev, err := ParseEvent(payload)
	assert.NoError(t, err)
	assert.Equal(t, "re_1", ev.RefundID)
	assert.Equal(t, "pi_1", ev.PaymentIntentID)
	assert.Equal(t, int64(4000), ev.AmountMinor)
}

func TestParseEvent_TransferCreated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "transfer.created",
		"data": {"object": {"id": "tr_1", "amount": 50000}}
	}`)

	ev, err := ParseEvent(payload)
	assert.NoError(t, err)
	assert.Equal(t, "tr_1", ev.TransferID)
	assert.Equal(t, int64(50000), ev.AmountMinor)
}

func TestParseEvent_Invalid(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"id":"evt_1"}`))
	assert.Error(t, err)
}
