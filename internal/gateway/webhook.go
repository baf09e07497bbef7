package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance — допустимый возраст подписи вебхука.
// Защищает от повторного проигрывания перехваченных запросов.
const signatureTolerance = 5 * time.Minute

// VerifyWebhook проверяет HMAC-подпись и разбирает событие.
// Формат заголовка: "t=<unix>,v1=<hex hmac-sha256>"; подписывается
// строка "<timestamp>.<body>" общим секретом.
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if err := verifySignature(payload, signatureHeader, g.webhookSecret, time.Now()); err != nil {
		return nil, err
	}
	return ParseEvent(payload)
}

func verifySignature(payload []byte, header, secret string, now time.Time) error {
	var timestamp int64
	var signature string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			signature = value
		}
	}

	if timestamp == 0 || signature == "" {
		return ErrInvalidSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignPayload формирует заголовок подписи. Используется тестами и
// инструментами для имитации вебхуков шлюза.
func SignPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string            `json:"id"`
			PaymentIntent  string            `json:"payment_intent"`
			Amount         int64             `json:"amount"`
			AmountRefunded int64             `json:"amount_refunded"`
			Metadata       map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent разбирает тело вебхука в Event.
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("gateway: parse event: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("gateway: event without id or type")
	}

	ev := &Event{
		ID:        env.ID,
		Type:      env.Type,
		OrderID:   env.Data.Object.Metadata["order_id"],
		PaymentID: env.Data.Object.Metadata["payment_id"],
	}

	switch env.Type {
	case EventCheckoutSessionCompleted:
		ev.SessionID = env.Data.Object.ID
		ev.PaymentIntentID = env.Data.Object.PaymentIntent
	case EventChargeRefunded:
		ev.PaymentIntentID = env.Data.Object.PaymentIntent
		ev.RefundID = env.Data.Object.ID
		ev.AmountMinor = env.Data.Object.AmountRefunded
	case EventTransferCreated:
		ev.TransferID = env.Data.Object.ID
		ev.AmountMinor = env.Data.Object.Amount
	}

	return ev, nil
}
