package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeGateway — REST-клиент платёжного шлюза. Суммы передаются в
// минимальных единицах, тела запросов — form-encoded, ключ идемпотентности
// уходит в заголовок Idempotency-Key.
type StripeGateway struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

// NewStripeGateway создаёт клиента шлюза.
func NewStripeGateway(baseURL, secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		baseURL:       strings.TrimRight(baseURL, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type checkoutSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
}

type refundResponse struct {
	ID string `json:"id"`
}

type transferResponse struct {
	ID string `json:"id"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession создаёт checkout-сессию.
// Идентификаторы заказа и платежа передаются в metadata, чтобы вебхук
// мог связать событие с локальными записями.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("line_items[0][price_data][currency]", "rub")
	form.Set("line_items[0][price_data][product_data][name]", params.Title)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountMinor, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[order_id]", params.OrderID.String())
	form.Set("metadata[payment_id]", params.PaymentID.String())

	var resp checkoutSessionResponse
	if err := g.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", form, "", &resp); err != nil {
		return nil, err
	}

	return &CheckoutSession{SessionID: resp.ID, URL: resp.URL}, nil
}

// RetrieveSession запрашивает состояние сессии после возврата покупателя.
func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var resp checkoutSessionResponse
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	if err := g.doRequest(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}

	return &SessionInfo{
		PaymentStatus:   resp.PaymentStatus,
		PaymentIntentID: resp.PaymentIntent,
	}, nil
}

// CreateRefund создаёт возврат по платёжному интенту.
func (g *StripeGateway) CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64, idempotencyKey string) (string, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	form.Set("amount", strconv.FormatInt(amountMinor, 10))

	var resp refundResponse
	if err := g.doRequest(ctx, http.MethodPost, "/v1/refunds", form, idempotencyKey, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateTransfer переводит средства на подключённый аккаунт исполнителя.
// Ключ идемпотентности обязателен: повтор после таймаута не должен
// создавать второй перевод.
func (g *StripeGateway) CreateTransfer(ctx context.Context, destinationAccount string, amountMinor int64, idempotencyKey string, metadata map[string]string) (string, error) {
	form := url.Values{}
	form.Set("destination", destinationAccount)
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", "rub")
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var resp transferResponse
	if err := g.doRequest(ctx, http.MethodPost, "/v1/transfers", form, idempotencyKey, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// doRequest выполняет запрос к API шлюза и декодирует JSON-ответ.
func (g *StripeGateway) doRequest(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// Сетевые сбои считаем временными: вызов можно повторить.
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gateway: %s (%s)", apiErr.Error.Message, apiErr.Error.Type)
		}
		return fmt.Errorf("gateway: unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("gateway: decode response: %w", err)
		}
	}
	return nil
}
