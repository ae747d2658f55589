package gateway

import (
	"encoding/json"
	"fmt"
	"math"
)

// Webhook event types.
const (
	EventPaymentSuccess     = "PAYMENT_SUCCESS_WEBHOOK"
	EventPaymentFailed      = "PAYMENT_FAILED_WEBHOOK"
	EventPaymentUserDropped = "PAYMENT_USER_DROPPED_WEBHOOK"
)

// Webhook signature headers.
const (
	HeaderSignature = "x-webhook-signature"
	HeaderTimestamp = "x-webhook-timestamp"
)

// WebhookOrder is the order section of a webhook payload.
type WebhookOrder struct {
	OrderID       string  `json:"order_id"`
	OrderAmount   float64 `json:"order_amount"`
	OrderCurrency string  `json:"order_currency"`
	OrderStatus   string  `json:"order_status"`
}

// WebhookPayment is the payment section of a webhook payload.
type WebhookPayment struct {
	CFPaymentID    flexibleID `json:"cf_payment_id"`
	PaymentStatus  string     `json:"payment_status"`
	PaymentAmount  float64    `json:"payment_amount"`
	PaymentMessage string     `json:"payment_message"`
}

// WebhookEvent is a payment webhook delivered by the gateway.
type WebhookEvent struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order   WebhookOrder   `json:"order"`
		Payment WebhookPayment `json:"payment"`
	} `json:"data"`
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("decode webhook: missing type")
	}
	return &ev, nil
}

// AmountMinor returns the order amount in paisa.
func (e *WebhookEvent) AmountMinor() int64 {
	return int64(math.Round(e.Data.Order.OrderAmount * 100))
}

// PaymentID returns the gateway payment id, if any.
func (e *WebhookEvent) PaymentID() string {
	return string(e.Data.Payment.CFPaymentID)
}
