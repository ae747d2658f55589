package store

import (
	"time"

	"github.com/craftai-co-in/superflow/internal/plans"
)

// User is an account together with its plan state.
type User struct {
	ID               int64          `json:"id"`
	Email            string         `json:"email"`
	PasswordHash     string         `json:"-"`
	GoogleSubject    string         `json:"-"`
	PlanType         plans.PlanType `json:"plan_type"`
	MinutesRemaining plans.Minutes  `json:"minutes_remaining"`
	PlanExpiresAt    *time.Time     `json:"plan_expires_at,omitempty"`
	IsPremium        bool           `json:"is_premium"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// OrderStatus is the lifecycle state of a payment order.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentOrder is a single payment attempt. Rows are never deleted.
type PaymentOrder struct {
	ID               int64          `json:"-"`
	OrderID          string         `json:"order_id"`
	UserID           int64          `json:"user_id"`
	PlanType         plans.PlanType `json:"plan_type"`
	Amount           int64          `json:"amount"`
	Status           OrderStatus    `json:"status"`
	PaymentSessionID string         `json:"-"`
	GatewayOrderID   string         `json:"gateway_order_id,omitempty"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// UsageRecord is an append-only minute ledger entry.
type UsageRecord struct {
	ID               string        `json:"id"`
	UserID           int64         `json:"user_id"`
	DurationSeconds  int64         `json:"duration_seconds"`
	MinutesCharged   int64         `json:"minutes_charged"`
	MinutesRemaining plans.Minutes `json:"minutes_remaining"`
	RequestID        string        `json:"request_id,omitempty"`
	OrderID          string        `json:"order_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Recording is a processed voice clip.
type Recording struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"user_id"`
	DurationSeconds int64     `json:"duration_seconds"`
	Style           string    `json:"style"`
	Transcript      string    `json:"transcript"`
	Enhanced        string    `json:"enhanced"`
	CreatedAt       time.Time `json:"created_at"`
}

// Session is a login session keyed by the hash of its cookie token.
type Session struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	UserAgent string
	IP        string
}
