// Package gateway talks to the Cashfree payment gateway. The Adapter is
// chosen once at startup: RealAdapter for production and SandboxAdapter for
// the sandbox environment, which relaxes webhook signature checks and can
// simulate payments when no credentials are configured.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/craftai-co-in/superflow/internal/netutil"
)

// Environment selects the gateway environment.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// ParseEnvironment accepts "sandbox"/"test" and "production"/"prod".
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sandbox", "test":
		return EnvSandbox, nil
	case "production", "prod":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("unknown gateway environment %q", s)
	}
}

// PaymentState is the normalized outcome of a payment.
type PaymentState string

const (
	StatePaid      PaymentState = "paid"
	StateFailed    PaymentState = "failed"
	StateCancelled PaymentState = "cancelled"
	StatePending   PaymentState = "pending"
)

// OrderSpec describes an order to create on the gateway.
type OrderSpec struct {
	OrderID       string
	Amount        int64 // paisa
	Currency      string
	CustomerID    string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
	NotifyURL     string
	Note          string
}

// RemoteOrder is the gateway's view of a created order.
type RemoteOrder struct {
	PaymentSessionID string
	GatewayOrderID   string
	OrderStatus      string
}

// PaymentAttempt is one payment made against an order.
type PaymentAttempt struct {
	PaymentID string  `json:"cf_payment_id"`
	Status    string  `json:"payment_status"`
	Amount    float64 `json:"payment_amount"`
	Message   string  `json:"payment_message,omitempty"`
	Time      string  `json:"payment_time,omitempty"`
}

// PaymentStatus is the gateway's view of an order and its payments.
type PaymentStatus struct {
	OrderID     string
	OrderStatus string
	OrderAmount float64
	Payments    []PaymentAttempt
	State       PaymentState
}

// Adapter is the payment gateway used by billing and the HTTP handlers.
type Adapter interface {
	// CreateRemoteOrder registers an order and returns the checkout session.
	// It is never retried.
	CreateRemoteOrder(ctx context.Context, spec OrderSpec) (*RemoteOrder, error)
	// FetchPaymentStatus returns the order's payment status, retrying
	// transient failures.
	FetchPaymentStatus(ctx context.Context, orderID string) (*PaymentStatus, error)
	// VerifyWebhook checks a webhook signature.
	VerifyWebhook(signature, timestamp string, rawBody []byte) error
	Environment() Environment
}

// ValidSignature reports whether signature is the base64 HMAC-SHA256 of
// timestamp+rawBody under secret.
func ValidSignature(secret, signature, timestamp string, rawBody []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// Sign computes the webhook signature for timestamp+rawBody.
func Sign(secret, timestamp string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// NormalizeState maps gateway order and payment statuses to a PaymentState.
// Either SUCCESS or PAID on the order or any payment means success.
func NormalizeState(orderStatus string, payments []PaymentAttempt) PaymentState {
	if isSuccess(orderStatus) {
		return StatePaid
	}
	for _, p := range payments {
		if isSuccess(p.Status) {
			return StatePaid
		}
	}
	switch strings.ToUpper(orderStatus) {
	case "EXPIRED", "TERMINATED", "TERMINATION_REQUESTED", "CANCELLED":
		return StateCancelled
	}

	var failed, dropped bool
	for _, p := range payments {
		switch strings.ToUpper(p.Status) {
		case "PENDING":
			return StatePending
		case "FAILED":
			failed = true
		case "USER_DROPPED", "CANCELLED", "VOID":
			dropped = true
		}
	}
	switch {
	case failed:
		return StateFailed
	case dropped:
		return StateCancelled
	default:
		return StatePending
	}
}

func isSuccess(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "PAID":
		return true
	default:
		return false
	}
}

// Config configures New.
type Config struct {
	Environment Environment
	AppID       string
	SecretKey   string
	APIVersion  string
	// BaseURL overrides the environment's API base URL.
	BaseURL string
	Dialer  *netutil.Dialer
}

// New selects the adapter for cfg.Environment. Production requires
// credentials; the sandbox runs offline without them.
func New(cfg Config) (Adapter, error) {
	hasCreds := cfg.AppID != "" && cfg.SecretKey != ""
	switch cfg.Environment {
	case EnvProduction:
		if !hasCreds {
			return nil, fmt.Errorf("production gateway requires app id and secret key")
		}
		return NewRealAdapter(NewClient(cfg)), nil
	case EnvSandbox, "":
		if !hasCreds {
			return NewSandboxAdapter(nil, ""), nil
		}
		cfg.Environment = EnvSandbox
		return NewSandboxAdapter(NewClient(cfg), cfg.SecretKey), nil
	default:
		return nil, fmt.Errorf("unknown gateway environment %q", cfg.Environment)
	}
}
