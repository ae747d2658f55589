package gateway

import (
	"context"

	"github.com/rs/zerolog/log"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
)

// RealAdapter is the production gateway. Invalid webhook signatures are rejected.
type RealAdapter struct {
	client *Client
	sleep  sleepFunc
}

// NewRealAdapter creates a RealAdapter.
func NewRealAdapter(client *Client) *RealAdapter {
	return &RealAdapter{client: client, sleep: sleepContext}
}

func (a *RealAdapter) Environment() Environment { return EnvProduction }

func (a *RealAdapter) CreateRemoteOrder(ctx context.Context, spec OrderSpec) (*RemoteOrder, error) {
	return a.client.CreateOrder(ctx, spec)
}

func (a *RealAdapter) FetchPaymentStatus(ctx context.Context, orderID string) (*PaymentStatus, error) {
	return retry(ctx, "fetch_payment_status", a.sleep, func(ctx context.Context) (*PaymentStatus, error) {
		return a.client.GetOrderStatus(ctx, orderID)
	})
}

func (a *RealAdapter) VerifyWebhook(signature, timestamp string, rawBody []byte) error {
	if !ValidSignature(a.client.secretKey, signature, timestamp, rawBody) {
		return internalerrors.SignatureInvalid("verify_webhook")
	}
	return nil
}

// SandboxAdapter is the sandbox gateway. Signature failures are logged and
// accepted. With a nil client it runs offline and every payment succeeds.
type SandboxAdapter struct {
	client *Client
	secret string
	sleep  sleepFunc
}

// NewSandboxAdapter creates a SandboxAdapter. client may be nil.
func NewSandboxAdapter(client *Client, secret string) *SandboxAdapter {
	return &SandboxAdapter{client: client, secret: secret, sleep: sleepContext}
}

// Offline reports whether the adapter simulates the gateway.
func (a *SandboxAdapter) Offline() bool { return a.client == nil }

func (a *SandboxAdapter) Environment() Environment { return EnvSandbox }

func (a *SandboxAdapter) CreateRemoteOrder(ctx context.Context, spec OrderSpec) (*RemoteOrder, error) {
	if a.client == nil {
		log.Info().Str("order_id", spec.OrderID).Msg("Sandbox gateway offline; simulating order")
		return &RemoteOrder{
			PaymentSessionID: "session_sandbox_" + spec.OrderID,
			GatewayOrderID:   "sandbox_" + spec.OrderID,
			OrderStatus:      "ACTIVE",
		}, nil
	}
	return a.client.CreateOrder(ctx, spec)
}

func (a *SandboxAdapter) FetchPaymentStatus(ctx context.Context, orderID string) (*PaymentStatus, error) {
	if a.client == nil {
		payments := []PaymentAttempt{{PaymentID: "sandbox_" + orderID, Status: "SUCCESS"}}
		return &PaymentStatus{
			OrderID:     orderID,
			OrderStatus: "PAID",
			Payments:    payments,
			State:       StatePaid,
		}, nil
	}
	return retry(ctx, "fetch_payment_status", a.sleep, func(ctx context.Context) (*PaymentStatus, error) {
		return a.client.GetOrderStatus(ctx, orderID)
	})
}

func (a *SandboxAdapter) VerifyWebhook(signature, timestamp string, rawBody []byte) error {
	if !ValidSignature(a.secret, signature, timestamp, rawBody) {
		log.Warn().
			Bool("signature_present", signature != "").
			Msg("Sandbox webhook signature did not verify; processing anyway")
	}
	return nil
}
