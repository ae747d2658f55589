package billing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

const maxOrderIDAttempts = 3

// OrderTracker creates and tracks payment orders.
type OrderTracker struct {
	store *store.Store
	now   func() time.Time
}

// NewOrderTracker creates an OrderTracker.
func NewOrderTracker(s *store.Store) *OrderTracker {
	return &OrderTracker{store: s, now: time.Now}
}

// CreateOrder persists a new order for a purchasable plan. The amount comes
// from the pricing table. The record is written before any gateway call.
func (t *OrderTracker) CreateOrder(ctx context.Context, userID int64, planType plans.PlanType) (*store.PaymentOrder, error) {
	plan, err := plans.Purchasable(planType)
	if err != nil {
		return nil, internalerrors.Validation("create_order", "%v", err)
	}
	u, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if u == nil {
		return nil, internalerrors.NotFound("create_order", userSubject(userID))
	}

	now := t.now().UTC()
	base := fmt.Sprintf("order_%d_%d", now.UnixMilli(), userID)
	orderID := base
	for attempt := 1; ; attempt++ {
		order := &store.PaymentOrder{
			OrderID:   orderID,
			UserID:    userID,
			PlanType:  plan.Type,
			Amount:    plan.Amount,
			Status:    store.OrderStatusCreated,
			CreatedAt: now,
		}
		err := t.store.CreateOrder(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= maxOrderIDAttempts {
			return nil, fmt.Errorf("create order: %w", err)
		}
		orderID = base + "_" + randomSuffix()
	}
}

// UpdateStatus records a failed or cancelled outcome. Paid orders are never
// changed and are returned as they are; the paid transition itself is only
// reachable through Activator.Activate.
func (t *OrderTracker) UpdateStatus(ctx context.Context, orderID string, status store.OrderStatus) (*store.PaymentOrder, error) {
	switch status {
	case store.OrderStatusFailed, store.OrderStatusCancelled, store.OrderStatusCreated:
	case store.OrderStatusPaid:
		return nil, internalerrors.Validation("update_order_status", "orders become paid only through activation")
	default:
		return nil, internalerrors.Validation("update_order_status", "unknown order status %q", status)
	}

	if _, err := t.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	return t.GetOrder(ctx, orderID)
}

// GetOrder returns an order or ORDER_NOT_FOUND.
func (t *OrderTracker) GetOrder(ctx context.Context, orderID string) (*store.PaymentOrder, error) {
	o, err := t.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, internalerrors.OrderNotFound("get_order", orderID)
	}
	return o, nil
}

// ResolveOrder finds an order by its own id or, failing that, by the
// gateway's order id.
func (t *OrderTracker) ResolveOrder(ctx context.Context, id string) (*store.PaymentOrder, error) {
	o, err := t.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve order: %w", err)
	}
	if o == nil {
		if o, err = t.store.GetOrderByGatewayID(ctx, id); err != nil {
			return nil, fmt.Errorf("resolve order: %w", err)
		}
	}
	if o == nil {
		return nil, internalerrors.OrderNotFound("resolve_order", id)
	}
	return o, nil
}

// AttachSession stores the gateway session token and order id.
func (t *OrderTracker) AttachSession(ctx context.Context, orderID, sessionID, gatewayOrderID string) error {
	return t.store.AttachGatewaySession(ctx, orderID, sessionID, gatewayOrderID)
}

// ListForUser returns a user's orders, newest first.
func (t *OrderTracker) ListForUser(ctx context.Context, userID int64) ([]*store.PaymentOrder, error) {
	return t.store.ListOrdersByUser(ctx, userID)
}

func randomSuffix() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano()&0xffffff)
	}
	return hex.EncodeToString(b)
}
