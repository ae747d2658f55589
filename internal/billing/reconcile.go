package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/craftai-co-in/superflow/internal/gateway"
	"github.com/craftai-co-in/superflow/internal/store"
)

// Outcome is the result of reconciling an order with the gateway.
type Outcome struct {
	Order *store.PaymentOrder
	// Activation is set when the order is paid.
	Activation *Activation
	State      gateway.PaymentState
}

// Reconciler fetches an order's remote status and applies it locally. It
// backs the return-URL landing, manual verification and status polling.
type Reconciler struct {
	orders    *OrderTracker
	activator *Activator
	gateway   gateway.Adapter
}

// NewReconciler creates a Reconciler.
func NewReconciler(orders *OrderTracker, activator *Activator, gw gateway.Adapter) *Reconciler {
	return &Reconciler{orders: orders, activator: activator, gateway: gw}
}

// Reconcile brings the local order in line with the gateway. Orders that are
// already paid are returned without a gateway call.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string) (*Outcome, error) {
	order, err := r.orders.ResolveOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == store.OrderStatusPaid {
		act, err := r.activator.Activate(ctx, order.OrderID)
		if err != nil {
			return nil, err
		}
		return &Outcome{Order: act.Order, Activation: act, State: gateway.StatePaid}, nil
	}

	// The gateway call happens outside any store transaction.
	status, err := r.gateway.FetchPaymentStatus(ctx, order.OrderID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", order.OrderID, err)
	}

	outcome := &Outcome{Order: order, State: status.State}
	switch status.State {
	case gateway.StatePaid:
		act, err := r.activator.Activate(ctx, order.OrderID)
		if err != nil {
			return nil, err
		}
		outcome.Activation = act
		outcome.Order = act.Order
	case gateway.StateFailed:
		if outcome.Order, err = r.orders.UpdateStatus(ctx, order.OrderID, store.OrderStatusFailed); err != nil {
			return nil, err
		}
	case gateway.StateCancelled:
		if outcome.Order, err = r.orders.UpdateStatus(ctx, order.OrderID, store.OrderStatusCancelled); err != nil {
			return nil, err
		}
	}

	log.Debug().
		Str("order_id", order.OrderID).
		Str("gateway_order_status", status.OrderStatus).
		Str("state", string(status.State)).
		Msg("Order reconciled with gateway")
	return outcome, nil
}
