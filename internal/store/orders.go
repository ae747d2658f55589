package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/craftai-co-in/superflow/internal/plans"
)

const orderColumns = `id, order_id, user_id, plan_type, amount, status,
		payment_session_id, gateway_order_id, paid_at, created_at, updated_at`

// CreateOrder inserts a new payment order. A duplicate order id yields ErrConflict.
func (s *Store) CreateOrder(ctx context.Context, o *PaymentOrder) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	if o.Status == "" {
		o.Status = OrderStatusCreated
	}
	now := s.timestamp()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO payment_orders (
			order_id, user_id, plan_type, amount, status,
			payment_session_id, gateway_order_id, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.UserID, string(o.PlanType), o.Amount, string(o.Status),
		o.PaymentSessionID, o.GatewayOrderID, nullableTimeUnix(o.PaidAt),
		o.CreatedAt.Unix(), o.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create order %q: %w", o.OrderID, ErrConflict)
		}
		return fmt.Errorf("create order: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		o.ID = id
	}
	return nil
}

// GetOrder retrieves an order by its public order id.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*PaymentOrder, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE order_id = ?`, orderID)
	return scanOrder(row)
}

// GetOrderByGatewayID retrieves an order by the gateway's own order id.
func (s *Store) GetOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*PaymentOrder, error) {
	if gatewayOrderID == "" {
		return nil, nil
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE gateway_order_id = ?`, gatewayOrderID)
	return scanOrder(row)
}

// MarkOrderPaid is the activation compare-and-swap: it moves the order to
// paid only if it is not already paid. It reports whether this call won.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payment_orders SET status = ?, paid_at = ?, updated_at = ?
		WHERE order_id = ? AND status <> ?`,
		string(OrderStatusPaid), paidAt.UTC().Unix(), s.timestamp().Unix(),
		orderID, string(OrderStatusPaid),
	)
	if err != nil {
		return false, fmt.Errorf("mark order %q paid: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order %q paid: rows affected: %w", orderID, err)
	}
	return affected == 1, nil
}

// UpdateOrderStatus sets a non-paid status. Paid orders are never changed;
// the return value reports whether a row was updated.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus) (bool, error) {
	if status == OrderStatusPaid {
		return false, fmt.Errorf("update order %q: use MarkOrderPaid for paid transitions", orderID)
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE payment_orders SET status = ?, updated_at = ?
		WHERE order_id = ? AND status <> ?`,
		string(status), s.timestamp().Unix(), orderID, string(OrderStatusPaid),
	)
	if err != nil {
		return false, fmt.Errorf("update order %q status: %w", orderID, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// AttachGatewaySession records the gateway session token and order id.
func (s *Store) AttachGatewaySession(ctx context.Context, orderID, sessionID, gatewayOrderID string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payment_orders SET payment_session_id = ?, gateway_order_id = ?, updated_at = ?
		WHERE order_id = ?`,
		sessionID, gatewayOrderID, s.timestamp().Unix(), orderID,
	)
	if err != nil {
		return fmt.Errorf("attach session to order %q: %w", orderID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("order %q not found", orderID)
	}
	return nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]*PaymentOrder, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+orderColumns+`
		FROM payment_orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*PaymentOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(s scanner) (*PaymentOrder, error) {
	var o PaymentOrder
	var planType, status string
	var paidAt sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(
		&o.ID, &o.OrderID, &o.UserID, &planType, &o.Amount, &status,
		&o.PaymentSessionID, &o.GatewayOrderID, &paidAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.PlanType = plans.PlanType(planType)
	o.Status = OrderStatus(status)
	o.PaidAt = timeFromNullable(paidAt)
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &o, nil
}
