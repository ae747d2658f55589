package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftai-co-in/superflow/internal/auth"
	"github.com/craftai-co-in/superflow/internal/billing"
	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/gateway"
	"github.com/craftai-co-in/superflow/internal/metrics"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/receipt"
	"github.com/craftai-co-in/superflow/internal/routing"
	"github.com/craftai-co-in/superflow/internal/store"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

type checkoutRequest struct {
	Plan string `json:"plan"`
}

type checkoutResponse struct {
	OrderID          string         `json:"order_id"`
	PaymentSessionID string         `json:"payment_session_id"`
	Amount           int64          `json:"amount"`
	Plan             plans.PlanType `json:"plan"`
	Environment      string         `json:"environment"`
}

type paymentResult struct {
	OrderID          string               `json:"order_id"`
	Status           store.OrderStatus    `json:"status"`
	State            gateway.PaymentState `json:"state"`
	AlreadyProcessed bool                 `json:"already_processed"`
	Plan             *billing.PlanStatus  `json:"plan,omitempty"`
	RedirectTo       string               `json:"redirect_to,omitempty"`
}

type webhookResponse struct {
	Received         bool   `json:"received"`
	Processed        bool   `json:"processed"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
	Error            string `json:"error,omitempty"`
}

func (d *Deps) handleCheckout(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		d.writeError(w, r, err)
		return
	}
	planType, err := plans.Parse(req.Plan)
	if err != nil {
		d.writeError(w, r, internalerrors.Validation("checkout", "%v", err))
		return
	}

	order, err := d.Orders.CreateOrder(r.Context(), u.ID, planType)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	remote, err := d.Gateway.CreateRemoteOrder(r.Context(), gateway.OrderSpec{
		OrderID:       order.OrderID,
		Amount:        order.Amount,
		Currency:      "INR",
		CustomerID:    "user_" + strconv.FormatInt(u.ID, 10),
		CustomerEmail: u.Email,
		ReturnURL:     strings.TrimSuffix(d.Config.FreeURL, "/") + "/payment/return?order_id={order_id}",
		NotifyURL:     strings.TrimSuffix(d.Config.FreeURL, "/") + "/api/payments/webhook",
		Note:          "Superflow " + string(planType),
	})
	if err != nil {
		if _, uerr := d.Orders.UpdateStatus(context.WithoutCancel(r.Context()), order.OrderID, store.OrderStatusFailed); uerr != nil {
			log.Error().Err(uerr).Str("order_id", order.OrderID).Msg("Failed to mark order failed after gateway error")
		}
		d.writeError(w, r, err)
		return
	}
	if err := d.Orders.AttachSession(r.Context(), order.OrderID, remote.PaymentSessionID, remote.GatewayOrderID); err != nil {
		d.writeError(w, r, err)
		return
	}

	log.Info().
		Int64("user_id", u.ID).
		Str("order_id", order.OrderID).
		Str("plan", string(planType)).
		Int64("amount", order.Amount).
		Msg("Checkout started")

	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:          order.OrderID,
		PaymentSessionID: remote.PaymentSessionID,
		Amount:           order.Amount,
		Plan:             planType,
		Environment:      string(d.Gateway.Environment()),
	})
}

// handleWebhook applies gateway push notifications. Final business failures
// (unknown order, amount mismatch) are acknowledged with 200 so the gateway
// stops retrying; only transient failures return 500.
func (d *Deps) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeErrorCode(w, status, internalerrors.KindValidation, "failed to read request body")
		return
	}

	if err := d.Gateway.VerifyWebhook(r.Header.Get(gateway.HeaderSignature), r.Header.Get(gateway.HeaderTimestamp), payload); err != nil {
		status = http.StatusUnauthorized
		log.Warn().Err(err).Str("remote", clientIP(r)).Msg("Webhook rejected: invalid signature")
		writeErrorCode(w, status, internalerrors.KindSignatureInvalid, "invalid webhook signature")
		return
	}

	ev, err := gateway.ParseWebhook(payload)
	if err != nil {
		status = http.StatusBadRequest
		writeErrorCode(w, status, internalerrors.KindValidation, "malformed webhook payload")
		return
	}
	eventType = ev.Type
	orderID := ev.Data.Order.OrderID

	resp, err := d.applyWebhook(r.Context(), ev)
	if err != nil {
		log.Error().Err(err).
			Str("type", ev.Type).
			Str("order_id", orderID).
			Msg("Webhook processing failed")
		status = http.StatusInternalServerError
		writeErrorCode(w, status, internalerrors.KindInternal, "processing failed")
		return
	}
	writeJSON(w, status, resp)
}

func (d *Deps) applyWebhook(ctx context.Context, ev *gateway.WebhookEvent) (*webhookResponse, error) {
	orderID := ev.Data.Order.OrderID
	resp := &webhookResponse{Received: true}

	switch ev.Type {
	case gateway.EventPaymentSuccess:
		order, err := d.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return finalFailure(resp, err)
		}
		if got := ev.AmountMinor(); got != order.Amount {
			log.Error().
				Str("order_id", orderID).
				Int64("expected", order.Amount).
				Int64("received", got).
				Msg("Webhook amount does not match order; not activating")
			resp.Error = "AMOUNT_MISMATCH"
			return resp, nil
		}
		act, err := d.Activator.Activate(ctx, orderID)
		recordActivation("webhook", act, err)
		if err != nil {
			return finalFailure(resp, err)
		}
		resp.Processed = true
		resp.AlreadyProcessed = act.AlreadyProcessed

	case gateway.EventPaymentFailed, gateway.EventPaymentUserDropped:
		next := store.OrderStatusFailed
		if ev.Type == gateway.EventPaymentUserDropped {
			next = store.OrderStatusCancelled
		}
		order, err := d.Orders.UpdateStatus(ctx, orderID, next)
		if err != nil {
			return finalFailure(resp, err)
		}
		resp.Processed = order.Status == next
		resp.AlreadyProcessed = order.Status == store.OrderStatusPaid
		log.Info().
			Str("order_id", orderID).
			Str("status", string(order.Status)).
			Str("payment_message", ev.Data.Payment.PaymentMessage).
			Msg("Payment did not complete")

	default:
		log.Info().Str("type", ev.Type).Str("order_id", orderID).Msg("Webhook ignored (unhandled type)")
	}
	return resp, nil
}

// finalFailure acknowledges errors the gateway cannot fix by retrying and
// passes everything else up as a processing failure.
func finalFailure(resp *webhookResponse, err error) (*webhookResponse, error) {
	switch internalerrors.KindOf(err) {
	case internalerrors.KindOrderNotFound, internalerrors.KindValidation:
		log.Warn().Err(err).Msg("Webhook references an order that cannot be applied")
		resp.Error = string(internalerrors.KindOf(err))
		return resp, nil
	default:
		return nil, err
	}
}

func recordActivation(source string, act *billing.Activation, err error) {
	outcome := "activated"
	switch {
	case errors.Is(err, internalerrors.ErrOrderNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	case act.AlreadyProcessed:
		outcome = "already_processed"
	}
	metrics.ActivationsTotal.WithLabelValues(source, outcome).Inc()
}

// handlePaymentReturn is where the browser lands after checkout. It
// reconciles the order and redirects to the right origin.
func (d *Deps) handlePaymentReturn(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.FormValue("order_id"))
	if orderID == "" {
		orderID = strings.TrimSpace(r.FormValue("cf_order_id"))
	}
	if orderID == "" {
		http.Redirect(w, r, d.Router.UpgradeURL(), http.StatusSeeOther)
		return
	}

	outcome, err := d.Reconciler.Reconcile(r.Context(), orderID)
	if outcome != nil && outcome.Activation != nil {
		recordActivation("return_url", outcome.Activation, nil)
	}
	if err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("Payment return: reconciliation failed")
		http.Redirect(w, r, withQuery(d.Router.UpgradeURL(), "payment", "error", "order_id", orderID), http.StatusSeeOther)
		return
	}

	target := withQuery(d.Router.UpgradeURL(), "payment", string(outcome.State), "order_id", outcome.Order.OrderID)
	if outcome.State == gateway.StatePaid && outcome.Activation != nil && outcome.Activation.User != nil {
		landing := d.Router.Landing(routing.ViewOf(outcome.Activation.User), d.now())
		target = withQuery(landing, "payment", "success", "order_id", outcome.Order.OrderID)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type verifyRequest struct {
	OrderID string `json:"order_id"`
}

func (d *Deps) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		d.writeError(w, r, err)
		return
	}
	d.reconcileForUser(w, r, "verify", req.OrderID)
}

func (d *Deps) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	d.reconcileForUser(w, r, "poll", r.URL.Query().Get("order_id"))
}

func (d *Deps) reconcileForUser(w http.ResponseWriter, r *http.Request, source, orderID string) {
	u := auth.UserFrom(r.Context())
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		d.writeError(w, r, internalerrors.Validation(source, "order_id is required"))
		return
	}
	order, err := d.Orders.ResolveOrder(r.Context(), orderID)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if order.UserID != u.ID {
		// Do not reveal other users' orders.
		d.writeError(w, r, internalerrors.OrderNotFound(source, orderID))
		return
	}

	outcome, err := d.Reconciler.Reconcile(r.Context(), order.OrderID)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if outcome.Activation != nil {
		recordActivation(source, outcome.Activation, nil)
	}

	res := paymentResult{
		OrderID: outcome.Order.OrderID,
		Status:  outcome.Order.Status,
		State:   outcome.State,
	}
	current := u
	if outcome.Activation != nil {
		res.AlreadyProcessed = outcome.Activation.AlreadyProcessed
		if outcome.Activation.User != nil {
			current = outcome.Activation.User
		}
	}
	res.Plan = billing.StatusOf(current)
	if outcome.State == gateway.StatePaid {
		res.RedirectTo = d.Router.Landing(routing.ViewOf(current), d.now())
	}
	writeJSON(w, http.StatusOK, res)
}

func (d *Deps) handleListOrders(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	orders, err := d.Orders.ListForUser(r.Context(), u.ID)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*store.PaymentOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

func (d *Deps) handleReceipt(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	orderID := r.PathValue("order_id")
	order, err := d.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if order.UserID != u.ID {
		d.writeError(w, r, internalerrors.OrderNotFound("receipt", orderID))
		return
	}
	pdf, err := d.Receipts.Generate(receipt.Data{
		Order:       order,
		Email:       u.Email,
		Environment: string(d.Gateway.Environment()),
		GeneratedAt: d.now(),
	})
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="superflow-receipt-%s.pdf"`, order.OrderID))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

// withQuery appends key/value pairs to a URL.
func withQuery(target string, kv ...string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}
