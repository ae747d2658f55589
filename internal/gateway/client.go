package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/logging"
	"github.com/craftai-co-in/superflow/internal/metrics"
	"github.com/craftai-co-in/superflow/internal/netutil"
)

const (
	sandboxBaseURL    = "https://sandbox.cashfree.com/pg"
	productionBaseURL = "https://api.cashfree.com/pg"

	defaultAPIVersion    = "2023-08-01"
	defaultClientTimeout = 30 * time.Second
	maxResponseBytes     = 1 << 20
	defaultPhone         = "9999999999"
)

// Client is a minimal Cashfree PG REST client.
type Client struct {
	baseURL    string
	appID      string
	secretKey  string
	apiVersion string
	httpClient *http.Client
}

// NewClient creates a Client for cfg.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = sandboxBaseURL
		if cfg.Environment == EnvProduction {
			baseURL = productionBaseURL
		}
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = netutil.NewDialer()
	}
	return &Client{
		baseURL:    baseURL,
		appID:      cfg.AppID,
		secretKey:  cfg.SecretKey,
		apiVersion: apiVersion,
		httpClient: dialer.HTTPClient(defaultClientTimeout),
	}
}

// flexibleID decodes identifiers the gateway sends as either numbers or strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type createOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     float64         `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails customerDetails `json:"customer_details"`
	OrderMeta       orderMeta       `json:"order_meta"`
	OrderNote       string          `json:"order_note,omitempty"`
}

type orderResponse struct {
	CFOrderID        flexibleID `json:"cf_order_id"`
	OrderID          string     `json:"order_id"`
	OrderAmount      float64    `json:"order_amount"`
	OrderStatus      string     `json:"order_status"`
	PaymentSessionID string     `json:"payment_session_id"`
}

type paymentResponse struct {
	CFPaymentID    flexibleID `json:"cf_payment_id"`
	PaymentStatus  string     `json:"payment_status"`
	PaymentAmount  float64    `json:"payment_amount"`
	PaymentMessage string     `json:"payment_message"`
	PaymentTime    string     `json:"payment_time"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

// CreateOrder registers an order with the gateway.
func (c *Client) CreateOrder(ctx context.Context, spec OrderSpec) (*RemoteOrder, error) {
	currency := spec.Currency
	if currency == "" {
		currency = "INR"
	}
	phone := spec.CustomerPhone
	if phone == "" {
		phone = defaultPhone
	}
	req := createOrderRequest{
		OrderID:       spec.OrderID,
		OrderAmount:   float64(spec.Amount) / 100,
		OrderCurrency: currency,
		CustomerDetails: customerDetails{
			CustomerID:    spec.CustomerID,
			CustomerEmail: spec.CustomerEmail,
			CustomerPhone: phone,
		},
		OrderMeta: orderMeta{ReturnURL: spec.ReturnURL, NotifyURL: spec.NotifyURL},
		OrderNote: spec.Note,
	}

	var resp orderResponse
	if err := c.do(ctx, "create_order", http.MethodPost, "/orders", req, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentSessionID == "" {
		return nil, internalerrors.Gateway("create_order", fmt.Errorf("response missing payment_session_id")).
			WithSubject(spec.OrderID).WithRetryable(false)
	}
	return &RemoteOrder{
		PaymentSessionID: resp.PaymentSessionID,
		GatewayOrderID:   string(resp.CFOrderID),
		OrderStatus:      resp.OrderStatus,
	}, nil
}

// GetOrderStatus fetches an order and its payments once, without retries.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*PaymentStatus, error) {
	escaped := url.PathEscape(orderID)

	var order orderResponse
	if err := c.do(ctx, "get_order", http.MethodGet, "/orders/"+escaped, nil, &order); err != nil {
		return nil, err
	}
	var payments []paymentResponse
	if err := c.do(ctx, "get_payments", http.MethodGet, "/orders/"+escaped+"/payments", nil, &payments); err != nil {
		return nil, err
	}

	status := &PaymentStatus{
		OrderID:     orderID,
		OrderStatus: order.OrderStatus,
		OrderAmount: order.OrderAmount,
	}
	for _, p := range payments {
		status.Payments = append(status.Payments, PaymentAttempt{
			PaymentID: string(p.CFPaymentID),
			Status:    p.PaymentStatus,
			Amount:    p.PaymentAmount,
			Message:   p.PaymentMessage,
			Time:      p.PaymentTime,
		})
	}
	status.State = NormalizeState(status.OrderStatus, status.Payments)
	return status, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.GatewayCallsTotal.WithLabelValues(op, result).Inc()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
	req.Header.Set("x-api-version", c.apiVersion)
	if id := logging.RequestID(ctx); id != "" {
		req.Header.Set("x-request-id", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return internalerrors.Gateway(op, err).WithRetryable(isTransient(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return internalerrors.Gateway(op, fmt.Errorf("read response: %w", err)).WithRetryable(isTransient(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return internalerrors.Gateway(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)).
			WithStatusCode(resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return internalerrors.Gateway(op, fmt.Errorf("decode response: %w", err)).WithRetryable(false)
		}
	}
	return nil
}
