package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Base error types
var (
	ErrValidation         = errors.New("validation failed")
	ErrUpload             = errors.New("upload failed")
	ErrGateway            = errors.New("payment gateway error")
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")
	ErrOrderNotFound      = errors.New("order not found")
	ErrSignatureInvalid   = errors.New("webhook signature invalid")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternal           = errors.New("internal error")
)

// Kind is the machine-readable category of an error. The string values are
// returned to API clients as the "error" code.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindUpload             Kind = "UPLOAD_ERROR"
	KindGateway            Kind = "GATEWAY_ERROR"
	KindUsageLimitExceeded Kind = "USAGE_LIMIT_EXCEEDED"
	KindOrderNotFound      Kind = "ORDER_NOT_FOUND"
	KindSignatureInvalid   Kind = "SIGNATURE_INVALID"
	KindNotFound           Kind = "NOT_FOUND"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindInternal           Kind = "INTERNAL_ERROR"
)

var kindSentinels = map[Kind]error{
	KindValidation:         ErrValidation,
	KindUpload:             ErrUpload,
	KindGateway:            ErrGateway,
	KindUsageLimitExceeded: ErrUsageLimitExceeded,
	KindOrderNotFound:      ErrOrderNotFound,
	KindSignatureInvalid:   ErrSignatureInvalid,
	KindNotFound:           ErrNotFound,
	KindUnauthorized:       ErrUnauthorized,
	KindInternal:           ErrInternal,
}

// Error is a structured error for billing, payment and recording operations.
type Error struct {
	Kind       Kind
	Op         string // Operation that failed (e.g., "activate", "fetch_payment_status")
	Subject    string // Entity the operation acted on (order id, user id)
	Err        error  // Underlying error
	StatusCode int    // Upstream HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Subject != "" {
		return fmt.Sprintf("%s failed for %s: %s", e.Op, e.Subject, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if sentinel, ok := kindSentinels[e.Kind]; ok && sentinel == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// New creates a new Error
func New(kind Kind, op string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(kind),
	}
}

// WithSubject records the entity the failed operation acted on.
func (e *Error) WithSubject(subject string) *Error {
	e.Subject = subject
	return e
}

// WithStatusCode adds the upstream HTTP status code to the error
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	if code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

// WithRetryable overrides the retry classification.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func isRetryable(kind Kind) bool {
	switch kind {
	case KindGateway, KindInternal:
		return true
	default:
		return false
	}
}

// Helper functions

// Validation builds a VALIDATION_ERROR with a formatted message.
func Validation(op, format string, args ...any) error {
	return New(KindValidation, op, fmt.Errorf(format, args...))
}

// Gateway wraps a payment gateway failure.
func Gateway(op string, err error) *Error {
	return New(KindGateway, op, err)
}

// UsageLimitExceeded reports that a user has no recording minutes left.
func UsageLimitExceeded(op, userID string) error {
	return New(KindUsageLimitExceeded, op, errors.New("no recording minutes remaining")).WithSubject(userID)
}

// OrderNotFound reports a reference to an order the system never created.
func OrderNotFound(op, orderID string) error {
	return New(KindOrderNotFound, op, fmt.Errorf("order %q does not exist", orderID)).WithSubject(orderID)
}

// SignatureInvalid reports a webhook whose signature does not verify.
func SignatureInvalid(op string) error {
	return New(KindSignatureInvalid, op, errors.New("signature mismatch"))
}

// NotFound reports a missing entity other than a payment order.
func NotFound(op, subject string) error {
	return New(KindNotFound, op, nil).WithSubject(subject)
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code an API handler should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUpload:
		return http.StatusUnprocessableEntity
	case KindGateway:
		return http.StatusBadGateway
	case KindUsageLimitExceeded:
		return http.StatusPaymentRequired
	case KindOrderNotFound, KindNotFound:
		return http.StatusNotFound
	case KindSignatureInvalid, KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
