// Package apperrors maps domain failures onto the uniform error payload
// {"error":{"status","code","message","field"}}.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Taxonomy kinds. Every AppError wraps exactly one of these so callers can use errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("resource not found")
	ErrTransaction     = errors.New("transaction failed")
	ErrPayment         = errors.New("payment failed")
	ErrAlreadyCaptured = errors.New("order already captured")
	ErrAuth            = errors.New("authentication failed")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
)

// Error codes exposed to clients.
const (
	CodeCartEmpty          = "CART_EMPTY"
	CodeMissingField       = "VALIDATION_MISSING_FIELD"
	CodeInvalidField       = "VALIDATION_INVALID_FIELD"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyCaptured    = "ALREADY_CAPTURED"
	CodePaymentDeclined    = "PAYMENT_DECLINED"
	CodePaymentFailed      = "PAYMENT_FAILED"
	CodeTransactionFailed  = "TRANSACTION_FAILED"
	CodeCheckoutInProgress = "CHECKOUT_IN_PROGRESS"
	CodeConflict           = "CONFLICT"
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeAuthInvalid        = "AUTH_INVALID"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is a classified error carrying its HTTP status and client-facing code.
type AppError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Kind    error  `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is this error's taxonomy kind.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// MissingField reports a required field that was not supplied.
func MissingField(field string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeMissingField,
		Message: fmt.Sprintf("%s is required", field),
		Field:   field,
		Kind:    ErrValidation,
	}
}

// InvalidField reports a field that was supplied but malformed.
func InvalidField(field, message string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidField,
		Message: message,
		Field:   field,
		Kind:    ErrValidation,
	}
}

// CartEmpty is returned when checking out a cart with no lines.
func CartEmpty(cartID string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeCartEmpty,
		Message: fmt.Sprintf("cart %s has no items", cartID),
		Field:   "cart_id",
		Kind:    ErrValidation,
	}
}

// NotFound reports a missing cart, item or other resource.
func NotFound(resource, field, id string) *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
		Field:   field,
		Kind:    ErrNotFound,
	}
}

// OrderNotFound reports a missing order.
func OrderNotFound(orderID int64) *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Code:    CodeOrderNotFound,
		Message: fmt.Sprintf("order %d not found", orderID),
		Field:   "order_id",
		Kind:    ErrNotFound,
	}
}

// NoOrders reports a customer without any order.
func NoOrders() *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Code:    CodeOrderNotFound,
		Message: "no orders found for this customer",
		Field:   "customer_id",
		Kind:    ErrNotFound,
	}
}

// Transaction reports a rolled-back commit. The caller may retry.
func Transaction(err error) *AppError {
	return &AppError{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeTransactionFailed,
		Message: "order could not be committed, please retry",
		Kind:    ErrTransaction,
		Err:     err,
	}
}

// PaymentDeclined reports a gateway rejection; message is the gateway's own.
func PaymentDeclined(message string, err error) *AppError {
	return &AppError{
		Status:  http.StatusPaymentRequired,
		Code:    CodePaymentDeclined,
		Message: message,
		Field:   "stripeToken",
		Kind:    ErrPayment,
		Err:     err,
	}
}

// PaymentFailed reports a transport-level gateway failure or timeout.
func PaymentFailed(message string, err error) *AppError {
	return &AppError{
		Status:  http.StatusBadGateway,
		Code:    CodePaymentFailed,
		Message: message,
		Kind:    ErrPayment,
		Err:     err,
	}
}

// AlreadyCaptured is the benign idempotency conflict for a non-pending order.
func AlreadyCaptured(orderID int64, status string) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Code:    CodeAlreadyCaptured,
		Message: fmt.Sprintf("order %d is already %s", orderID, status),
		Field:   "order_id",
		Kind:    ErrAlreadyCaptured,
	}
}

// InProgress reports that another request holds the lock for the same resource.
func InProgress(message string) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Code:    CodeCheckoutInProgress,
		Message: message,
		Kind:    ErrConflict,
	}
}

// Conflict reports a state conflict other than double capture.
func Conflict(message, field string) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Code:    CodeConflict,
		Message: message,
		Field:   field,
		Kind:    ErrConflict,
	}
}

// AuthRequired reports a missing credential.
func AuthRequired() *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthRequired,
		Message: "authorization code is empty",
		Field:   "USER-KEY",
		Kind:    ErrAuth,
	}
}

// AuthInvalid reports a credential that failed verification.
func AuthInvalid(err error) *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthInvalid,
		Message: "access unauthorized",
		Field:   "USER-KEY",
		Kind:    ErrAuth,
		Err:     err,
	}
}

// Internal hides err behind an opaque message.
func Internal(err error) *AppError {
	return &AppError{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Kind:    ErrInternal,
		Err:     err,
	}
}

// From classifies any error. Unclassified errors become Internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
