package payment

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeclined marks a gateway rejection of the card or token. Retrying will not help.
	ErrDeclined = errors.New("payment declined")
	// ErrUnavailable marks a transport failure, timeout, 5xx or open breaker.
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// CustomerRequest registers the payer and attaches the card token.
type CustomerRequest struct {
	Email          string
	Token          string
	Reference      string
	IdempotencyKey string
}

// ChargeRequest charges a registered gateway customer. Amount is in the gateway's
// minor units.
type ChargeRequest struct {
	Amount         int64
	Currency       string
	Customer       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Charge struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Paid     bool   `json:"paid"`
}

// Gateway is an external card processor.
type Gateway interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
}

// GatewayError carries the gateway's own message. Kind is ErrDeclined or ErrUnavailable.
type GatewayError struct {
	Kind    error
	Code    string
	Message string
	Status  int
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Kind
}

// Declined builds a declined error with the gateway's message.
func Declined(code, message string, status int) *GatewayError {
	return &GatewayError{Kind: ErrDeclined, Code: code, Message: message, Status: status}
}

// Unavailable builds a transport-level gateway error.
func Unavailable(message string, status int) *GatewayError {
	return &GatewayError{Kind: ErrUnavailable, Message: message, Status: status}
}
