// Package fake provides an in-memory payment gateway for development and tests.
package fake

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-checkout/internal/payment"
)

// Gateway always succeeds unless a failure is injected. Requests that repeat an
// idempotency key get the first response back; a repeated key with different
// parameters is rejected the way Stripe rejects it.
type Gateway struct {
	mu sync.Mutex

	customers map[string]customerEntry
	charges   map[string]chargeEntry
	tokens    map[string]string // customer id -> card token

	// Delay simulates gateway latency. The call honours context cancellation.
	Delay time.Duration
	// CustomerErr and ChargeErr are returned instead of a result when set.
	CustomerErr error
	ChargeErr   error
	// DeclineTokens lists card tokens whose charges are declined.
	DeclineTokens map[string]bool

	CustomerCalls []payment.CustomerRequest
	ChargeCalls   []payment.ChargeRequest
}

type customerEntry struct {
	params string
	id     string
}

type chargeEntry struct {
	params string
	charge *payment.Charge
	err    error
}

// NewGateway creates a new fake gateway.
func NewGateway() *Gateway {
	return &Gateway{
		customers:     make(map[string]customerEntry),
		charges:       make(map[string]chargeEntry),
		tokens:        make(map[string]string),
		DeclineTokens: make(map[string]bool),
	}
}

func (g *Gateway) CreateCustomer(ctx context.Context, req payment.CustomerRequest) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.CustomerCalls = append(g.CustomerCalls, req)
	if g.CustomerErr != nil {
		return "", g.CustomerErr
	}

	params := fmt.Sprintf("%s|%s|%s", req.Email, req.Token, req.Reference)
	if e, ok := g.customers[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		if e.params != params {
			return "", keyReused()
		}
		return e.id, nil
	}
	id := "cus_" + uuid.New().String()
	g.customers[req.IdempotencyKey] = customerEntry{params: params, id: id}
	g.tokens[id] = req.Token
	return id, nil
}

func (g *Gateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ChargeCalls = append(g.ChargeCalls, req)
	if g.ChargeErr != nil {
		return nil, g.ChargeErr
	}

	params := fmt.Sprintf("%d|%s|%s|%s", req.Amount, req.Currency, req.Customer, req.Description)
	if e, ok := g.charges[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		if e.params != params {
			return nil, keyReused()
		}
		if e.err != nil {
			return nil, e.err
		}
		cp := *e.charge
		return &cp, nil
	}

	if g.DeclineTokens[g.tokens[req.Customer]] {
		err := payment.Declined("card_declined", "Your card was declined.", http.StatusPaymentRequired)
		g.charges[req.IdempotencyKey] = chargeEntry{params: params, err: err}
		return nil, err
	}
	c := &payment.Charge{
		ID:       "ch_" + uuid.New().String(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "succeeded",
		Paid:     true,
	}
	g.charges[req.IdempotencyKey] = chargeEntry{params: params, charge: c}
	cp := *c
	return &cp, nil
}

// Charges returns the number of distinct successful charges.
func (g *Gateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, e := range g.charges {
		if e.charge != nil {
			n++
		}
	}
	return n
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func keyReused() error {
	return &payment.GatewayError{
		Kind:    payment.ErrUnavailable,
		Code:    "idempotency_error",
		Message: "Keys for idempotent requests can only be used with the same parameters they were first used with.",
		Status:  http.StatusBadRequest,
	}
}

var _ payment.Gateway = (*Gateway)(nil)
