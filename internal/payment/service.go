// Package payment captures payment for committed orders.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/ec-checkout/internal/apperrors"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/lock"
	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CaptureRequest asks to charge an order on behalf of its owner.
type CaptureRequest struct {
	OrderID      int64
	Email        string
	PaymentToken string
	CustomerID   int64
}

func (r CaptureRequest) validate() error {
	switch {
	case r.OrderID == 0:
		return apperrors.MissingField("order_id")
	case r.OrderID < 0:
		return apperrors.InvalidField("order_id", "order_id must be a positive integer")
	case r.Email == "":
		return apperrors.MissingField("email")
	case r.PaymentToken == "":
		return apperrors.MissingField("stripeToken")
	case r.CustomerID <= 0:
		return apperrors.AuthRequired()
	}
	return nil
}

// ChargeResult is a successful capture.
type ChargeResult struct {
	OrderID  int64        `json:"order_id"`
	ChargeID string       `json:"charge_id"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
	Status   order.Status `json:"status"`
	Paid     bool         `json:"paid"`
}

// ServiceConfig holds the collaborators and settings of a Service.
type ServiceConfig struct {
	Orders    store.OrderStore
	Gateway   Gateway
	Locker    lock.Locker
	Currency  string
	MinorUnit int64
	Timeout   time.Duration
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service is the payment capture component.
type Service struct {
	orders    store.OrderStore
	gateway   Gateway
	locker    lock.Locker
	currency  string
	minorUnit int64
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		orders:    cfg.Orders,
		gateway:   cfg.Gateway,
		locker:    cfg.Locker,
		currency:  cfg.Currency,
		minorUnit: cfg.MinorUnit,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		tracer:    tracing.Tracer("github.com/example/ec-checkout/internal/payment"),
		now:       cfg.Now,
	}
	if s.currency == "" {
		s.currency = "usd"
	}
	if s.minorUnit < 1 {
		s.minorUnit = 1
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	s.logger = logger.Component(s.logger, "payment")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Capture charges a Pending order once. A second capture of the same order, concurrent or
// later, gets ALREADY_CAPTURED and never reaches the gateway.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*ChargeResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Capture",
		trace.WithAttributes(attribute.Int64("order_id", req.OrderID)))
	defer span.End()

	res, err := s.capture(ctx, req)
	outcome := captureOutcome(err)
	s.metrics.ObserveCapture(outcome)

	log := logger.WithContext(ctx, s.logger).With(
		slog.Int64("order_id", req.OrderID),
		slog.String("outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn("capture failed", slog.Any("error", err))
		return nil, err
	}
	log.Info("capture succeeded", slog.String("charge_id", res.ChargeID), slog.Int64("amount", res.Amount))
	return res, nil
}

func (s *Service) capture(ctx context.Context, req CaptureRequest) (*ChargeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.OrderKey(req.OrderID))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, apperrors.InProgress(fmt.Sprintf("payment for order %d is already in progress", req.OrderID))
		}
		return nil, apperrors.Transaction(err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("release order lock", slog.Int64("order_id", req.OrderID), slog.Any("error", err))
		}
	}()

	o, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, apperrors.OrderNotFound(req.OrderID)
		}
		return nil, apperrors.Internal(err)
	}
	if o.CustomerID != req.CustomerID {
		return nil, apperrors.OrderNotFound(req.OrderID)
	}
	if o.Status != order.StatusPending {
		return nil, apperrors.AlreadyCaptured(o.OrderID, string(o.Status))
	}

	amount := o.TotalAmount.Ceil(s.minorUnit)
	key := IdempotencyKey(o.OrderID, req.PaymentToken)

	customerID, err := s.callGateway(ctx, func(ctx context.Context) (string, error) {
		return s.gateway.CreateCustomer(ctx, CustomerRequest{
			Email:          req.Email,
			Token:          req.PaymentToken,
			Reference:      "customer-" + strconv.FormatInt(o.CustomerID, 10),
			IdempotencyKey: key + "-customer",
		})
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	var charge *Charge
	_, err = s.callGateway(ctx, func(ctx context.Context) (string, error) {
		c, err := s.gateway.CreateCharge(ctx, ChargeRequest{
			Amount:         amount,
			Currency:       s.currency,
			Customer:       customerID,
			Description:    fmt.Sprintf("order %d", o.OrderID),
			Metadata:       map[string]string{"order_id": strconv.FormatInt(o.OrderID, 10)},
			IdempotencyKey: key,
		})
		charge = c
		return "", err
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	err = s.orders.RecordCapture(ctx, order.Payment{
		OrderID:    o.OrderID,
		CustomerID: o.CustomerID,
		Email:      req.Email,
		ChargeID:   charge.ID,
		Amount:     amount,
		Currency:   s.currency,
		PaidAt:     s.now().UTC(),
		Total:      o.TotalAmount,
	})
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, apperrors.AlreadyCaptured(o.OrderID, string(order.StatusPaid))
	}
	if err != nil {
		// The charge exists at the gateway. A retry with the same token reuses the
		// idempotency key and gets the same charge back.
		s.logger.Error("record capture after successful charge",
			slog.Int64("order_id", o.OrderID), slog.String("charge_id", charge.ID), slog.Any("error", err))
		return nil, apperrors.Transaction(err)
	}

	return &ChargeResult{
		OrderID:  o.OrderID,
		ChargeID: charge.ID,
		Amount:   amount,
		Currency: s.currency,
		Status:   order.StatusPaid,
		Paid:     true,
	}, nil
}

// IdempotencyKey identifies one capture attempt: an order paid with one token. A new
// token after a decline gets a fresh key, since the gateway rejects a reused key whose
// parameters differ.
func IdempotencyKey(orderID int64, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "order-" + strconv.FormatInt(orderID, 10) + "-" + hex.EncodeToString(sum[:8])
}

func (s *Service) callGateway(ctx context.Context, call func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := call(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return v, err
}

func gatewayError(err error) *apperrors.AppError {
	var ge *GatewayError
	switch {
	case errors.As(err, &ge) && errors.Is(ge.Kind, ErrDeclined):
		return apperrors.PaymentDeclined(ge.Message, err)
	case errors.As(err, &ge):
		return apperrors.PaymentFailed(ge.Message, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.PaymentFailed("payment gateway timed out", err)
	default:
		return apperrors.PaymentFailed(err.Error(), err)
	}
}

func captureOutcome(err error) string {
	if err == nil {
		return "paid"
	}
	ae := apperrors.From(err)
	switch ae.Code {
	case apperrors.CodeAlreadyCaptured:
		return "already_captured"
	case apperrors.CodePaymentDeclined:
		return "declined"
	case apperrors.CodePaymentFailed:
		return "failed"
	case apperrors.CodeOrderNotFound:
		return "not_found"
	case apperrors.CodeMissingField, apperrors.CodeInvalidField:
		return "invalid"
	default:
		return "error"
	}
}
