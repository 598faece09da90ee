// Package checkout turns a cart into a committed order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

// Digester hashes the caller's credential for the order's auth_code column.
type Digester interface {
	Digest(credential string) (string, error)
}

// Request is a checkout of one cart by one customer.
type Request struct {
	CartID     string
	ShippingID int64
	TaxID      int64
	CustomerID int64
	AuthCode   string
}

func (r Request) validate() error {
	switch {
	case r.CartID == "":
		return apperrors.MissingField("cart_id")
	case r.ShippingID == 0:
		return apperrors.MissingField("shipping_id")
	case r.ShippingID < 0:
		return apperrors.InvalidField("shipping_id", "shipping_id must be a positive integer")
	case r.TaxID == 0:
		return apperrors.MissingField("tax_id")
	case r.TaxID < 0:
		return apperrors.InvalidField("tax_id", "tax_id must be a positive integer")
	case r.CustomerID <= 0:
		return apperrors.AuthRequired()
	}
	return nil
}

// Result is a committed order. Replayed is set when the order already existed for the
// cart and nothing new was written.
type Result struct {
	Order    *order.Order
	Replayed bool
	Stage    Stage
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Orders   store.OrderStore
	Pricing  store.PricingReader
	Locker   lock.Locker
	Digester Digester
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Now      func() time.Time
}

// Service is the order transaction manager.
type Service struct {
	orders   store.OrderStore
	agg      *Aggregator
	locker   lock.Locker
	digester Digester
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		orders:   cfg.Orders,
		agg:      NewAggregator(cfg.Pricing),
		locker:   cfg.Locker,
		digester: cfg.Digester,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		now:      cfg.Now,
	}
	if s.tracer == nil {
		s.tracer = tracing.Tracer("github.com/example/ec-checkout/internal/checkout")
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	s.logger = logger.Component(s.logger, "checkout")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Aggregator exposes the read-only pricing used by checkout.
func (s *Service) Aggregator() *Aggregator {
	return s.agg
}

// CreateOrder converts the cart into an order exactly once. Concurrent calls for the
// same cart are serialized; a repeated call returns the order already committed.
func (s *Service) CreateOrder(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateOrder",
		trace.WithAttributes(attribute.String("cart_id", req.CartID)))
	defer span.End()

	start := time.Now()
	res, err := s.createOrder(ctx, req)
	if err != nil {
		enter(ctx, StageOf(err))
	} else {
		enter(ctx, res.Stage)
	}
	outcome := outcomeOf(res, err)
	s.metrics.ObserveCheckout(outcome, time.Since(start))

	log := logger.WithContext(ctx, s.logger).With(
		slog.String("cart_id", req.CartID),
		slog.Int64("customer_id", req.CustomerID),
		slog.String("outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn("checkout failed", slog.String("stage", string(StageOf(err))), slog.Any("error", err))
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order_id", res.Order.OrderID), attribute.Bool("replayed", res.Replayed))
	log.Info("checkout completed", slog.Int64("order_id", res.Order.OrderID), slog.String("total", res.Order.TotalAmount.String()))
	return res, nil
}

func (s *Service) createOrder(ctx context.Context, req Request) (*Result, error) {
	enter(ctx, StageValidating)
	if err := req.validate(); err != nil {
		return nil, failAt(StageValidating, err)
	}

	unlock, err := s.locker.Lock(ctx, lock.CartKey(req.CartID))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, failAt(StageValidating,
				apperrors.InProgress(fmt.Sprintf("checkout for cart %s is already in progress", req.CartID)))
		}
		return nil, failAt(StageValidating, apperrors.Transaction(err))
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("release cart lock", slog.String("cart_id", req.CartID), slog.Any("error", err))
		}
	}()

	existing, err := s.orders.FindByReference(ctx, req.CartID)
	switch {
	case err == nil:
		return s.replay(existing, req)
	case !errors.Is(err, order.ErrOrderNotFound):
		return nil, failAt(StageValidating, apperrors.Transaction(err))
	}

	authCode := ""
	if req.AuthCode != "" && s.digester != nil {
		if authCode, err = s.digester.Digest(req.AuthCode); err != nil {
			return nil, failAt(StageValidating, apperrors.Internal(err))
		}
	}

	enter(ctx, StageAggregating)
	lines, total, err := s.agg.Aggregate(ctx, req.CartID)
	if err != nil {
		return nil, failAt(StageAggregating, apperrors.Transaction(err))
	}
	if len(lines) == 0 {
		return nil, failAt(StageAggregating, apperrors.CartEmpty(req.CartID))
	}

	draft, err := order.NewDraft(req.CartID, req.CustomerID, req.ShippingID, req.TaxID, authCode, lines, s.now().UTC())
	if err != nil {
		return nil, failAt(StageAggregating, apperrors.CartEmpty(req.CartID))
	}
	if draft.TotalAmount != total {
		return nil, failAt(StageAggregating, apperrors.Internal(
			fmt.Errorf("%w: draft %s, cart %s", order.ErrTotalMismatch, draft.TotalAmount, total)))
	}

	enter(ctx, StageCommitting)
	orderID, err := s.orders.CommitOrder(ctx, draft)
	if errors.Is(err, order.ErrDuplicateReference) {
		// Committed by a process that does not share our lock.
		existing, ferr := s.orders.FindByReference(ctx, req.CartID)
		if ferr != nil {
			return nil, failAt(StageRolledBack, apperrors.Transaction(ferr))
		}
		return s.replay(existing, req)
	}
	if err != nil {
		return nil, failAt(StageRolledBack, apperrors.Transaction(err))
	}

	placed, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("read back committed order", slog.Int64("order_id", orderID), slog.Any("error", err))
		placed = draft.Placed(orderID)
	}
	if err := placed.VerifyTotal(); err != nil {
		s.logger.Error("committed order total mismatch", slog.Int64("order_id", orderID), slog.Any("error", err))
	}

	return &Result{Order: placed, Stage: StageCommitted}, nil
}

func (s *Service) replay(existing *order.Order, req Request) (*Result, error) {
	if existing.CustomerID != req.CustomerID {
		return nil, failAt(StageValidating,
			apperrors.Conflict(fmt.Sprintf("cart %s has already been checked out", req.CartID), "cart_id"))
	}
	return &Result{Order: existing, Replayed: true, Stage: StageCommitted}, nil
}

func outcomeOf(res *Result, err error) string {
	switch {
	case err == nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "committed"
	case errors.Is(err, apperrors.ErrValidation):
		if ae := apperrors.From(err); ae.Code == apperrors.CodeCartEmpty {
			return "cart_empty"
		}
		return "invalid"
	case errors.Is(err, apperrors.ErrConflict):
		if ae := apperrors.From(err); ae.Code == apperrors.CodeCheckoutInProgress {
			return "in_progress"
		}
		return "conflict"
	case StageOf(err) == StageRolledBack:
		return "rolled_back"
	default:
		return "error"
	}
}
