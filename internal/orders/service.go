// Package orders serves order reads for their owners and the fulfilment transition.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ec-checkout/internal/apperrors"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/money"
)

// Summary is the order header without lines.
type Summary struct {
	OrderID     int64        `json:"order_id"`
	TotalAmount money.Money  `json:"total_amount"`
	CreatedOn   time.Time    `json:"created_on"`
	ShippedOn   *time.Time   `json:"shipped_on"`
	Status      order.Status `json:"status"`
	Reference   string       `json:"reference"`
}

func summaryOf(o *order.Order) Summary {
	return Summary{
		OrderID:     o.OrderID,
		TotalAmount: o.TotalAmount,
		CreatedOn:   o.CreatedOn,
		ShippedOn:   o.ShippedOn,
		Status:      o.Status,
		Reference:   o.Reference,
	}
}

type Service struct {
	orders store.OrderStore
	logger *slog.Logger
	now    func() time.Time
}

func NewService(orders store.OrderStore, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{orders: orders, logger: logger.Component(log, "orders"), now: time.Now}
}

// Get returns the order with its lines. Orders of other customers are reported as not found.
func (s *Service) Get(ctx context.Context, customerID, orderID int64) (*order.Order, error) {
	if orderID <= 0 {
		return nil, apperrors.InvalidField("order_id", "order_id must be a positive integer")
	}
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, apperrors.OrderNotFound(orderID)
		}
		return nil, apperrors.Internal(err)
	}
	if o.CustomerID != customerID {
		return nil, apperrors.OrderNotFound(orderID)
	}
	return o, nil
}

// Short returns the order header only.
func (s *Service) Short(ctx context.Context, customerID, orderID int64) (*Summary, error) {
	o, err := s.Get(ctx, customerID, orderID)
	if err != nil {
		return nil, err
	}
	sum := summaryOf(o)
	return &sum, nil
}

// List returns the customer's orders, newest first. A customer without orders is not found.
func (s *Service) List(ctx context.Context, customerID int64) ([]Summary, error) {
	list, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(list) == 0 {
		return nil, apperrors.NoOrders()
	}
	out := make([]Summary, 0, len(list))
	for i := range list {
		out = append(out, summaryOf(&list[i]))
	}
	return out, nil
}

// Ship moves a paid order to Shipped and stamps shipped_on.
func (s *Service) Ship(ctx context.Context, orderID int64) (*order.Order, error) {
	if orderID <= 0 {
		return nil, apperrors.InvalidField("order_id", "order_id must be a positive integer")
	}
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, apperrors.OrderNotFound(orderID)
		}
		return nil, apperrors.Internal(err)
	}
	if !o.CanTransitionTo(order.StatusShipped) {
		return nil, apperrors.Conflict(o.TransitionError(order.StatusShipped).Error(), "order_id")
	}

	at := s.now().UTC()
	if err := s.orders.MarkShipped(ctx, orderID, at); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, apperrors.Conflict("order status changed concurrently", "order_id")
		}
		return nil, apperrors.Transaction(err)
	}
	s.logger.Info("order shipped", slog.Int64("order_id", orderID))

	o.Status = order.StatusShipped
	o.ShippedOn = &at
	return o, nil
}
