package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logger"
)

// ReceiptSender delivers the payment receipt.
type ReceiptSender interface {
	SendReceipt(to string, r email.Receipt) error
}

// OrderReader loads the committed order for the receipt lines.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID int64) (*order.Order, error)
}

// Handler processes events for sending notifications
type Handler struct {
	sender ReceiptSender
	orders OrderReader
	logger *slog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(sender ReceiptSender, orders OrderReader, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{sender: sender, orders: orders, logger: logger.Component(log, "notifier")}
}

// HandleEvent processes one outbox event from Kafka. Only OrderPaid produces mail: the
// payer's address is first known at capture.
func (h *Handler) HandleEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case order.EventOrderPaid:
		return h.handleOrderPaid(ctx, event)
	default:
		h.logger.Debug("event ignored",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
		)
		return nil
	}
}

func (h *Handler) handleOrderPaid(ctx context.Context, event store.Event) error {
	var e order.OrderPaid
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	log := h.logger.With(slog.Int64("order_id", e.OrderID))
	if e.Email == "" {
		log.Warn("paid order has no email")
		return nil
	}

	receipt := email.Receipt{OrderID: e.OrderID, ChargeID: e.ChargeID, Total: e.TotalAmount}
	o, err := h.orders.GetOrder(ctx, e.OrderID)
	switch {
	case err == nil:
		receipt.Items = make([]email.ReceiptItem, len(o.Lines))
		for i, l := range o.Lines {
			l = l.WithSubtotal()
			receipt.Items[i] = email.ReceiptItem{
				Name:       l.ProductName,
				Attributes: l.Attributes,
				Quantity:   l.Quantity,
				UnitCost:   l.UnitCost,
				Subtotal:   l.Subtotal,
			}
		}
	case errors.Is(err, order.ErrOrderNotFound):
		log.Warn("order for receipt not found, sending without lines")
	default:
		// Lines are optional; the total alone is still a valid receipt.
		log.Error("load order for receipt", slog.Any("error", err))
	}

	if err := h.sender.SendReceipt(e.Email, receipt); err != nil {
		log.Error("send receipt", slog.String("charge_id", e.ChargeID), slog.Any("error", err))
		return err
	}
	log.Info("receipt sent", slog.String("to", e.Email), slog.String("event_id", event.ID))
	return nil
}
