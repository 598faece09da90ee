package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
)

// ErrStatusConflict is returned when a compare-and-swap status update matched no row.
var ErrStatusConflict = errors.New("order status changed concurrently")

// CartStore holds mutable cart lines keyed by cart id.
type CartStore interface {
	ProductExists(ctx context.Context, productID int64) (bool, error)
	// AddLine inserts a line, or increases the quantity of an existing line for the
	// same product and attributes.
	AddLine(ctx context.Context, cartID string, productID int64, attributes string, qty int) (*cart.Line, error)
	UpdateQuantity(ctx context.Context, itemID int64, qty int) error
	DeleteLine(ctx context.Context, itemID int64) error
	DeleteCart(ctx context.Context, cartID string) (int64, error)
}

// PricingReader joins cart lines with current catalog prices.
type PricingReader interface {
	PricedLines(ctx context.Context, cartID string) ([]cart.PricedLine, error)
}

// OrderStore persists orders. Every write happens in a single transaction together with
// its outbox event.
type OrderStore interface {
	// CommitOrder writes the order, its lines and an OrderPlaced event, and consumes the
	// cart, all or nothing. A reused reference yields order.ErrDuplicateReference.
	CommitOrder(ctx context.Context, d *order.Draft) (int64, error)
	GetOrder(ctx context.Context, orderID int64) (*order.Order, error)
	FindByReference(ctx context.Context, reference string) (*order.Order, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]order.Order, error)
	// RecordCapture moves a Pending order to Paid and stores the payment.
	RecordCapture(ctx context.Context, p order.Payment) error
	MarkShipped(ctx context.Context, orderID int64, at time.Time) error
}

// OutboxStore is read by the relay that forwards committed events to Kafka.
type OutboxStore interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, eventID string) error
}
