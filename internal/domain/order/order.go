package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/money"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusFailed  Status = "Failed"
	StatusShipped Status = "Shipped"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyOrder         = errors.New("order must have at least one item")
	ErrInvalidStatus      = errors.New("invalid order status transition")
	ErrOrderAlreadyPaid   = errors.New("order is already paid")
	ErrOrderNotPaid       = errors.New("order must be paid before shipping")
	ErrOrderFailed        = errors.New("order payment has failed")
	ErrDuplicateReference = errors.New("an order already exists for this cart")
	ErrTotalMismatch      = errors.New("order total does not match its lines")
	ErrCartChanged        = errors.New("cart changed during checkout")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {StatusShipped},
	StatusFailed:  {}, // terminal state
	StatusShipped: {}, // terminal state
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Line is one committed order line. ProductName and UnitCost are copies taken at commit
// time and are never re-read from the catalog.
type Line struct {
	ItemID      int64       `json:"item_id"`
	OrderID     int64       `json:"order_id"`
	ProductID   int64       `json:"product_id"`
	Attributes  string      `json:"attributes"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	UnitCost    money.Money `json:"unit_cost"`
	Subtotal    money.Money `json:"subtotal"`
}

// WithSubtotal returns the line with Subtotal derived from quantity and unit cost.
func (l Line) WithSubtotal() Line {
	l.Subtotal = l.UnitCost.Mul(l.Quantity)
	return l
}

type Order struct {
	OrderID     int64       `json:"order_id"`
	CustomerID  int64       `json:"customer_id"`
	TaxID       int64       `json:"tax_id"`
	ShippingID  int64       `json:"shipping_id"`
	Reference   string      `json:"reference"`
	AuthCode    string      `json:"-"`
	TotalAmount money.Money `json:"total_amount"`
	Status      Status      `json:"status"`
	CreatedOn   time.Time   `json:"created_on"`
	ShippedOn   *time.Time  `json:"shipped_on"`
	Lines       []Line      `json:"order_items,omitempty"`
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	return CanTransition(o.Status, target)
}

// TransitionError returns an appropriate error for an invalid transition
func (o *Order) TransitionError(target Status) error {
	switch {
	case o.Status == StatusFailed:
		return ErrOrderFailed
	case (o.Status == StatusPaid || o.Status == StatusShipped) && target == StatusPaid:
		return ErrOrderAlreadyPaid
	case o.Status == StatusPending && target == StatusShipped:
		return ErrOrderNotPaid
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// LinesTotal sums quantity * unit cost over the order's lines.
func (o *Order) LinesTotal() money.Money {
	var total money.Money
	for _, l := range o.Lines {
		total = total.Add(l.UnitCost.Mul(l.Quantity))
	}
	return total
}

// VerifyTotal checks the stored total against the lines.
func (o *Order) VerifyTotal() error {
	if len(o.Lines) == 0 {
		return ErrEmptyOrder
	}
	if got := o.LinesTotal(); got != o.TotalAmount {
		return fmt.Errorf("%w: total %s, lines %s", ErrTotalMismatch, o.TotalAmount, got)
	}
	return nil
}

// Draft is an order that has been priced but not yet committed.
type Draft struct {
	CustomerID  int64
	TaxID       int64
	ShippingID  int64
	Reference   string
	AuthCode    string
	TotalAmount money.Money
	CreatedOn   time.Time
	Lines       []Line
}

// NewDraft snapshots priced cart lines into order lines. The total is computed from the
// same snapshot so it always equals the sum of the lines.
func NewDraft(reference string, customerID, shippingID, taxID int64, authCode string, priced []cart.PricedLine, now time.Time) (*Draft, error) {
	if len(priced) == 0 {
		return nil, ErrEmptyOrder
	}

	lines := make([]Line, 0, len(priced))
	var total money.Money
	for _, p := range priced {
		l := Line{
			ItemID:      p.ItemID,
			ProductID:   p.ProductID,
			Attributes:  p.Attributes,
			ProductName: p.ProductName,
			Quantity:    p.Quantity,
			UnitCost:    p.UnitPrice,
		}.WithSubtotal()
		total = total.Add(l.Subtotal)
		lines = append(lines, l)
	}

	return &Draft{
		CustomerID:  customerID,
		TaxID:       taxID,
		ShippingID:  shippingID,
		Reference:   reference,
		AuthCode:    authCode,
		TotalAmount: total,
		CreatedOn:   now,
		Lines:       lines,
	}, nil
}

// Placed returns the committed order for a draft that was assigned orderID.
func (d *Draft) Placed(orderID int64) *Order {
	lines := make([]Line, len(d.Lines))
	for i, l := range d.Lines {
		l.OrderID = orderID
		lines[i] = l.WithSubtotal()
	}
	return &Order{
		OrderID:     orderID,
		CustomerID:  d.CustomerID,
		TaxID:       d.TaxID,
		ShippingID:  d.ShippingID,
		Reference:   d.Reference,
		AuthCode:    d.AuthCode,
		TotalAmount: d.TotalAmount,
		Status:      StatusPending,
		CreatedOn:   d.CreatedOn,
		Lines:       lines,
	}
}

// Payment is the record of a successful capture against an order.
type Payment struct {
	OrderID    int64
	CustomerID int64
	Email      string
	ChargeID   string
	Amount     int64
	Currency   string
	PaidAt     time.Time
	Total      money.Money
}
