package order

import (
	"time"

	"github.com/example/ec-checkout/internal/money"
)

const (
	EventOrderPlaced  = "OrderPlaced"
	EventOrderPaid    = "OrderPaid"
	EventOrderShipped = "OrderShipped"
)

type PlacedItem struct {
	ProductID   int64       `json:"product_id"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	UnitCost    money.Money `json:"unit_cost"`
}

type OrderPlaced struct {
	OrderID     int64        `json:"order_id"`
	CustomerID  int64        `json:"customer_id"`
	Reference   string       `json:"reference"`
	Items       []PlacedItem `json:"items"`
	TotalAmount money.Money  `json:"total_amount"`
	PlacedAt    time.Time    `json:"placed_at"`
}

type OrderPaid struct {
	OrderID     int64       `json:"order_id"`
	CustomerID  int64       `json:"customer_id"`
	Email       string      `json:"email"`
	ChargeID    string      `json:"charge_id"`
	TotalAmount money.Money `json:"total_amount"`
	PaidAt      time.Time   `json:"paid_at"`
}

type OrderShipped struct {
	OrderID   int64     `json:"order_id"`
	ShippedAt time.Time `json:"shipped_at"`
}

// PlacedEvent builds the OrderPlaced payload for a committed order.
func PlacedEvent(o *Order) OrderPlaced {
	items := make([]PlacedItem, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = PlacedItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitCost:    l.UnitCost,
		}
	}
	return OrderPlaced{
		OrderID:     o.OrderID,
		CustomerID:  o.CustomerID,
		Reference:   o.Reference,
		Items:       items,
		TotalAmount: o.TotalAmount,
		PlacedAt:    o.CreatedOn,
	}
}
